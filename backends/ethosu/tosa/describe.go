// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tosa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/ethosu/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Names of the files written by DumpDebug.
const (
	DebugFlatbufferFile  = "output.tosa"
	DebugDescriptionFile = "desc.json"
)

var attributeTypeNames = [...]string{
	AttributeNone:                 "NONE",
	AttributePool:                 "PoolAttribute",
	AttributeConv:                 "ConvAttribute",
	AttributeTransposeConv:        "TransposeConvAttribute",
	AttributePad:                  "PadAttribute",
	AttributeAxis:                 "AxisAttribute",
	AttributeReshape:              "ReshapeAttribute",
	AttributeSlice:                "SliceAttribute",
	AttributeTile:                 "TileAttribute",
	AttributeResize:               "ResizeAttribute",
	AttributeClamp:                "ClampAttribute",
	AttributeRescale:              "RescaleAttribute",
	AttributeMul:                  "MulAttribute",
	AttributeArithmeticRightShift: "ArithmeticRightShiftAttribute",
	AttributeCondIf:               "CondIfAttribute",
	AttributeWhileLoop:            "WhileLoopAttribute",
	AttributeTranspose:            "TransposeAttribute",
	AttributeTable:                "TableAttribute",
	AttributeMatMul:               "MatMulAttribute",
	AttributeFullyConnected:       "FullyConnectedAttribute",
	AttributeNegate:               "NegateAttribute",
	AttributeCustom:               "CustomAttribute",
	AttributeFFT:                  "FFTAttribute",
	AttributeRFFT:                 "RFFTAttribute",
}

// String implements fmt.Stringer.
func (a AttributeType) String() string {
	if int(a) >= len(attributeTypeNames) {
		return fmt.Sprintf("AttributeType(%d)", uint8(a))
	}
	return attributeTypeNames[a]
}

// MarshalText implements encoding.TextMarshaler, used for the JSON description.
func (a AttributeType) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// MarshalText implements encoding.TextMarshaler, used for the JSON description.
func (d DType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// MarshalText implements encoding.TextMarshaler, used for the JSON description.
func (op Op) MarshalText() ([]byte, error) { return []byte(op.String()), nil }

// The description mirrors the layout of the flatbuffer schema.
type (
	jsonGraph struct {
		Version jsonVersion  `json:"version"`
		Regions []jsonRegion `json:"regions"`
	}
	jsonVersion struct {
		Major int  `json:"_major"`
		Minor int  `json:"_minor"`
		Patch int  `json:"_patch"`
		Draft bool `json:"_draft"`
	}
	jsonRegion struct {
		Name   string      `json:"name"`
		Blocks []jsonBlock `json:"blocks"`
	}
	jsonBlock struct {
		Name      string         `json:"name"`
		Operators []jsonOperator `json:"operators"`
		Tensors   []jsonTensor   `json:"tensors"`
		Inputs    []string       `json:"inputs"`
		Outputs   []string       `json:"outputs"`
	}
	jsonOperator struct {
		Op            Op            `json:"op"`
		AttributeType AttributeType `json:"attribute_type"`
		Attribute     Attribute     `json:"attribute,omitempty"`
		Inputs        []string      `json:"inputs"`
		Outputs       []string      `json:"outputs"`
	}
	jsonTensor struct {
		Name     string `json:"name"`
		Shape    []int  `json:"shape"`
		Type     DType  `json:"type"`
		DataSize int    `json:"data_size,omitempty"`
	}
)

// Describe returns a human-readable JSON description of the module, with the layout of the
// serialized flatbuffer. Constant values are summarized by their size.
func (m *Module) Describe() ([]byte, error) {
	block := jsonBlock{
		Name:      m.Name,
		Operators: make([]jsonOperator, len(m.operators)),
		Tensors:   make([]jsonTensor, len(m.tensors)),
		Inputs:    append([]string{}, m.inputs...),
		Outputs:   append([]string{}, m.outputs...),
	}
	for ii, op := range m.operators {
		jOp := jsonOperator{Op: op.Op, Inputs: op.Inputs, Outputs: op.Outputs}
		if op.Attribute != nil {
			jOp.AttributeType = op.Attribute.Type()
			jOp.Attribute = op.Attribute
		}
		block.Operators[ii] = jOp
	}
	for ii, t := range m.tensors {
		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}
		block.Tensors[ii] = jsonTensor{Name: t.Name, Shape: shape, Type: t.DType, DataSize: len(t.Data)}
	}
	desc := jsonGraph{
		Version: jsonVersion{Major: VersionMajor, Minor: VersionMinor, Patch: VersionPatch, Draft: VersionDraft},
		Regions: []jsonRegion{{Name: m.Name, Blocks: []jsonBlock{block}}},
	}
	out, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to describe TOSA module %q", m.Name)
	}
	return out, nil
}

// DumpDebug writes the serialized module (output.tosa) and its description (desc.json) to dir,
// creating it if needed.
func (m *Module) DumpDebug(dir string) error {
	dir, err := fsutil.EnsureDir(dir)
	if err != nil {
		return err
	}
	serialized, err := m.Serialize()
	if err != nil {
		return err
	}
	desc, err := m.Describe()
	if err != nil {
		return err
	}
	for name, contents := range map[string][]byte{DebugFlatbufferFile: serialized, DebugDescriptionFile: desc} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, contents, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %q", path)
		}
	}
	klog.V(1).Infof("tosa: module %q dumped to %s", m.Name, dir)
	return nil
}
