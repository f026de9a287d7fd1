// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tosa

import (
	"slices"

	"github.com/gomlx/exceptions"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"
)

// Deserialize parses a TOSA flatbuffer written by Serialize, with a single region and basic block.
// Attributes not emitted by this package are rejected.
func Deserialize(buf []byte) (m *Module, err error) {
	if len(buf) < 8 || string(buf[4:8]) != FileIdentifier {
		return nil, errors.Errorf("not a TOSA flatbuffer: missing %q file identifier", FileIdentifier)
	}
	err = exceptions.TryCatch[error](func() { m = deserialize(buf) })
	if err != nil {
		return nil, errors.WithMessage(err, "failed to deserialize TOSA flatbuffer")
	}
	return m, nil
}

// table wraps a flatbuffers table with accessors by field slot.
type table struct {
	flatbuffers.Table
}

func (t table) field(slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func (t table) int32Field(slot int, defaultValue int32) int32 {
	if o := t.field(slot); o != 0 {
		return t.GetInt32(o + t.Pos)
	}
	return defaultValue
}

func (t table) uint32Field(slot int) uint32 {
	if o := t.field(slot); o != 0 {
		return t.GetUint32(o + t.Pos)
	}
	return 0
}

func (t table) byteField(slot int) byte {
	if o := t.field(slot); o != 0 {
		return t.GetByte(o + t.Pos)
	}
	return 0
}

func (t table) boolField(slot int, defaultValue bool) bool {
	if o := t.field(slot); o != 0 {
		return t.GetBool(o + t.Pos)
	}
	return defaultValue
}

func (t table) float32Field(slot int) float32 {
	if o := t.field(slot); o != 0 {
		return t.GetFloat32(o + t.Pos)
	}
	return 0
}

func (t table) stringField(slot int) string {
	if o := t.field(slot); o != 0 {
		return t.String(o + t.Pos)
	}
	return ""
}

func (t table) bytesField(slot int) []byte {
	if o := t.field(slot); o != 0 {
		return slices.Clone(t.ByteVector(o + t.Pos))
	}
	return nil
}

func (t table) intsField(slot int) []int {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	values := make([]int, n)
	for ii := range values {
		values[ii] = int(t.GetInt32(start + flatbuffers.UOffsetT(ii*4)))
	}
	return values
}

func (t table) stringsField(slot int) []string {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	values := make([]string, n)
	for ii := range values {
		values[ii] = t.String(start + flatbuffers.UOffsetT(ii*4))
	}
	return values
}

func (t table) tableField(slot int) (table, bool) {
	o := t.field(slot)
	if o == 0 {
		return table{}, false
	}
	return table{flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(o + t.Pos)}}, true
}

func (t table) tablesField(slot int) []table {
	o := t.field(slot)
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	tables := make([]table, n)
	for ii := range tables {
		tables[ii] = table{flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(start + flatbuffers.UOffsetT(ii*4))}}
	}
	return tables
}

func (t table) unionField(slot int) (table, bool) {
	o := t.field(slot)
	if o == 0 {
		return table{}, false
	}
	var u table
	t.Union(&u.Table, o)
	return u, true
}

func deserialize(buf []byte) *Module {
	root := table{flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}}
	version, found := root.tableField(0)
	if !found {
		exceptions.Panicf("missing version")
	}
	major, minor := version.int32Field(0, -1), version.int32Field(1, -1)
	if major != VersionMajor || minor != VersionMinor {
		exceptions.Panicf("unsupported TOSA version %d.%d, expected %d.%d", major, minor, VersionMajor, VersionMinor)
	}
	regions := root.tablesField(1)
	if len(regions) != 1 {
		exceptions.Panicf("expected exactly one region, got %d", len(regions))
	}
	blocks := regions[0].tablesField(1)
	if len(blocks) != 1 {
		exceptions.Panicf("expected exactly one basic block, got %d", len(blocks))
	}
	block := blocks[0]

	m := New()
	m.Name = block.stringField(0)
	inputs := block.stringsField(3)
	for _, t := range block.tablesField(2) {
		name := t.stringField(0)
		shape := t.intsField(1)
		dtype := DType(t.uint32Field(2))
		switch {
		case slices.Contains(inputs, name):
			m.AddInput(name, shape, dtype)
		case t.field(3) != 0:
			m.AddConst(name, shape, dtype, t.bytesField(3))
		default:
			m.AddTensor(name, shape, dtype)
		}
	}
	if len(m.inputs) != len(inputs) {
		exceptions.Panicf("basic block lists %d inputs, but only %d are declared as tensors", len(inputs), len(m.inputs))
	}
	for _, op := range block.tablesField(1) {
		var attr Attribute
		if attrTable, found := op.unionField(2); found {
			attr = decodeAttribute(AttributeType(op.byteField(1)), attrTable)
		}
		m.AddOperator(Op(op.uint32Field(0)), attr, op.stringsField(3), op.stringsField(4))
	}
	for _, name := range block.stringsField(4) {
		m.MarkOutput(name)
	}
	return m
}

func decodeAttribute(attrType AttributeType, t table) Attribute {
	switch attrType {
	case AttributePool:
		return &PoolAttribute{
			Pad: t.intsField(0), Kernel: t.intsField(1), Stride: t.intsField(2),
			InputZp: int(t.int32Field(3, 0)), OutputZp: int(t.int32Field(4, 0)), AccumDType: DType(t.uint32Field(5)),
		}
	case AttributeConv:
		return &ConvAttribute{
			Pad: t.intsField(0), Stride: t.intsField(1), Dilation: t.intsField(2),
			InputZp: int(t.int32Field(3, 0)), WeightZp: int(t.int32Field(4, 0)),
		}
	case AttributeAxis:
		return &AxisAttribute{Axis: int(t.int32Field(0, 0))}
	case AttributeReshape:
		return &ReshapeAttribute{NewShape: t.intsField(0)}
	case AttributeClamp:
		return &ClampAttribute{
			MinInt: int(t.int32Field(0, 0)), MaxInt: int(t.int32Field(1, 0)),
			MinFP: t.float32Field(2), MaxFP: t.float32Field(3),
		}
	case AttributeMul:
		return &MulAttribute{Shift: int(t.int32Field(0, 0))}
	case AttributeTranspose:
		return &TransposeAttribute{Perms: t.intsField(0)}
	case AttributeMatMul:
		return &MatMulAttribute{AZp: int(t.int32Field(0, 0)), BZp: int(t.int32Field(1, 0))}
	default:
		exceptions.Panicf("unsupported attribute type %d", attrType)
		return nil
	}
}
