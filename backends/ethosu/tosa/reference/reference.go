// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reference evaluates TOSA modules in float32, one operator at a time.
//
// It only covers the operators emitted by the Ethos-U lowering, and it is meant for tests: it favors
// readability over speed.
package reference

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Value is a dense row-major float32 tensor.
type Value struct {
	Dims []int
	Data []float32
}

// NewValue returns a Value with the given data and dimensions. It panics if they don't match.
func NewValue(data []float32, dims ...int) *Value {
	if size(dims) != len(data) {
		exceptions.Panicf("value of dimensions %v requires %d elements, got %d", dims, size(dims), len(data))
	}
	return &Value{Dims: slices.Clone(dims), Data: data}
}

// zeros returns a Value filled with zeros.
func zeros(dims []int) *Value {
	return &Value{Dims: slices.Clone(dims), Data: make([]float32, size(dims))}
}

func size(dims []int) int {
	return shapeOf(dims).Size()
}

func shapeOf(dims []int) shapes.Shape {
	return shapes.Make(dtypes.Float32, dims...)
}

// Shape of the value.
func (v *Value) Shape() shapes.Shape { return shapeOf(v.Dims) }

// At returns the element at the given indices.
func (v *Value) At(indices ...int) float32 {
	flat := 0
	for axis, stride := range v.Shape().Strides() {
		flat += indices[axis] * stride
	}
	return v.Data[flat]
}

// executor evaluates one operator, given its input values. It returns the value of its single output,
// whose dimensions are given.
type executor func(op *tosa.Operator, inputs []*Value, outDims []int) *Value

var executors = map[tosa.Op]executor{}

// Evaluate runs the module with the given input values, keyed by input name, and returns the values of
// the module outputs, keyed by name.
//
// Constants must be FP32 or FP16.
func Evaluate(m *tosa.Module, inputs map[string]*Value) (outputs map[string]*Value, err error) {
	err = exceptions.TryCatch[error](func() { outputs = evaluate(m, inputs) })
	if err != nil {
		return nil, errors.WithMessage(err, "reference evaluation failed")
	}
	return outputs, nil
}

func evaluate(m *tosa.Module, inputs map[string]*Value) map[string]*Value {
	env := make(map[string]*Value, len(m.Tensors()))
	for _, t := range m.Tensors() {
		switch t.Origin {
		case tosa.OriginInput:
			v, found := inputs[t.Name]
			if !found {
				exceptions.Panicf("missing value for input %q", t.Name)
			}
			if !slices.Equal(v.Dims, t.Shape) {
				exceptions.Panicf("input %q has dimensions %v, the module expects %v", t.Name, v.Dims, t.Shape)
			}
			env[t.Name] = v
		case tosa.OriginConstant:
			env[t.Name] = decodeConstant(t)
		}
	}
	for _, op := range m.Operators() {
		exec, found := executors[op.Op]
		if !found {
			exceptions.Panicf("operator %s is not supported by the reference evaluator", op.Op)
		}
		if len(op.Outputs) != 1 {
			exceptions.Panicf("operator %s has %d outputs, only 1 is supported", op, len(op.Outputs))
		}
		args := make([]*Value, len(op.Inputs))
		for ii, name := range op.Inputs {
			v, found := env[name]
			if !found {
				exceptions.Panicf("operator %s reads %q before it is written", op, name)
			}
			args[ii] = v
		}
		outTensor := m.Tensor(op.Outputs[0])
		result := exec(op, args, outTensor.Shape)
		if !slices.Equal(result.Dims, outTensor.Shape) {
			exceptions.Panicf("operator %s produced dimensions %v, but %q is declared with %v",
				op, result.Dims, outTensor.Name, outTensor.Shape)
		}
		env[outTensor.Name] = result
	}
	outputs := make(map[string]*Value, len(m.Outputs()))
	for _, name := range m.Outputs() {
		v, found := env[name]
		if !found {
			exceptions.Panicf("output %q is never written", name)
		}
		outputs[name] = v
	}
	return outputs
}

func decodeConstant(t *tosa.Tensor) *Value {
	v := zeros(t.Shape)
	switch t.DType {
	case tosa.DTypeFP32:
		for ii := range v.Data {
			v.Data[ii] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*ii:]))
		}
	case tosa.DTypeFP16:
		for ii := range v.Data {
			v.Data[ii] = float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*ii:])).Float32()
		}
	case tosa.DTypeBF16:
		for ii := range v.Data {
			v.Data[ii] = bfloat16.FromBits(binary.LittleEndian.Uint16(t.Data[2*ii:])).Float32()
		}
	default:
		exceptions.Panicf("constant %q of type %s is not supported by the reference evaluator", t.Name, t.DType)
	}
	return v
}
