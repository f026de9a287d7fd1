// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/ethosu/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// arg returns the positional operand i of the current node, or its keyword operand name if it has
// fewer positional operands. Missing operands are None.
func (l *lowerer) arg(i int, name string) graph.Argument {
	if i < l.node.NumArgs() {
		return l.node.Arg(i)
	}
	if name != "" {
		if a, found := l.node.Kwarg(name); found {
			return a
		}
	}
	return graph.NoneArg()
}

// operand resolves the operand i (or keyword name) of the current node.
func (l *lowerer) operand(i int, name string) Operand {
	op, err := ResolveArgument(l.arg(i, name))
	if err != nil {
		l.classificationFailure(err)
	}
	return op
}

// classificationFailure panics with err, attaching the current node to it if it's a ClassificationError.
func (l *lowerer) classificationFailure(err error) {
	if classErr, ok := err.(*ClassificationError); ok && classErr.Node == nil {
		classErr.Node = l.node
	}
	panic(err)
}

// tensorArg returns the operand i, which must be a tensor with the element type of the result.
func (l *lowerer) tensorArg(i int, name string) Operand {
	op := l.operand(i, name)
	if !op.IsTensor() {
		exceptions.Panicf("operand #%d (%s) must be a tensor, got %s", i, name, op)
	}
	l.checkDType(op)
	return op
}

// optionalTensorArg returns the operand i if it's a tensor, or false if it's None.
func (l *lowerer) optionalTensorArg(i int, name string) (Operand, bool) {
	if l.arg(i, name).IsNone() {
		return Operand{}, false
	}
	return l.tensorArg(i, name), true
}

// intArg returns the operand i as an integer, or defaultValue if it is None.
func (l *lowerer) intArg(i int, name string, defaultValue int) int {
	a := l.arg(i, name)
	switch a.Kind {
	case graph.ArgumentKindNone:
		return defaultValue
	case graph.ArgumentKindInt:
		return a.Int
	}
	exceptions.Panicf("operand #%d (%s) must be an integer, got %s", i, name, a)
	return 0
}

// floatArg returns the numeric operand i as a float64, or defaultValue if it is None.
func (l *lowerer) floatArg(i int, name string, defaultValue float64) float64 {
	a := l.arg(i, name)
	if a.IsNone() {
		return defaultValue
	}
	if !a.IsNumber() {
		exceptions.Panicf("operand #%d (%s) must be a number, got %s", i, name, a)
	}
	value, _ := a.AsFloat()
	return value
}

// boolArg returns the operand i as a boolean, or defaultValue if it is None.
func (l *lowerer) boolArg(i int, name string, defaultValue bool) bool {
	a := l.arg(i, name)
	switch a.Kind {
	case graph.ArgumentKindNone:
		return defaultValue
	case graph.ArgumentKindBool:
		return a.Bool
	case graph.ArgumentKindInt:
		if a.Int == 0 || a.Int == 1 {
			return a.Int == 1
		}
	}
	exceptions.Panicf("operand #%d (%s) must be a boolean, got %s", i, name, a)
	return false
}

// intsArg returns the operand i as a list of integers, or defaultValue if it is None or empty.
// A single integer is returned as a list of one element.
func (l *lowerer) intsArg(i int, name string, defaultValue []int) []int {
	a := l.arg(i, name)
	switch a.Kind {
	case graph.ArgumentKindNone:
		return defaultValue
	case graph.ArgumentKindInt:
		return []int{a.Int}
	case graph.ArgumentKindInts:
		if len(a.Ints) == 0 {
			return defaultValue
		}
		return a.Ints
	}
	exceptions.Panicf("operand #%d (%s) must be a list of integers, got %s", i, name, a)
	return nil
}

// pair expands a 2D spatial parameter given with one or two values to two values.
func pair(values []int, name string) []int {
	switch len(values) {
	case 1:
		return []int{values[0], values[0]}
	case 2:
		return slices.Clone(values)
	}
	exceptions.Panicf("%s must have 1 or 2 values, got %v", name, values)
	return nil
}

// normalizeAxis converts a negative axis to its positive counterpart, and checks it's within rank.
func normalizeAxis(axis, rank int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		exceptions.Panicf("axis %d out of range for rank %d", axis, rank)
	}
	return adjusted
}

// checkDType checks that the tensor operands have the element type of the result.
func (l *lowerer) checkDType(operands ...Operand) {
	for _, op := range operands {
		if op.IsTensor() && op.DType() != l.out.DType() {
			exceptions.Panicf("element type mismatch: %s is %s, but the result %q is %s",
				op, op.DType(), l.out.Name, l.out.DType())
		}
	}
}

// checkDims checks that op has the given dimensions.
func checkDims(op Operand, dims []int) {
	if !slices.Equal(op.Dims(), dims) {
		exceptions.Panicf("%s must have dimensions %v", op, dims)
	}
}

// tosaDType converts dtype, and checks it is supported by the delegate.
func (l *lowerer) tosaDType(dtype dtypes.DType) tosa.DType {
	if !l.caps.SupportsDType(dtype) {
		exceptions.Panicf("element type %s is not supported by the Ethos-U delegate", dtype)
	}
	tosaDType, err := tosa.FromDType(dtype)
	if err != nil {
		panic(err)
	}
	return tosaDType
}

// intermediate declares a new intermediate tensor with the given dimensions and the result element type.
func (l *lowerer) intermediate(dims []int) Operand {
	return l.intermediateOf(l.out.DType(), dims)
}

func (l *lowerer) intermediateOf(dtype dtypes.DType, dims []int) Operand {
	t := l.module.AddIntermediate(dims, l.tosaDType(dtype))
	return tensorOperand(t.Name, shapes.Make(dtype, dims...))
}

// resultOrIntermediate returns the node result if last is true, or a new intermediate with dims otherwise.
// It is used by decompositions whose last step depends on optional operands.
func (l *lowerer) resultOrIntermediate(last bool, dims []int) Operand {
	if last {
		return l.out
	}
	return l.intermediate(dims)
}

// emit appends the operator reading inputs and writing output, and returns output.
func (l *lowerer) emit(op tosa.Op, attr tosa.Attribute, output Operand, inputs ...Operand) Operand {
	names := make([]string, len(inputs))
	for ii, input := range inputs {
		if !input.IsTensor() {
			exceptions.Panicf("%s operand #%d is not a tensor: %s", op, ii, input)
		}
		names[ii] = input.Name
	}
	l.module.AddOperator(op, attr, names, []string{output.Name})
	return output
}

// reshape emits a RESHAPE of op into output. The element count must be preserved.
func (l *lowerer) reshape(op, output Operand) Operand {
	if op.Shape.Size() != output.Shape.Size() {
		exceptions.Panicf("cannot reshape %s to %v: element count changes from %d to %d",
			op, output.Dims(), op.Shape.Size(), output.Shape.Size())
	}
	return l.emit(tosa.OpReshape, &tosa.ReshapeAttribute{NewShape: output.Dims()}, output, op)
}

// promoteShape returns op reshaped to dims, with a RESHAPE if the dimensions differ.
// It panics if the element count would change.
func (l *lowerer) promoteShape(op Operand, dims []int) Operand {
	if slices.Equal(op.Dims(), dims) {
		return op
	}
	if size := shapes.Make(op.DType(), dims...).Size(); size != op.Shape.Size() {
		exceptions.Panicf("cannot reshape %s to %v: element count changes from %d to %d",
			op, dims, op.Shape.Size(), size)
	}
	return l.reshape(op, l.intermediateOf(op.DType(), dims))
}

// promoteRank returns op with leading axes of dimension 1 added up to rank.
func (l *lowerer) promoteRank(op Operand, rank int) Operand {
	if op.Rank() > rank {
		exceptions.Panicf("%s has rank larger than %d", op, rank)
	}
	return l.promoteShape(op, xslices.Prepend(op.Dims(), 1, rank-op.Rank()))
}

// transpose emits a TRANSPOSE of op into a new intermediate: axis i of the result is axis perms[i] of op.
// It panics if perms is not a permutation of the axes of op.
func (l *lowerer) transpose(op Operand, perms []int) Operand {
	permuted, err := op.Shape.Permute(perms)
	if err != nil {
		exceptions.Panicf("invalid transpose of %s: %v", op, err)
	}
	return l.transposeInto(op, perms, l.intermediateOf(op.DType(), permuted.Dimensions))
}

// transposeInto emits a TRANSPOSE of op into output, whose dimensions must match the permutation.
func (l *lowerer) transposeInto(op Operand, perms []int, output Operand) Operand {
	permuted, err := op.Shape.Permute(perms)
	if err != nil {
		exceptions.Panicf("invalid transpose of %s: %v", op, err)
	}
	if !slices.Equal(permuted.Dimensions, output.Dims()) {
		exceptions.Panicf("transpose of %s with permutation %v gives dimensions %v, but %s was expected",
			op, perms, permuted.Dimensions, output)
	}
	return l.emit(tosa.OpTranspose, &tosa.TransposeAttribute{Perms: slices.Clone(perms)}, output, op)
}

// constant declares a constant with the result element type, holding values converted from float64.
// If only one value is given, it is repeated to fill dims.
func (l *lowerer) constant(dims []int, values ...float64) Operand {
	dtype := l.out.DType()
	shape := shapes.Make(dtype, dims...)
	if len(values) == 1 && shape.Size() != 1 {
		values = slices.Repeat(values, shape.Size())
	}
	if len(values) != shape.Size() {
		exceptions.Panicf("constant of shape %s requires %d values, got %d", shape, shape.Size(), len(values))
	}
	t := l.module.AddConst("", dims, l.tosaDType(dtype), encodeValues(dtype, values))
	return tensorOperand(t.Name, shape)
}

// encodeValues converts values to the raw little-endian representation of dtype.
func encodeValues(dtype dtypes.DType, values []float64) []byte {
	switch dtype {
	case dtypes.Float32:
		buf := make([]byte, 4*len(values))
		for ii, v := range values {
			binary.LittleEndian.PutUint32(buf[4*ii:], math.Float32bits(float32(v)))
		}
		return buf
	case dtypes.Float16:
		buf := make([]byte, 2*len(values))
		for ii, v := range values {
			binary.LittleEndian.PutUint16(buf[2*ii:], float16.Fromfloat32(float32(v)).Bits())
		}
		return buf
	case dtypes.BFloat16:
		buf := make([]byte, 2*len(values))
		for ii, v := range values {
			binary.LittleEndian.PutUint16(buf[2*ii:], bfloat16.FromFloat64(v).Bits())
		}
		return buf
	case dtypes.Bool:
		buf := make([]byte, len(values))
		for ii, v := range values {
			if v != 0 {
				buf[ii] = 1
			}
		}
		return buf
	case dtypes.Int8:
		buf := make([]byte, len(values))
		for ii, v := range values {
			buf[ii] = byte(int8(math.Round(v)))
		}
		return buf
	case dtypes.Uint8:
		buf := make([]byte, len(values))
		for ii, v := range values {
			buf[ii] = uint8(math.Round(v))
		}
		return buf
	case dtypes.Int16:
		buf := make([]byte, 2*len(values))
		for ii, v := range values {
			binary.LittleEndian.PutUint16(buf[2*ii:], uint16(int16(math.Round(v))))
		}
		return buf
	case dtypes.Uint16:
		buf := make([]byte, 2*len(values))
		for ii, v := range values {
			binary.LittleEndian.PutUint16(buf[2*ii:], uint16(math.Round(v)))
		}
		return buf
	case dtypes.Int32:
		buf := make([]byte, 4*len(values))
		for ii, v := range values {
			binary.LittleEndian.PutUint32(buf[4*ii:], uint32(int32(math.Round(v))))
		}
		return buf
	}
	exceptions.Panicf("constants of type %s are not supported", dtype)
	return nil
}
