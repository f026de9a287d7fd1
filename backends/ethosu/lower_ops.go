// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"slices"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/pkg/support/xslices"
	"github.com/gomlx/exceptions"
)

// elementwiseArg returns the operand i ready for a TOSA elementwise operator: tensors of lower rank
// get leading axes of dimension 1 (TOSA only broadcasts between equal ranks), and numeric literals
// become constants with all dimensions 1.
func (l *lowerer) elementwiseArg(i int, name string) Operand {
	rank := l.out.Rank()
	op := l.operand(i, name)
	if !op.IsTensor() {
		if !op.Literal.IsNumber() {
			exceptions.Panicf("operand #%d (%s) must be a tensor or a number, got %s", i, name, op)
		}
		value, _ := op.Literal.AsFloat()
		return l.constant(xslices.Prepend([]int{}, 1, rank), value)
	}
	l.checkDType(op)
	op = l.promoteRank(op, rank)
	for axis, dim := range op.Dims() {
		if dim != 1 && dim != l.out.Shape.Dim(axis) {
			exceptions.Panicf("%s can't be broadcast to the result dimensions %v", op, l.out.Dims())
		}
	}
	return op
}

// lowerAdd: out = self + other.
func (l *lowerer) lowerAdd() {
	if alpha := l.floatArg(2, "alpha", 1); alpha != 1 {
		exceptions.Panicf("add with alpha=%g is not supported", alpha)
	}
	a := l.elementwiseArg(0, "self")
	b := l.elementwiseArg(1, "other")
	l.emit(tosa.OpAdd, nil, l.out, a, b)
}

// lowerDiv: out = self * RECIPROCAL(other), since TOSA has no floating point division.
func (l *lowerer) lowerDiv() {
	if !l.out.DType().IsFloat() {
		exceptions.Panicf("division of %s is not supported, only floating point division is", l.out.DType())
	}
	if mode := l.arg(2, "rounding_mode"); !mode.IsNone() {
		exceptions.Panicf("division with rounding_mode=%s is not supported", mode)
	}
	a := l.elementwiseArg(0, "self")
	b := l.elementwiseArg(1, "other")
	reciprocal := l.emit(tosa.OpReciprocal, nil, l.intermediate(b.Dims()), b)
	l.emit(tosa.OpMul, &tosa.MulAttribute{Shift: 0}, l.out, a, reciprocal)
}

// lowerHardtanh: CLAMP to [min_val, max_val], with the bounds in integer and floating point.
func (l *lowerer) lowerHardtanh() {
	input := l.tensorArg(0, "self")
	checkDims(input, l.out.Dims())
	minValue := l.floatArg(1, "min_val", -1)
	maxValue := l.floatArg(2, "max_val", 1)
	if minValue > maxValue {
		exceptions.Panicf("hardtanh with min_val=%g > max_val=%g", minValue, maxValue)
	}
	l.emit(tosa.OpClamp, &tosa.ClampAttribute{
		MinInt: int(minValue), MaxInt: int(maxValue),
		MinFP: float32(minValue), MaxFP: float32(maxValue),
	}, l.out, input)
}

// lowerPermute: TRANSPOSE, with negative axes normalized.
func (l *lowerer) lowerPermute() {
	input := l.tensorArg(0, "self")
	dims := l.intsArg(1, "dims", nil)
	perms := make([]int, len(dims))
	for ii, axis := range dims {
		perms[ii] = axis
		if axis < 0 {
			perms[ii] = axis + input.Rank()
		}
	}
	l.transposeInto(input, perms, l.out)
}

// lowerGetItem: IDENTITY of the first result of a node, the only one lowered for multi-result operations.
func (l *lowerer) lowerGetItem() {
	input := l.tensorArg(0, "")
	if index := l.intArg(1, "", 0); index != 0 {
		exceptions.Panicf("getitem of result #%d is not supported, only the first result of %q is lowered",
			index, input.Name)
	}
	checkDims(input, l.out.Dims())
	l.emit(tosa.OpIdentity, nil, l.out, input)
}

// lowerSoftmax decomposes softmax along the axis in the numerically stable way:
//
//	e = EXP(x - REDUCE_MAX(x))
//	out = e * RECIPROCAL(REDUCE_SUM(e))
func (l *lowerer) lowerSoftmax() {
	input := l.tensorArg(0, "self")
	checkDims(input, l.out.Dims())
	axis := normalizeAxis(l.intArg(1, "dim", -1), input.Rank())
	if l.boolArg(2, "half_to_float", false) {
		exceptions.Panicf("softmax with half_to_float=True is not supported")
	}
	dims := input.Dims()
	reduced := slices.Clone(dims)
	reduced[axis] = 1
	axisAttr := &tosa.AxisAttribute{Axis: axis}

	maxValues := l.emit(tosa.OpReduceMax, axisAttr, l.intermediate(reduced), input)
	shifted := l.emit(tosa.OpSub, nil, l.intermediate(dims), input, maxValues)
	exps := l.emit(tosa.OpExp, nil, l.intermediate(dims), shifted)
	sums := l.emit(tosa.OpReduceSum, axisAttr, l.intermediate(reduced), exps)
	reciprocal := l.emit(tosa.OpReciprocal, nil, l.intermediate(reduced), sums)
	l.emit(tosa.OpMul, &tosa.MulAttribute{Shift: 0}, l.out, exps, reciprocal)
}
