// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp32Bytes(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	for ii, v := range values {
		binary.LittleEndian.PutUint32(buf[4*ii:], math.Float32bits(v))
	}
	return buf
}

func TestEvaluate_Elementwise(t *testing.T) {
	m := tosa.New()
	m.AddInput("x", []int{2, 3}, tosa.DTypeFP32)
	m.AddConst("c", []int{1, 3}, tosa.DTypeFP32, fp32Bytes(10, 20, 30))
	m.AddTensor("sum", []int{2, 3}, tosa.DTypeFP32)
	m.AddTensor("clamped", []int{2, 3}, tosa.DTypeFP32)
	m.AddTensor("max", []int{2, 1}, tosa.DTypeFP32)
	m.AddOperator(tosa.OpAdd, nil, []string{"x", "c"}, []string{"sum"})
	m.AddOperator(tosa.OpClamp, &tosa.ClampAttribute{MinInt: 0, MaxInt: 25, MinFP: 0, MaxFP: 25},
		[]string{"sum"}, []string{"clamped"})
	m.AddOperator(tosa.OpReduceMax, &tosa.AxisAttribute{Axis: 1}, []string{"x"}, []string{"max"})
	m.MarkOutput("clamped")
	m.MarkOutput("max")

	outputs, err := Evaluate(m, map[string]*Value{"x": NewValue([]float32{1, 2, 3, -4, -5, -6}, 2, 3)})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 25, 6, 15, 24}, outputs["clamped"].Data)
	assert.Equal(t, []int{2, 1}, outputs["max"].Dims)
	assert.Equal(t, []float32{3, -4}, outputs["max"].Data)
}

func TestEvaluate_Layout(t *testing.T) {
	m := tosa.New()
	m.AddInput("x", []int{2, 3}, tosa.DTypeFP32)
	m.AddTensor("xt", []int{3, 2}, tosa.DTypeFP32)
	m.AddTensor("a", []int{1, 3, 2}, tosa.DTypeFP32)
	m.AddConst("b", []int{1, 2, 1}, tosa.DTypeFP32, fp32Bytes(1, -1))
	m.AddTensor("mm", []int{1, 3, 1}, tosa.DTypeFP32)
	m.AddOperator(tosa.OpTranspose, &tosa.TransposeAttribute{Perms: []int{1, 0}}, []string{"x"}, []string{"xt"})
	m.AddOperator(tosa.OpReshape, &tosa.ReshapeAttribute{NewShape: []int{1, 3, 2}}, []string{"xt"}, []string{"a"})
	m.AddOperator(tosa.OpMatMul, &tosa.MatMulAttribute{}, []string{"a", "b"}, []string{"mm"})
	m.MarkOutput("xt")
	m.MarkOutput("mm")

	outputs, err := Evaluate(m, map[string]*Value{"x": NewValue([]float32{1, 2, 3, 4, 5, 6}, 2, 3)})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, outputs["xt"].Data)
	assert.Equal(t, []float32{-3, -3, -3}, outputs["mm"].Data)
}

func TestEvaluate_AvgPoolAndConv(t *testing.T) {
	m := tosa.New()
	m.AddInput("x", []int{1, 2, 2, 1}, tosa.DTypeFP32)
	m.AddTensor("pooled", []int{1, 2, 2, 1}, tosa.DTypeFP32)
	m.AddConst("w", []int{1, 1, 1, 1}, tosa.DTypeFP32, fp32Bytes(2))
	m.AddConst("bias", []int{1}, tosa.DTypeFP32, fp32Bytes(0.5))
	m.AddTensor("conv", []int{1, 2, 2, 1}, tosa.DTypeFP32)
	m.AddOperator(tosa.OpAvgPool2D, &tosa.PoolAttribute{
		Pad: []int{0, 1, 0, 1}, Kernel: []int{2, 2}, Stride: []int{1, 1}, AccumDType: tosa.DTypeFP32,
	}, []string{"x"}, []string{"pooled"})
	m.AddOperator(tosa.OpConv2D, &tosa.ConvAttribute{
		Pad: []int{0, 0, 0, 0}, Stride: []int{1, 1}, Dilation: []int{1, 1},
	}, []string{"x", "w", "bias"}, []string{"conv"})
	m.MarkOutput("pooled")
	m.MarkOutput("conv")

	outputs, err := Evaluate(m, map[string]*Value{"x": NewValue([]float32{1, 2, 3, 4}, 1, 2, 2, 1)})
	require.NoError(t, err)
	// Padded positions are excluded from the average.
	assert.Equal(t, []float32{2.5, 3, 3.5, 4}, outputs["pooled"].Data)
	assert.Equal(t, []float32{2.5, 4.5, 6.5, 8.5}, outputs["conv"].Data)
}

func TestEvaluate_Errors(t *testing.T) {
	m := tosa.New()
	m.AddInput("x", []int{2}, tosa.DTypeFP32)
	m.AddTensor("y", []int{2}, tosa.DTypeFP32)
	m.AddOperator(tosa.OpSigmoid, nil, []string{"x"}, []string{"y"})
	m.MarkOutput("y")

	_, err := Evaluate(m, map[string]*Value{})
	require.ErrorContains(t, err, "missing value for input")
	_, err = Evaluate(m, map[string]*Value{"x": NewValue([]float32{1, 2, 3}, 3)})
	require.ErrorContains(t, err, "the module expects")
	_, err = Evaluate(m, map[string]*Value{"x": NewValue([]float32{1, 2}, 2)})
	require.ErrorContains(t, err, "not supported by the reference evaluator")
}
