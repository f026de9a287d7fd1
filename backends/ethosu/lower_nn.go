// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"math"
	"slices"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/exceptions"
)

// Layout permutations between the NCHW layout of the source graph and the NHWC layout of TOSA.
var (
	nchwToNHWC = []int{0, 2, 3, 1}
	nhwcToNCHW = []int{0, 3, 1, 2}
)

// lowerAddmm: out = bias + input x weight, with a rank-3 MATMUL.
func (l *lowerer) lowerAddmm() {
	if beta := l.floatArg(3, "beta", 1); beta != 1 {
		exceptions.Panicf("addmm with beta=%g is not supported", beta)
	}
	if alpha := l.floatArg(4, "alpha", 1); alpha != 1 {
		exceptions.Panicf("addmm with alpha=%g is not supported", alpha)
	}
	bias := l.tensorArg(0, "self")
	input := l.tensorArg(1, "mat1")
	weight := l.tensorArg(2, "mat2")
	if input.Rank() != 2 || weight.Rank() != 2 {
		exceptions.Panicf("addmm requires matrices, got %s and %s", input, weight)
	}
	m, k, n := input.Shape.Dim(0), input.Shape.Dim(1), weight.Shape.Dim(1)
	if weight.Shape.Dim(0) != k {
		exceptions.Panicf("addmm of incompatible matrices %s and %s", input, weight)
	}
	if bias.Rank() > 3 {
		exceptions.Panicf("addmm bias %s has rank larger than 3", bias)
	}

	mmInput := l.promoteShape(input, []int{1, m, k})
	mmWeight := l.promoteShape(weight, []int{1, k, n})
	product := l.emit(tosa.OpMatMul, &tosa.MatMulAttribute{AZp: 0, BZp: 0}, l.intermediate([]int{1, m, n}), mmInput, mmWeight)
	mmBias := l.promoteRank(bias, 3)
	for axis, dim := range mmBias.Dims() {
		if dim != 1 && dim != product.Shape.Dim(axis) {
			exceptions.Panicf("addmm bias %s can't be broadcast to [%d %d]", bias, m, n)
		}
	}
	sum := l.emit(tosa.OpAdd, nil, l.intermediate([]int{1, m, n}), mmBias, product)
	l.reshape(sum, l.out)
}

// lowerConvolution: CONV2D (or DEPTHWISE_CONV2D if groups equals the input channels) in NHWC, between
// layout transposes.
func (l *lowerer) lowerConvolution() {
	if l.boolArg(6, "transposed", false) {
		exceptions.Panicf("transposed convolutions are not supported")
	}
	input := l.tensorArg(0, "input")
	weight := l.tensorArg(1, "weight")
	if input.Rank() != 4 || weight.Rank() != 4 || l.out.Rank() != 4 {
		exceptions.Panicf("only 2D convolutions are supported, got input %s, weight %s and result %s", input, weight, l.out)
	}
	stride := pair(l.intsArg(3, "stride", []int{1}), "stride")
	padding := pair(l.intsArg(4, "padding", []int{0}), "padding")
	dilation := pair(l.intsArg(5, "dilation", []int{1}), "dilation")
	groups := l.intArg(8, "groups", 1)

	batch, channels := input.Shape.Dim(0), input.Shape.Dim(1)
	outChannels, kernelH, kernelW := weight.Shape.Dim(0), weight.Shape.Dim(2), weight.Shape.Dim(3)
	outDims := l.out.Dims()
	if outDims[0] != batch || outDims[1] != outChannels {
		exceptions.Panicf("convolution of %s with %s can't produce %s", input, weight, l.out)
	}
	for ii, kernel := range []int{kernelH, kernelW} {
		inSize := input.Shape.Dim(2 + ii)
		expected := (inSize+2*padding[ii]-dilation[ii]*(kernel-1)-1)/stride[ii] + 1
		if outDims[2+ii] != expected {
			exceptions.Panicf("convolution of %s with %s (stride %v, padding %v, dilation %v) produces spatial size %d, but the result is %s",
				input, weight, stride, padding, dilation, expected, l.out)
		}
	}

	bias, hasBias := l.optionalTensorArg(2, "bias")
	if hasBias {
		checkDims(bias, []int{outChannels})
	} else {
		bias = l.constant([]int{outChannels}, 0)
	}

	attr := &tosa.ConvAttribute{
		Pad:      []int{padding[0], padding[0], padding[1], padding[1]},
		Stride:   stride,
		Dilation: dilation,
	}
	nhwcDims := []int{outDims[0], outDims[2], outDims[3], outDims[1]}
	nhwcInput := l.transpose(input, nchwToNHWC)
	var conv Operand
	switch {
	case groups == 1:
		if weight.Shape.Dim(1) != channels {
			exceptions.Panicf("convolution weight %s doesn't match the %d input channels", weight, channels)
		}
		ohwiWeight := l.transpose(weight, nchwToNHWC)
		conv = l.emit(tosa.OpConv2D, attr, l.intermediate(nhwcDims), nhwcInput, ohwiWeight, bias)
	case groups == channels:
		if weight.Shape.Dim(1) != 1 || outChannels%channels != 0 {
			exceptions.Panicf("depthwise convolution weight %s doesn't match the %d input channels", weight, channels)
		}
		multiplier := outChannels / channels
		hwcmWeight := l.transpose(weight, []int{2, 3, 0, 1})
		hwcmWeight = l.promoteShape(hwcmWeight, []int{kernelH, kernelW, channels, multiplier})
		conv = l.emit(tosa.OpDepthwiseConv2D, attr, l.intermediate(nhwcDims), nhwcInput, hwcmWeight, bias)
	default:
		exceptions.Panicf("grouped convolution with groups=%d is not supported, only depthwise (groups equal to the %d input channels)",
			groups, channels)
	}
	l.transposeInto(conv, nhwcToNCHW, l.out)
}

// batchNormMomentum is the only momentum accepted: exported inference graphs always carry the default.
const batchNormMomentum = 0.1

// lowerBatchNorm normalizes with the running statistics:
//
//	out = (input - mean) * RSQRT(var + eps) [* weight] [+ bias]
//
// with the per-channel values reshaped to [1, C, 1, ...] to broadcast over the input.
func (l *lowerer) lowerBatchNorm() {
	input := l.tensorArg(0, "input")
	checkDims(input, l.out.Dims())
	if input.Rank() < 2 {
		exceptions.Panicf("batch norm requires an input of rank >= 2, got %s", input)
	}
	weight, hasWeight := l.optionalTensorArg(1, "weight")
	bias, hasBias := l.optionalTensorArg(2, "bias")
	mean := l.tensorArg(3, "running_mean")
	variance := l.tensorArg(4, "running_var")
	if momentum := l.floatArg(5, "momentum", batchNormMomentum); math.Abs(momentum-batchNormMomentum) > 1e-9 {
		exceptions.Panicf("batch norm with momentum=%g is not supported, it must be %g", momentum, batchNormMomentum)
	}
	eps := l.floatArg(6, "eps", 1e-5)

	dims := input.Dims()
	channels := dims[1]
	for _, op := range []Operand{mean, variance} {
		checkDims(op, []int{channels})
	}
	broadcast := slices.Repeat([]int{1}, input.Rank())
	broadcast[1] = channels

	mul := &tosa.MulAttribute{Shift: 0}
	meanB := l.promoteShape(mean, broadcast)
	centered := l.emit(tosa.OpSub, nil, l.intermediate(dims), input, meanB)
	epsilon := l.constant([]int{1}, eps)
	shifted := l.emit(tosa.OpAdd, nil, l.intermediate(variance.Dims()), variance, epsilon)
	invStd := l.emit(tosa.OpRsqrt, nil, l.intermediate(variance.Dims()), shifted)
	invStdB := l.promoteShape(invStd, broadcast)
	result := l.emit(tosa.OpMul, mul, l.resultOrIntermediate(!hasWeight && !hasBias, dims), centered, invStdB)
	if hasWeight {
		checkDims(weight, []int{channels})
		weightB := l.promoteShape(weight, broadcast)
		result = l.emit(tosa.OpMul, mul, l.resultOrIntermediate(!hasBias, dims), result, weightB)
	}
	if hasBias {
		checkDims(bias, []int{channels})
		biasB := l.promoteShape(bias, broadcast)
		l.emit(tosa.OpAdd, nil, l.out, result, biasB)
	}
}

// lowerAvgPool2d: AVG_POOL2D in NHWC, between layout transposes, accumulating in FP32.
func (l *lowerer) lowerAvgPool2d() {
	input := l.tensorArg(0, "self")
	if input.Rank() != 4 || l.out.Rank() != 4 {
		exceptions.Panicf("avg_pool2d requires NCHW tensors, got %s and result %s", input, l.out)
	}
	kernel := pair(l.intsArg(1, "kernel_size", nil), "kernel_size")
	stride := pair(l.intsArg(2, "stride", kernel), "stride")
	padding := pair(l.intsArg(3, "padding", []int{0}), "padding")
	if l.boolArg(4, "ceil_mode", false) {
		exceptions.Panicf("avg_pool2d with ceil_mode=True is not supported")
	}
	if l.boolArg(5, "count_include_pad", true) && (padding[0] != 0 || padding[1] != 0) {
		exceptions.Panicf("avg_pool2d with count_include_pad=True and padding %v is not supported", padding)
	}
	if divisor := l.arg(6, "divisor_override"); !divisor.IsNone() {
		exceptions.Panicf("avg_pool2d with divisor_override=%s is not supported", divisor)
	}

	outDims := l.out.Dims()
	if outDims[0] != input.Shape.Dim(0) || outDims[1] != input.Shape.Dim(1) {
		exceptions.Panicf("avg_pool2d of %s can't produce %s", input, l.out)
	}
	for ii := range 2 {
		expected := (input.Shape.Dim(2+ii)+2*padding[ii]-kernel[ii])/stride[ii] + 1
		if outDims[2+ii] != expected {
			exceptions.Panicf("avg_pool2d of %s (kernel %v, stride %v, padding %v) produces spatial size %d, but the result is %s",
				input, kernel, stride, padding, expected, l.out)
		}
	}

	attr := &tosa.PoolAttribute{
		Pad:        []int{padding[0], padding[0], padding[1], padding[1]},
		Kernel:     kernel,
		Stride:     stride,
		AccumDType: tosa.DTypeFP32,
	}
	nhwcDims := []int{outDims[0], outDims[2], outDims[3], outDims[1]}
	nhwcInput := l.transpose(input, nchwToNHWC)
	pooled := l.emit(tosa.OpAvgPool2D, attr, l.intermediate(nhwcDims), nhwcInput)
	l.transposeInto(pooled, nhwcToNCHW, l.out)
}
