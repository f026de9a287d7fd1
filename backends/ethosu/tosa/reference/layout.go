// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"slices"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

func init() {
	executors[tosa.OpReshape] = execReshape
	executors[tosa.OpTranspose] = execTranspose
	executors[tosa.OpMatMul] = execMatMul
	executors[tosa.OpConv2D] = execConv2D
	executors[tosa.OpDepthwiseConv2D] = execDepthwiseConv2D
	executors[tosa.OpAvgPool2D] = execAvgPool2D
}

func execReshape(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	newShape := op.Attribute.(*tosa.ReshapeAttribute).NewShape
	if size(newShape) != len(inputs[0].Data) {
		exceptions.Panicf("RESHAPE of %v to %v changes the element count", inputs[0].Dims, newShape)
	}
	return &Value{Dims: slices.Clone(newShape), Data: slices.Clone(inputs[0].Data)}
}

func execTranspose(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	x := inputs[0]
	perms := op.Attribute.(*tosa.TransposeAttribute).Perms
	permuted, err := x.Shape().Permute(perms)
	if err != nil {
		panic(errors.WithMessage(err, "TRANSPOSE"))
	}
	out := zeros(permuted.Dimensions)
	xStrides := x.Shape().Strides()
	for ii, indices := range out.Shape().Iter() {
		flat := 0
		for axis, idx := range indices {
			flat += idx * xStrides[perms[axis]]
		}
		out.Data[ii] = x.Data[flat]
	}
	return out
}

// execMatMul: [B, M, K] x [B, K, N] -> [B, M, N].
func execMatMul(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	a, b := inputs[0], inputs[1]
	batch, m, k, n := a.Dims[0], a.Dims[1], a.Dims[2], b.Dims[2]
	if b.Dims[0] != batch || b.Dims[1] != k {
		exceptions.Panicf("MATMUL of incompatible operands %v and %v", a.Dims, b.Dims)
	}
	out := zeros([]int{batch, m, n})
	for bi := range batch {
		for row := range m {
			for col := range n {
				var sum float32
				for kk := range k {
					sum += a.At(bi, row, kk) * b.At(bi, kk, col)
				}
				out.Data[(bi*m+row)*n+col] = sum
			}
		}
	}
	return out
}

// window describes the sliding window of convolutions and pooling over an NHWC input.
type window struct {
	kernel, stride, dilation [2]int
	padTop, padLeft          int
}

func (w window) inputPosition(outPos, kernelPos, axis int) int {
	pad := w.padTop
	if axis == 1 {
		pad = w.padLeft
	}
	return outPos*w.stride[axis] + kernelPos*w.dilation[axis] - pad
}

// execConv2D: input [N, IH, IW, IC], weight [OC, KH, KW, IC], bias [OC] -> [N, OH, OW, OC].
func execConv2D(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	x, weight, bias := inputs[0], inputs[1], inputs[2]
	attr := op.Attribute.(*tosa.ConvAttribute)
	w := window{
		kernel:   [2]int{weight.Dims[1], weight.Dims[2]},
		stride:   [2]int{attr.Stride[0], attr.Stride[1]},
		dilation: [2]int{attr.Dilation[0], attr.Dilation[1]},
		padTop:   attr.Pad[0], padLeft: attr.Pad[2],
	}
	inH, inW, inC := x.Dims[1], x.Dims[2], x.Dims[3]
	out := zeros(outDims)
	for n := range outDims[0] {
		for oy := range outDims[1] {
			for ox := range outDims[2] {
				for oc := range outDims[3] {
					sum := bias.Data[oc]
					for ky := range w.kernel[0] {
						iy := w.inputPosition(oy, ky, 0)
						if iy < 0 || iy >= inH {
							continue
						}
						for kx := range w.kernel[1] {
							ix := w.inputPosition(ox, kx, 1)
							if ix < 0 || ix >= inW {
								continue
							}
							for ic := range inC {
								sum += x.At(n, iy, ix, ic) * weight.At(oc, ky, kx, ic)
							}
						}
					}
					out.Data[((n*outDims[1]+oy)*outDims[2]+ox)*outDims[3]+oc] = sum
				}
			}
		}
	}
	return out
}

// execDepthwiseConv2D: input [N, IH, IW, C], weight [KH, KW, C, M], bias [C*M] -> [N, OH, OW, C*M].
func execDepthwiseConv2D(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	x, weight, bias := inputs[0], inputs[1], inputs[2]
	attr := op.Attribute.(*tosa.ConvAttribute)
	w := window{
		kernel:   [2]int{weight.Dims[0], weight.Dims[1]},
		stride:   [2]int{attr.Stride[0], attr.Stride[1]},
		dilation: [2]int{attr.Dilation[0], attr.Dilation[1]},
		padTop:   attr.Pad[0], padLeft: attr.Pad[2],
	}
	inH, inW, channels, multiplier := x.Dims[1], x.Dims[2], weight.Dims[2], weight.Dims[3]
	out := zeros(outDims)
	for n := range outDims[0] {
		for oy := range outDims[1] {
			for ox := range outDims[2] {
				for c := range channels {
					for m := range multiplier {
						oc := c*multiplier + m
						sum := bias.Data[oc]
						for ky := range w.kernel[0] {
							iy := w.inputPosition(oy, ky, 0)
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := range w.kernel[1] {
								ix := w.inputPosition(ox, kx, 1)
								if ix < 0 || ix >= inW {
									continue
								}
								sum += x.At(n, iy, ix, c) * weight.At(ky, kx, c, m)
							}
						}
						out.Data[((n*outDims[1]+oy)*outDims[2]+ox)*outDims[3]+oc] = sum
					}
				}
			}
		}
	}
	return out
}

// execAvgPool2D averages [N, IH, IW, C] windows. Padded positions are not counted.
func execAvgPool2D(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	x := inputs[0]
	attr := op.Attribute.(*tosa.PoolAttribute)
	w := window{
		kernel:   [2]int{attr.Kernel[0], attr.Kernel[1]},
		stride:   [2]int{attr.Stride[0], attr.Stride[1]},
		dilation: [2]int{1, 1},
		padTop:   attr.Pad[0], padLeft: attr.Pad[2],
	}
	inH, inW := x.Dims[1], x.Dims[2]
	out := zeros(outDims)
	for n := range outDims[0] {
		for oy := range outDims[1] {
			for ox := range outDims[2] {
				for c := range outDims[3] {
					var sum float32
					count := 0
					for ky := range w.kernel[0] {
						iy := w.inputPosition(oy, ky, 0)
						if iy < 0 || iy >= inH {
							continue
						}
						for kx := range w.kernel[1] {
							ix := w.inputPosition(ox, kx, 1)
							if ix < 0 || ix >= inW {
								continue
							}
							sum += x.At(n, iy, ix, c)
							count++
						}
					}
					if count > 0 {
						sum /= float32(count)
					}
					out.Data[((n*outDims[1]+oy)*outDims[2]+ox)*outDims[3]+c] = sum
				}
			}
		}
	}
	return out
}
