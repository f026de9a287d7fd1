// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/backends/ethosu/tosa/reference"
	"github.com/gomlx/ethosu/pkg/core/graph"
	. "github.com/gomlx/ethosu/pkg/core/graph/graphtest"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLower(t *testing.T, p *program.ExportedProgram) *tosa.Module {
	t.Helper()
	m, err := Lower(p)
	require.NoError(t, err)
	_, err = m.Serialize()
	require.NoError(t, err)
	return m
}

func assertGolden(t *testing.T, name string, m *tosa.Module) {
	t.Helper()
	goldie.New(t).Assert(t, name, []byte(m.String()))
}

// evaluate runs m with the reference evaluator, and returns its single output.
func evaluate(t *testing.T, m *tosa.Module, inputs map[string]*reference.Value) *reference.Value {
	t.Helper()
	outputs, err := reference.Evaluate(m, inputs)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	return outputs[m.Outputs()[0]]
}

func assertClose(t *testing.T, want []float64, got []float32, tolerance float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for ii, w := range want {
		g := float64(got[ii])
		require.False(t, math.IsNaN(g) || math.IsInf(g, 0), "element #%d is %g", ii, g)
		assert.InDelta(t, w, g, tolerance*max(1, math.Abs(w)), "element #%d", ii)
	}
}

// checkReshapes verifies that every RESHAPE of the module preserves the element count.
func checkReshapes(t *testing.T, m *tosa.Module) {
	t.Helper()
	for _, op := range m.Operators() {
		if op.Op != tosa.OpReshape {
			continue
		}
		in, out := m.Tensor(op.Inputs[0]), m.Tensor(op.Outputs[0])
		assert.Equal(t, shapes.Make(F32, in.Shape...).Size(), shapes.Make(F32, out.Shape...).Size(), "%s", op)
	}
}

func TestLower_Add(t *testing.T) {
	b := NewBuilder("add")
	x := b.Input("x", F32, 2, 3)
	y := b.Input("y", F32, 3)
	sum := b.Call("aten.add.Tensor", MS(F32, 2, 3), N(x), N(y))
	sum2 := b.Call("aten.add.Tensor", MS(F32, 2, 3), N(sum), graph.FloatArg(2))
	m := mustLower(t, b.Output(sum2))
	assertGolden(t, "add", m)

	got := evaluate(t, m, map[string]*reference.Value{
		"x": reference.NewValue([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		"y": reference.NewValue([]float32{10, 20, 30}, 3),
	})
	assert.Equal(t, []float32{13, 24, 35, 16, 27, 38}, got.Data)
}

func TestLower_Addmm(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	b := NewBuilder("linear")
	x := b.Input("x", F32, 1, 4)
	w := b.Param("fc.weight", RandomTensor(rng, 4, 2))
	bias := b.Param("fc.bias", RandomTensor(rng, 2))
	mm := b.Call("aten.addmm.default", MS(F32, 1, 2), N(bias), N(x), N(w))
	m := mustLower(t, b.Output(mm))
	assertGolden(t, "addmm", m)
	checkReshapes(t, m)
}

// TestLower_AddmmProduct checks the lowering computes bias + input x weight, with a rank-1 and a
// rank-2 bias.
func TestLower_AddmmProduct(t *testing.T) {
	for _, biasDims := range [][]int{{2}, {3, 2}} {
		rng := rand.New(rand.NewPCG(7, uint64(len(biasDims))))
		b := NewBuilder("linear")
		x := b.Input("x", F32, 3, 4)
		wValue, biasValue := RandomTensor(rng, 4, 2), RandomTensor(rng, biasDims...)
		w := b.Param("fc.weight", wValue)
		bias := b.Param("fc.bias", biasValue)
		mm := b.Call("aten.addmm.default", MS(F32, 3, 2), N(bias), N(x), N(w))
		m := mustLower(t, b.Output(mm))
		checkReshapes(t, m)

		xData := RandomFloat32(rng, 12, -2, 2)
		got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(xData, 3, 4)})
		require.Equal(t, []int{3, 2}, got.Dims)

		wData, biasData := tensors.CopyFlatData[float32](wValue), tensors.CopyFlatData[float32](biasValue)
		want := make([]float64, 6)
		for row := range 3 {
			for col := range 2 {
				sum := float64(biasData[col])
				if len(biasDims) == 2 {
					sum = float64(biasData[row*2+col])
				}
				for k := range 4 {
					sum += float64(xData[row*4+k]) * float64(wData[k*2+col])
				}
				want[row*2+col] = sum
			}
		}
		assertClose(t, want, got.Data, 1e-5)
	}
}

func TestLower_Permute(t *testing.T) {
	b := NewBuilder("permute")
	x := b.Input("x", F32, 2, 3, 4)
	perm := b.Call("aten.permute_copy.default", MS(F32, 4, 2, 3), N(x), graph.IntsArg(-1, 0, 1))
	m := mustLower(t, b.Output(perm))
	assertGolden(t, "permute", m)

	data := make([]float32, 24)
	for ii := range data {
		data[ii] = float32(ii)
	}
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(data, 2, 3, 4)})
	assert.Equal(t, float32(1*12+2*4+3), got.At(3, 1, 2))
}

func TestLower_PermuteDuplicateAxis(t *testing.T) {
	b := NewBuilder("permute")
	x := b.Input("x", F32, 2, 3, 4)
	perm := b.Call("aten.permute_copy.default", MS(F32, 2, 2, 3), N(x), graph.IntsArg(0, 0, 1))
	_, err := Lower(b.Output(perm))
	var lowerErr *LoweringError
	require.True(t, errors.As(err, &lowerErr))
	assert.Equal(t, "aten_permute_copy_default", lowerErr.Node.Name())
	assert.ErrorContains(t, err, "duplicated axis")
}

func TestTransposeHelper(t *testing.T) {
	l := &lowerer{caps: capabilities, module: tosa.New()}
	l.module.AddInput("x", []int{2, 3}, tosa.DTypeFP32)
	x := tensorOperand("x", MS(F32, 2, 3))
	l.out = x

	transposed := l.transpose(x, []int{1, 0})
	assert.Equal(t, []int{3, 2}, transposed.Dims())
	for _, tc := range []struct {
		perms []int
		want  string
	}{
		{[]int{0, 0}, "duplicated axis"},
		{[]int{0, 2}, "out of range"},
		{[]int{0}, "must match the rank"},
	} {
		err := exceptions.TryCatch[error](func() { l.transpose(x, tc.perms) })
		require.ErrorContains(t, err, tc.want, "perms=%v", tc.perms)
	}

	err := exceptions.TryCatch[error](func() { l.promoteShape(x, []int{1, 5}) })
	require.ErrorContains(t, err, "element count changes")
	// Failed helpers don't emit anything.
	assert.Len(t, l.module.Operators(), 1)
}

func TestLower_Hardtanh(t *testing.T) {
	b := NewBuilder("hardtanh")
	x := b.Input("x", F32, 2, 2)
	clamp := b.Call("aten.hardtanh.default", MS(F32, 2, 2), N(x), graph.FloatArg(-1.5), graph.IntArg(6))
	m := mustLower(t, b.Output(clamp))
	assertGolden(t, "hardtanh", m)

	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue([]float32{-3, 0.5, 7, 6}, 2, 2)})
	assert.Equal(t, []float32{-1.5, 0.5, 6, 6}, got.Data)
}

// conv2dNCHW is a direct convolution in NCHW layout, with weights [OC, IC/groups, KH, KW].
func conv2dNCHW(x []float32, xDims []int, w []float32, wDims []int, bias []float32, stride, pad, groups int, outDims []int) []float64 {
	n, c, h, wIn := xDims[0], xDims[1], xDims[2], xDims[3]
	oc, icPerGroup, kh, kw := wDims[0], wDims[1], wDims[2], wDims[3]
	ocPerGroup := oc / groups
	oh, ow := outDims[2], outDims[3]
	out := make([]float64, n*oc*oh*ow)
	for b := range n {
		for o := range oc {
			group := o / ocPerGroup
			for oy := range oh {
				for ox := range ow {
					sum := 0.0
					if bias != nil {
						sum = float64(bias[o])
					}
					for ic := range icPerGroup {
						inC := group*icPerGroup + ic
						for ky := range kh {
							for kx := range kw {
								iy, ix := oy*stride+ky-pad, ox*stride+kx-pad
								if iy < 0 || iy >= h || ix < 0 || ix >= wIn {
									continue
								}
								sum += float64(x[((b*c+inC)*h+iy)*wIn+ix]) * float64(w[((o*icPerGroup+ic)*kh+ky)*kw+kx])
							}
						}
					}
					out[((b*oc+o)*oh+oy)*ow+ox] = sum
				}
			}
		}
	}
	return out
}

func convArgs(x, w, bias *graph.Node, stride, padding, groups int) []graph.Argument {
	biasArg := graph.NoneArg()
	if bias != nil {
		biasArg = N(bias)
	}
	return []graph.Argument{
		N(x), N(w), biasArg,
		graph.IntsArg(stride, stride), graph.IntsArg(padding, padding), graph.IntsArg(1, 1),
		graph.BoolArg(false), graph.IntsArg(0, 0), graph.IntArg(groups),
	}
}

func TestLower_Convolution(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	b := NewBuilder("conv")
	x := b.Input("x", F32, 1, 2, 4, 4)
	wValue, biasValue := RandomTensor(rng, 3, 2, 3, 3), RandomTensor(rng, 3)
	w := b.Param("conv.weight", wValue)
	bias := b.Param("conv.bias", biasValue)
	conv := b.Call("aten.convolution.default", MS(F32, 1, 3, 4, 4), convArgs(x, w, bias, 1, 1, 1)...)
	m := mustLower(t, b.Output(conv))
	assertGolden(t, "conv2d", m)

	// The layout transposes around CONV2D compose to the identity: the result is in NCHW.
	ops := m.Operators()
	inPerms := ops[0].Attribute.(*tosa.TransposeAttribute).Perms
	outPerms := ops[len(ops)-1].Attribute.(*tosa.TransposeAttribute).Perms
	for axis := range 4 {
		assert.Equal(t, axis, inPerms[outPerms[axis]])
	}

	xData := RandomFloat32(rng, 32, -1, 1)
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(xData, 1, 2, 4, 4)})
	want := conv2dNCHW(xData, []int{1, 2, 4, 4}, tensors.CopyFlatData[float32](wValue), []int{3, 2, 3, 3},
		tensors.CopyFlatData[float32](biasValue), 1, 1, 1, []int{1, 3, 4, 4})
	assertClose(t, want, got.Data, 1e-5)
}

func TestLower_DepthwiseConvolution(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	b := NewBuilder("depthwise")
	x := b.Input("x", F32, 1, 2, 3, 3)
	wValue := RandomTensor(rng, 4, 1, 3, 3)
	w := b.Param("dw.weight", wValue)
	conv := b.Call("aten.convolution.default", MS(F32, 1, 4, 1, 1), convArgs(x, w, nil, 1, 0, 2)...)
	m := mustLower(t, b.Output(conv))
	assertGolden(t, "depthwise_conv2d", m)
	checkReshapes(t, m)

	xData := RandomFloat32(rng, 18, -1, 1)
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(xData, 1, 2, 3, 3)})
	want := conv2dNCHW(xData, []int{1, 2, 3, 3}, tensors.CopyFlatData[float32](wValue), []int{4, 1, 3, 3},
		nil, 1, 0, 2, []int{1, 4, 1, 1})
	assertClose(t, want, got.Data, 1e-5)
}

func TestLower_ConvolutionUnsupported(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	testCases := []struct {
		name   string
		modify func(args []graph.Argument)
		want   string
	}{
		{"transposed", func(args []graph.Argument) { args[6] = graph.BoolArg(true) }, "transposed convolutions"},
		{"grouped", func(args []graph.Argument) { args[8] = graph.IntArg(3) }, "only depthwise"},
		{"wrong output size", func(args []graph.Argument) { args[4] = graph.IntsArg(0, 0) }, "produces spatial size"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder("conv")
			x := b.Input("x", F32, 1, 6, 4, 4)
			w := b.Param("conv.weight", RandomTensor(rng, 6, 6, 3, 3))
			args := convArgs(x, w, nil, 1, 1, 1)
			tc.modify(args)
			conv := b.Call("aten.convolution.default", MS(F32, 1, 6, 4, 4), args...)
			_, err := Lower(b.Output(conv))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLower_Div(t *testing.T) {
	b := NewBuilder("div")
	x := b.Input("x", F32, 2, 3)
	y := b.Input("y", F32, 2, 3)
	div := b.Call("aten.div.Tensor", MS(F32, 2, 3), N(x), N(y))
	m := mustLower(t, b.Output(div))
	assertGolden(t, "div", m)
	for _, op := range m.Operators() {
		assert.NotEqual(t, tosa.OpIntDiv, op.Op)
	}

	xData := []float32{1, -2, 3.5, 0, 7, -0.25}
	yData := []float32{-0.5, 0.25, -3, 2, 1e-3, -8}
	got := evaluate(t, m, map[string]*reference.Value{
		"x": reference.NewValue(xData, 2, 3),
		"y": reference.NewValue(yData, 2, 3),
	})
	want := make([]float64, len(xData))
	for ii := range want {
		want[ii] = float64(xData[ii]) / float64(yData[ii])
	}
	assertClose(t, want, got.Data, 1e-5)

	// Rounding division isn't lowered.
	b = NewBuilder("div")
	x = b.Input("x", F32, 2)
	div = b.CallKw("aten.div.Tensor", MS(F32, 2), []graph.Argument{N(x), graph.FloatArg(2)},
		map[string]graph.Argument{"rounding_mode": graph.IntArg(0)})
	_, err := Lower(b.Output(div))
	require.ErrorContains(t, err, "rounding_mode")
}

func TestLower_BatchNorm(t *testing.T) {
	b := NewBuilder("bn")
	x := b.Input("x", F32, 1, 2, 2, 2)
	weight := b.Param("bn.weight", tensors.FromFlatDataAndDimensions([]float32{2, 0.5}, 2))
	bias := b.Param("bn.bias", tensors.FromFlatDataAndDimensions([]float32{1, -1}, 2))
	mean := b.Buffer("bn.running_mean", tensors.FromFlatDataAndDimensions([]float32{0.5, -2}, 2))
	variance := b.Buffer("bn.running_var", tensors.FromFlatDataAndDimensions([]float32{4, 0.25}, 2))
	bn := b.Call("aten._native_batch_norm_legit_no_training.default", MS(F32, 1, 2, 2, 2),
		N(x), N(weight), N(bias), N(mean), N(variance), graph.FloatArg(0.1), graph.FloatArg(1e-5))
	item := b.Call("getitem", MS(F32, 1, 2, 2, 2), N(bn), graph.IntArg(0))
	m := mustLower(t, b.Output(item))
	assertGolden(t, "batch_norm", m)

	xData := []float32{1, 2, 3, 4, -1, -2, -3, -4}
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(xData, 1, 2, 2, 2)})
	want := make([]float64, len(xData))
	params := [2][4]float64{{0.5, 4, 2, 1}, {-2, 0.25, 0.5, -1}} // mean, var, weight, bias per channel.
	for ii, v := range xData {
		p := params[ii/4]
		want[ii] = (float64(v)-p[0])/math.Sqrt(p[1]+1e-5)*p[2] + p[3]
	}
	assertClose(t, want, got.Data, 1e-5)
}

func TestLower_BatchNormWithoutAffine(t *testing.T) {
	b := NewBuilder("bn")
	x := b.Input("x", F32, 1, 2, 3)
	mean := b.Buffer("bn.running_mean", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2))
	variance := b.Buffer("bn.running_var", tensors.FromFlatDataAndDimensions([]float32{1, 1}, 2))
	args := []graph.Argument{N(x), graph.NoneArg(), graph.NoneArg(), N(mean), N(variance), graph.FloatArg(0.1), graph.FloatArg(0)}
	bn := b.Call("aten._native_batch_norm_legit_no_training.default", MS(F32, 1, 2, 3), args...)
	m := mustLower(t, b.Output(bn))
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue([]float32{1, 2, 3, 4, 5, 6}, 1, 2, 3)})
	assert.Equal(t, []float32{0, 1, 2, 2, 3, 4}, got.Data)

	args[5] = graph.FloatArg(0.3)
	b2 := NewBuilder("bn")
	x = b2.Input("x", F32, 1, 2, 3)
	args[0] = N(x)
	args[3] = N(b2.Buffer("bn.running_mean", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)))
	args[4] = N(b2.Buffer("bn.running_var", tensors.FromFlatDataAndDimensions([]float32{1, 1}, 2)))
	bn = b2.Call("aten._native_batch_norm_legit_no_training.default", MS(F32, 1, 2, 3), args...)
	_, err := Lower(b2.Output(bn))
	require.ErrorContains(t, err, "momentum")
}

func TestLower_AvgPool2d(t *testing.T) {
	b := NewBuilder("pool")
	x := b.Input("x", F32, 1, 2, 4, 4)
	pool := b.Call("aten.avg_pool2d.default", MS(F32, 1, 2, 2, 2), N(x), graph.IntsArg(2, 2), graph.IntsArg(2, 2))
	m := mustLower(t, b.Output(pool))
	assertGolden(t, "avg_pool2d", m)

	data := make([]float32, 32)
	for ii := range data {
		data[ii] = float32(ii)
	}
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(data, 1, 2, 4, 4)})
	assert.Equal(t, []float32{2.5, 4.5, 10.5, 12.5, 18.5, 20.5, 26.5, 28.5}, got.Data)

	for _, tc := range []struct {
		name string
		args []graph.Argument
		want string
	}{
		{"ceil_mode", []graph.Argument{N(x), graph.IntsArg(2, 2), graph.IntsArg(2, 2), graph.IntsArg(0, 0), graph.BoolArg(true)}, "ceil_mode"},
		{"count_include_pad", []graph.Argument{N(x), graph.IntsArg(3, 3), graph.IntsArg(2, 2), graph.IntsArg(1, 1)}, "count_include_pad"},
		{"divisor_override", []graph.Argument{N(x), graph.IntsArg(2, 2), graph.NoneArg(), graph.IntsArg(0, 0),
			graph.BoolArg(false), graph.BoolArg(true), graph.IntArg(3)}, "divisor_override"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder("pool")
			x := b.Input("x", F32, 1, 2, 4, 4)
			tc.args[0] = N(x)
			pool := b.Call("aten.avg_pool2d.default", MS(F32, 1, 2, 2, 2), tc.args...)
			_, err := Lower(b.Output(pool))
			require.ErrorContains(t, err, tc.want)
		})
	}
}

// softmaxAlong computes the softmax of data, with row-major dimensions dims, along axis.
func softmaxAlong(data []float32, dims []int, axis int) []float64 {
	outer, inner := 1, 1
	for _, d := range dims[:axis] {
		outer *= d
	}
	for _, d := range dims[axis+1:] {
		inner *= d
	}
	size := dims[axis]
	want := make([]float64, len(data))
	for o := range outer {
		for i := range inner {
			at := func(k int) int { return (o*size+k)*inner + i }
			maxValue := math.Inf(-1)
			for k := range size {
				maxValue = max(maxValue, float64(data[at(k)]))
			}
			sum := 0.0
			for k := range size {
				sum += math.Exp(float64(data[at(k)]) - maxValue)
			}
			for k := range size {
				want[at(k)] = math.Exp(float64(data[at(k)])-maxValue) / sum
			}
		}
	}
	return want
}

func TestLower_Softmax(t *testing.T) {
	b := NewBuilder("softmax")
	x := b.Input("x", F32, 2, 4)
	softmax := b.Call("aten._softmax.default", MS(F32, 2, 4), N(x), graph.IntArg(-1), graph.BoolArg(false))
	m := mustLower(t, b.Output(softmax))
	assertGolden(t, "softmax", m)

	// Large inputs would overflow EXP without the max subtraction.
	xData := []float32{1000, 1001, 1002, 1003, -1000, 0, 1000, 50}
	got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(xData, 2, 4)})
	assertClose(t, []float64{0.0320586, 0.0871443, 0.2368828, 0.6439143, 0, 0, 1, 0}, got.Data, 1e-5)
	assertClose(t, softmaxAlong(xData, []int{2, 4}, 1), got.Data, 1e-6)

	rng := rand.New(rand.NewPCG(42, 7))
	dims := []int{3, 4, 5}
	for _, axis := range []int{-1, 0, 1, 2} {
		t.Run(fmt.Sprintf("axis=%d", axis), func(t *testing.T) {
			b := NewBuilder("softmax")
			x := b.Input("x", F32, dims...)
			softmax := b.Call("aten._softmax.default", MS(F32, dims...), N(x), graph.IntArg(axis), graph.BoolArg(false))
			m := mustLower(t, b.Output(softmax))
			checkReshapes(t, m)
			for range 3 {
				xData := RandomFloat32(rng, 3*4*5, -500, 500)
				got := evaluate(t, m, map[string]*reference.Value{"x": reference.NewValue(xData, dims...)})
				normalized := axis
				if normalized < 0 {
					normalized += len(dims)
				}
				assertClose(t, softmaxAlong(xData, dims, normalized), got.Data, 1e-4)
			}
		})
	}
}

func TestLower_GetItemOfOtherResult(t *testing.T) {
	b := NewBuilder("getitem")
	x := b.Input("x", F32, 2)
	item := b.Call("getitem", MS(F32, 2), N(x), graph.IntArg(1))
	_, err := Lower(b.Output(item))
	require.ErrorContains(t, err, "getitem of result #1")
}

func TestLower_Errors(t *testing.T) {
	t.Run("unsupported operation", func(t *testing.T) {
		b := NewBuilder("sin")
		x := b.Input("x", F32, 2)
		sum := b.Call("aten.add.Tensor", MS(F32, 2), N(x), N(x))
		sin := b.Call("aten.sin.default", MS(F32, 2), N(sum))
		_, err := Lower(b.Output(sin))
		var lowerErr *LoweringError
		require.True(t, errors.As(err, &lowerErr))
		assert.Equal(t, sin, lowerErr.Node)
		assert.ErrorContains(t, err, "not supported by the Ethos-U delegate")
		// The partial module has everything lowered before the failing node.
		require.NotNil(t, lowerErr.Module)
		assert.NotNil(t, lowerErr.Module.Tensor("aten_add_tensor"))
		assert.Len(t, lowerErr.Module.Operators(), 1)
		assert.Contains(t, lowerErr.Describe(), "aten.sin.default")
	})

	t.Run("element type mismatch", func(t *testing.T) {
		b := NewBuilder("mismatch")
		x := b.Input("x", F32, 2)
		y := b.Input("y", I8, 2)
		sum := b.Call("aten.add.Tensor", MS(F32, 2), N(x), N(y))
		_, err := Lower(b.Output(sum))
		require.ErrorContains(t, err, "element type mismatch")
	})

	t.Run("alpha", func(t *testing.T) {
		b := NewBuilder("alpha")
		x := b.Input("x", F32, 2)
		sum := b.Call("aten.add.Tensor", MS(F32, 2), N(x), N(x), graph.FloatArg(2))
		_, err := Lower(b.Output(sum))
		require.ErrorContains(t, err, "alpha=2")
	})

	t.Run("list operand", func(t *testing.T) {
		b := NewBuilder("list")
		x := b.Input("x", F32, 2)
		sum := b.Call("aten.add.Tensor", MS(F32, 2), graph.NodesArg(x, x), N(x))
		_, err := Lower(b.Output(sum))
		var classErr *ClassificationError
		require.True(t, errors.As(err, &classErr))
		assert.Equal(t, sum, classErr.Node)
		var lowerErr *LoweringError
		assert.False(t, errors.As(err, &lowerErr))
	})

	t.Run("stored value mismatch", func(t *testing.T) {
		b := NewBuilder("param")
		w := b.Param("w", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2))
		sum := b.Call("aten.add.Tensor", MS(F32, 2), N(w), N(w))
		p := b.Output(sum)
		p.StateDict["w"] = tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
		_, err := Lower(p)
		require.ErrorContains(t, err, "doesn't match its declared shape")
	})
}
