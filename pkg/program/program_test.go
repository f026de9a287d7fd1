// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package program_test

import (
	"testing"

	"github.com/gomlx/ethosu/pkg/core/graph"
	. "github.com/gomlx/ethosu/pkg/core/graph/graphtest"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMixed builds: x -> add(x, w) -> sin (unsupported) -> div(sin, add) -> output(div, add)
func buildMixed() (*program.ExportedProgram, map[string]*graph.Node) {
	b := NewBuilder("mixed")
	x := b.Input("x", F32, 2, 2)
	w := b.Param("fc.weight", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2))
	add := b.Call("aten.add.Tensor", MS(F32, 2, 2), N(x), N(w))
	sin := b.Call("aten.sin.default", MS(F32, 2, 2), N(add))
	div := b.Call("aten.div.Tensor", MS(F32, 2, 2), N(sin), N(add))
	p := b.Output(div, add)
	return p, map[string]*graph.Node{"x": x, "w": w, "add": add, "sin": sin, "div": div}
}

func TestStoredTensor(t *testing.T) {
	p, nodes := buildMixed()
	require.NoError(t, p.Validate())

	value, found := p.StoredTensor(nodes["w"])
	require.True(t, found)
	assert.Equal(t, []float32{1, 2, 3, 4}, tensors.CopyFlatData[float32](value))
	assert.True(t, p.IsParameterOrBuffer(nodes["w"]))
	assert.Equal(t, "p_fc_weight", nodes["w"].Name())

	_, found = p.StoredTensor(nodes["x"])
	assert.False(t, found)
	assert.False(t, p.IsParameterOrBuffer(nodes["x"]))
	assert.False(t, p.IsParameterOrBuffer(nodes["add"]))
}

func TestValidate(t *testing.T) {
	p, _ := buildMixed()
	p.StateDict["fc.weight"] = tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)
	require.ErrorContains(t, p.Validate(), "declared with shape")

	delete(p.StateDict, "fc.weight")
	require.ErrorContains(t, p.Validate(), "missing state dict entry")

	p, _ = buildMixed()
	p.Signature.InputsToBuffers["aten_add_tensor"] = "bn.running_mean"
	require.ErrorContains(t, p.Validate(), "not a placeholder")
}

func TestExtract(t *testing.T) {
	p, nodes := buildMixed()

	// Partition with the add only: its result is used by sin, div and the output.
	extracted, err := program.Extract(p, "part0", []*graph.Node{nodes["add"]})
	require.NoError(t, err)
	g := extracted.Graph
	require.Equal(t, 4, g.NumNodes())
	placeholders := g.Placeholders()
	require.Len(t, placeholders, 2)
	assert.Equal(t, "x", placeholders[0].Name())
	assert.Equal(t, "p_fc_weight", placeholders[1].Name())
	assert.True(t, extracted.IsParameterOrBuffer(placeholders[1]))
	assert.False(t, extracted.IsParameterOrBuffer(placeholders[0]))
	assert.Len(t, extracted.StateDict, 1)
	require.NoError(t, extracted.Validate())

	results := g.OutputNode().Results()
	require.Len(t, results, 1)
	assert.Equal(t, "aten_add_tensor", results[0].Name())

	// Partition with the div: both operands come from outside and become user inputs.
	extracted, err = program.Extract(p, "part1", []*graph.Node{nodes["div"]})
	require.NoError(t, err)
	placeholders = extracted.Graph.Placeholders()
	require.Len(t, placeholders, 2)
	assert.Equal(t, "aten_sin_default", placeholders[0].Name())
	assert.Equal(t, "aten_add_tensor", placeholders[1].Name())
	assert.Len(t, extracted.StateDict, 0)
	assert.Equal(t, "aten_div_tensor", extracted.Graph.OutputNode().Results()[0].Name())

	// Only call nodes can be extracted.
	_, err = program.Extract(p, "bad", []*graph.Node{nodes["x"]})
	require.ErrorContains(t, err, "only call nodes")
}

func TestExtract_KeywordOperandsOrder(t *testing.T) {
	b := NewBuilder("kwargs")
	kwargs := make(map[string]graph.Argument)
	var want []string
	for _, key := range []string{"a", "b", "c", "d", "e", "f"} {
		x := b.Input("x_"+key, F32, 2)
		kwargs[key] = N(x)
		want = append(want, x.Name())
	}
	call := b.CallKw("aten.add.Tensor", MS(F32, 2), nil, kwargs)
	p := b.Output(call)

	for range 20 {
		extracted, err := program.Extract(p, "part0", []*graph.Node{call})
		require.NoError(t, err)
		var got []string
		for _, placeholder := range extracted.Graph.Placeholders() {
			got = append(got, placeholder.Name())
		}
		require.Equal(t, want, got)
	}
}
