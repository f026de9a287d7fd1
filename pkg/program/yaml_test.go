// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package program_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/ethosu/pkg/core/tensors/numpy"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linearYAML = `
name: linear
state_dict: linear.npz
signature:
  inputs_to_parameters: {p_weight: fc.weight, p_bias: fc.bias}
nodes:
  - {name: x, op: placeholder, dtype: float32, shape: [1, 4]}
  - {name: p_weight, op: placeholder, dtype: float32, shape: [4, 2]}
  - {name: p_bias, op: placeholder, dtype: float32, shape: [2]}
  - name: aten_addmm_default
    op: call_function
    target: aten.addmm.default
    args: [p_bias, x, p_weight]
    dtype: float32
    shape: [1, 2]
  - name: aten_hardtanh_default
    op: call_function
    target: aten.hardtanh.default
    args: [aten_addmm_default, -1.5, 2]
    dtype: float32
    shape: [1, 2]
    meta: {stack: "linear.py:12"}
  - name: aten__softmax_default
    op: call_function
    target: aten._softmax.default
    args: [aten_hardtanh_default, -1, false]
    kwargs: {scales: [0.5, 1], pad: [1, 2], unused: null}
    dtype: float32
    shape: [1, 2]
  - {name: output, op: output, args: [[aten__softmax_default]]}
`

func writeLinear(t *testing.T) string {
	dir := t.TempDir()
	entries := []numpy.Entry{
		{Name: "fc.weight", Tensor: tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 4, 2)},
		{Name: "fc.bias", Tensor: tensors.FromFlatDataAndDimensions([]float32{0.5, -0.5}, 2)},
	}
	require.NoError(t, numpy.ToNpzFile(entries, filepath.Join(dir, "linear.npz")))
	yamlPath := filepath.Join(dir, "linear.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(linearYAML), 0o644))
	return yamlPath
}

func TestLoad(t *testing.T) {
	p, err := program.Load(writeLinear(t))
	require.NoError(t, err)
	assert.Equal(t, "linear", p.Name)
	g := p.Graph
	require.Equal(t, 7, g.NumNodes())

	addmm := g.NodeByName("aten_addmm_default")
	require.NotNil(t, addmm)
	assert.Equal(t, backends.OpTypeAddmm, addmm.OpType())
	assert.Equal(t, []int{1, 2}, addmm.Shape().Dimensions)
	assert.Equal(t, dtypes.Float32, addmm.DType())
	assert.Equal(t, []*graph.Node{g.NodeByName("p_bias"), g.NodeByName("x"), g.NodeByName("p_weight")}, addmm.Inputs())

	hardtanh := g.NodeByName("aten_hardtanh_default")
	assert.Equal(t, graph.ArgumentKindFloat, hardtanh.Arg(1).Kind)
	assert.Equal(t, -1.5, hardtanh.Arg(1).Float)
	assert.Equal(t, graph.ArgumentKindInt, hardtanh.Arg(2).Kind)
	assert.Equal(t, "linear.py:12", hardtanh.Meta("stack"))

	softmax := g.NodeByName("aten__softmax_default")
	assert.Equal(t, -1, softmax.Arg(1).Int)
	assert.Equal(t, graph.ArgumentKindBool, softmax.Arg(2).Kind)
	scales, _ := softmax.Kwarg("scales")
	assert.Equal(t, []float64{0.5, 1}, scales.Floats)
	pad, _ := softmax.Kwarg("pad")
	assert.Equal(t, []int{1, 2}, pad.Ints)
	unused, _ := softmax.Kwarg("unused")
	assert.True(t, unused.IsNone())

	bias, found := p.StoredTensor(g.NodeByName("p_bias"))
	require.True(t, found)
	assert.Equal(t, []float32{0.5, -0.5}, tensors.CopyFlatData[float32](bias))
	assert.Equal(t, []*graph.Node{softmax}, g.OutputNode().Results())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p, err := program.Load(writeLinear(t))
	require.NoError(t, err)

	savedPath := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, program.Save(p, savedPath))
	_, err = os.Stat(filepath.Join(filepath.Dir(savedPath), "saved.npz"))
	require.NoError(t, err)

	p2, err := program.Load(savedPath)
	require.NoError(t, err)
	assert.Equal(t, p.Graph.String(), p2.Graph.String())
	assert.Equal(t, p.Signature, p2.Signature)
	require.Len(t, p2.StateDict, 2)
	for key, value := range p.StateDict {
		assert.True(t, value.Equal(p2.StateDict[key]), "state dict entry %q differs", key)
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name, yaml, want string
	}{
		{"unknown field", "name: x\nnodez: []\n", "failed to parse"},
		{"unknown op", "name: x\nnodes:\n  - {name: a, op: magic}\n", "unknown op"},
		{"undefined reference", "name: x\nnodes:\n  - {name: a, op: call_function, target: aten.add.Tensor, args: [b, c]}\n", "undefined node"},
		{"bad dtype", "name: x\nnodes:\n  - {name: a, op: placeholder, dtype: float8, shape: [1]}\n", "unknown dtype"},
		{"no output", "name: x\nnodes:\n  - {name: a, op: placeholder, dtype: float32, shape: [1]}\n", "no output node"},
		{"mixed list", "name: x\nnodes:\n  - {name: a, op: placeholder, dtype: float32, shape: [1]}\n" +
			"  - {name: b, op: call_function, target: aten.add.Tensor, args: [[a, 1]]}\n", "mixes"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := program.Parse([]byte(tc.yaml), t.TempDir())
			require.ErrorContains(t, err, tc.want)
		})
	}
}
