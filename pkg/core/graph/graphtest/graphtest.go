// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities to build small exported programs for packages that depend on
// the graph package.
package graphtest

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/gomlx/gopjrt/dtypes"
)

// Aliases used to keep tests short.
var (
	F32 = dtypes.Float32
	F16 = dtypes.Float16
	I8  = dtypes.Int8
	I32 = dtypes.Int32
	MS  = shapes.Make
)

// N is a shortcut to graph.NodeArg.
func N(n *graph.Node) graph.Argument { return graph.NodeArg(n) }

// Builder builds an exported program, naming call nodes after their targets the way exported graphs do.
type Builder struct {
	Program *program.ExportedProgram
	Graph   *graph.Graph
	names   map[string]int
}

// NewBuilder creates a Builder for a program with the given name.
func NewBuilder(name string) *Builder {
	g := graph.New()
	return &Builder{Program: program.New(name, g), Graph: g, names: make(map[string]int)}
}

// uniqueName returns base, or base_<n> if it was already used.
func (b *Builder) uniqueName(base string) string {
	count := b.names[base]
	b.names[base] = count + 1
	if count == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, count)
}

// NameForTarget converts a target like "aten.add.Tensor" to the node name "aten_add_tensor".
func NameForTarget(target string) string {
	return strings.ToLower(strings.ReplaceAll(target, ".", "_"))
}

// Input adds a user input placeholder.
func (b *Builder) Input(name string, dtype dtypes.DType, dims ...int) *graph.Node {
	return b.Graph.Placeholder(b.uniqueName(name), shapes.Make(dtype, dims...))
}

// Param adds a parameter placeholder named "p_<key>" (with dots replaced), stored under key.
func (b *Builder) Param(key string, value *tensors.Tensor) *graph.Node {
	n := b.Graph.Placeholder(b.uniqueName("p_"+NameForTarget(key)), value.Shape())
	b.Program.AddParameter(n, key, value)
	return n
}

// Buffer adds a buffer placeholder named "b_<key>" (with dots replaced), stored under key.
func (b *Builder) Buffer(key string, value *tensors.Tensor) *graph.Node {
	n := b.Graph.Placeholder(b.uniqueName("b_"+NameForTarget(key)), value.Shape())
	b.Program.AddBuffer(n, key, value)
	return n
}

// Call adds a call node with positional operands only.
func (b *Builder) Call(target string, shape shapes.Shape, args ...graph.Argument) *graph.Node {
	return b.CallKw(target, shape, args, nil)
}

// CallKw adds a call node with positional and keyword operands.
func (b *Builder) CallKw(target string, shape shapes.Shape, args []graph.Argument, kwargs map[string]graph.Argument) *graph.Node {
	return b.Graph.Call(b.uniqueName(NameForTarget(target)), target, shape, args, kwargs)
}

// Output sets the program outputs and returns the finished program.
func (b *Builder) Output(results ...*graph.Node) *program.ExportedProgram {
	b.Graph.Output(results...)
	return b.Program
}

// RandomFloat32 returns count values uniformly distributed in [low, high).
func RandomFloat32(rng *rand.Rand, count int, low, high float32) []float32 {
	values := make([]float32, count)
	for ii := range values {
		values[ii] = low + rng.Float32()*(high-low)
	}
	return values
}

// RandomTensor returns a float32 tensor with values uniformly distributed in [-1, 1).
func RandomTensor(rng *rand.Rand, dims ...int) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(RandomFloat32(rng, shapes.Make(dtypes.Float32, dims...).Size(), -1, 1), dims...)
}
