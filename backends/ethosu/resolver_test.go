// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"testing"

	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/pkg/core/graph"
	. "github.com/gomlx/ethosu/pkg/core/graph/graphtest"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	b := NewBuilder("resolve")
	x := b.Input("x", F32, 2, 3)
	noShape := b.Call("aten.add.Tensor", shapes.Invalid(), N(x), N(x))
	output := b.Graph.Output(x)

	op, err := ResolveNode(x)
	require.NoError(t, err)
	assert.True(t, op.IsTensor())
	assert.Equal(t, "x", op.Name)
	assert.Equal(t, []int{2, 3}, op.Dims())
	assert.Equal(t, dtypes.Float32, op.DType())

	op, err = ResolveArgument(graph.IntsArg(1, 2))
	require.NoError(t, err)
	assert.False(t, op.IsTensor())
	assert.Equal(t, []int{1, 2}, op.Literal.Ints)
	op, err = ResolveArgument(graph.NoneArg())
	require.NoError(t, err)
	assert.True(t, op.Literal.IsNone())

	for _, tc := range []struct {
		arg  graph.Argument
		want string
	}{
		{N(noShape), "no declared tensor metadata"},
		{N(output), "output node"},
		{graph.NodesArg(x, x), "lists of tensors"},
		{graph.Argument{}, "unknown operand kind"},
	} {
		_, err := ResolveArgument(tc.arg)
		var classErr *ClassificationError
		require.True(t, errors.As(err, &classErr), "argument %s", tc.arg)
		assert.ErrorContains(t, err, tc.want)
	}
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Len(t, caps.Operations, 10)
	caps.Operations[backends.OpTypeMul] = true
	assert.False(t, Capabilities().Supports(backends.OpTypeMul), "Capabilities must return a copy")
	assert.True(t, caps.SupportsDType(dtypes.Int8))
	assert.False(t, caps.SupportsDType(dtypes.Float64))

	b := NewBuilder("classify")
	x := b.Input("x", F32, 2)
	add := b.Call("aten.add.Tensor", MS(F32, 2), N(x), N(x))
	sin := b.Call("aten.sin.default", MS(F32, 2), N(add))
	mul := b.Call("aten.mul.Tensor", MS(F32, 2), N(sin), N(sin))
	item := b.Call("getitem", MS(F32, 2), N(mul), graph.IntArg(0))
	b.Output(item)
	assert.False(t, IsSupported(x))
	assert.True(t, IsSupported(add))
	assert.False(t, IsSupported(sin))
	assert.False(t, IsSupported(mul))
	assert.True(t, IsSupported(item))
	assert.True(t, SupportsNode(caps, mul))
}

func TestParseCompileSpecs(t *testing.T) {
	t.Setenv(EnvVelaBinary, "")
	config := ParseCompileSpecs(nil)
	assert.Equal(t, DefaultConfig(), config)
	assert.Equal(t, "vela", config.VelaBinary)
	assert.Equal(t, "ethos-u55-128", config.AcceleratorConfig)
	assert.Empty(t, config.DebugTOSAPath)

	t.Setenv(EnvVelaBinary, "/opt/vela/bin/vela")
	config = ParseCompileSpecs([]CompileSpec{
		{Key: SpecDebugTOSAPath, Value: []byte("/tmp/debug")},
		{Key: "unknown", Value: []byte("ignored")},
		{Key: SpecAcceleratorConfig, Value: []byte("ethos-u85-256")},
	})
	assert.Equal(t, Config{
		DebugTOSAPath:     "/tmp/debug",
		VelaBinary:        "/opt/vela/bin/vela",
		AcceleratorConfig: "ethos-u85-256",
	}, config)
	assert.Equal(t, config, ParseCompileSpecs(config.CompileSpecs()))
}
