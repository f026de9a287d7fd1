// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 3))
	assert.Equal(t, 6, tensor.Size())
	assert.Equal(t, uintptr(24), tensor.Memory())
	assert.Equal(t, make([]float32, 6), CopyFlatData[float32](tensor))
	require.Panics(t, func() { _ = FromShape(shapes.Invalid()) })
}

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, []int{2, 2}, tensor.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3, 4}, CopyFlatData[float32](tensor))
	// Little-endian float32 of 1.0.
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, tensor.Bytes()[:4])

	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 2) })
	require.Panics(t, func() { _ = CopyFlatData[int32](tensor) })

	ints := FromFlatDataAndDimensions([]int32{-1, 7}, 2)
	assert.Equal(t, []int32{-1, 7}, CopyFlatData[int32](ints))

	empty := FromFlatDataAndDimensions([]float32{}, 0, 3)
	assert.Equal(t, 0, empty.Size())
	assert.Len(t, CopyFlatData[float32](empty), 0)
}

func TestFromRaw(t *testing.T) {
	shape := shapes.Make(dtypes.Int16, 3)
	raw := []byte{1, 0, 2, 0, 0xff, 0xff}
	tensor, err := FromRaw(shape, raw)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, -1}, CopyFlatData[int16](tensor))

	// FromRaw copies its input.
	raw[0] = 9
	assert.Equal(t, int16(1), CopyFlatData[int16](tensor)[0])

	_, err = FromRaw(shape, raw[:5])
	require.ErrorContains(t, err, "requires 6 bytes")
}

func TestEqualAndScalar(t *testing.T) {
	a := FromScalarAndDimensions(float32(0.5), 2, 2)
	b := FromFlatDataAndDimensions([]float32{0.5, 0.5, 0.5, 0.5}, 2, 2)
	c := FromFlatDataAndDimensions([]float32{0.5, 0.5, 0.5, 0.5}, 4)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
	assert.Equal(t, "Tensor(Float32)[2 2] (16 B)", a.String())
}
