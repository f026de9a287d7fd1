// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"slices"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape_Strides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Make(dtypes.Float32, 2, 3, 4).Strides())
	require.Equal(t, []int{1}, Make(dtypes.Float32, 5).Strides())
	require.Equal(t, []int{2, 2, 1}, Make(dtypes.Float32, 3, 1, 2).Strides())
	require.Nil(t, Make(dtypes.Float32).Strides())
	require.Equal(t, []int{2, 0, 1}, Make(dtypes.Float32, 3, 1, 2).BroadcastStrides())
}

func TestShape_Iter(t *testing.T) {
	// Only one value to iterate.
	shape := Make(dtypes.Float32, 1, 1, 1)
	var collect [][]int
	for flatIdx, indices := range shape.Iter() {
		require.Equal(t, 0, flatIdx)
		collect = append(collect, slices.Clone(indices))
	}
	require.Equal(t, [][]int{{0, 0, 0}}, collect)

	shape = Make(dtypes.Float32, 3, 1, 2)
	collect = nil
	counter := 0
	for flatIdx, indices := range shape.Iter() {
		require.Equal(t, counter, flatIdx)
		counter++
		collect = append(collect, slices.Clone(indices))
	}
	require.Equal(t, [][]int{{0, 0, 0}, {0, 0, 1}, {1, 0, 0}, {1, 0, 1}, {2, 0, 0}, {2, 0, 1}}, collect)

	// Scalar: a single empty index.
	counter = 0
	for _, indices := range Make(dtypes.Float32).Iter() {
		require.Empty(t, indices)
		counter++
	}
	require.Equal(t, 1, counter)

	// Zero-sized axis: nothing to iterate.
	for range Make(dtypes.Float32, 2, 0).Iter() {
		t.Fatal("unexpected iteration over a zero-sized shape")
	}

	// Early stop.
	counter = 0
	for range Make(dtypes.Float32, 4, 4).Iter() {
		counter++
		if counter == 3 {
			break
		}
	}
	require.Equal(t, 3, counter)
}
