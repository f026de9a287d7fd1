// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
	assert.Len(t, Map([]int{}, strconv.Itoa), 0)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
}

func TestPrepend(t *testing.T) {
	assert.Equal(t, []int{1, 1, 5, 6}, Prepend([]int{5, 6}, 1, 2))
	assert.Equal(t, []int{5}, Prepend([]int{5}, 1, 0))
}
