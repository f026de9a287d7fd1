// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7, 5)
	assert.Len(t, s2, 2)
	assert.True(t, s2.Has(5))
	assert.False(t, s2.Has(3))
}

func TestSortedFunc(t *testing.T) {
	s := MakeWith("b", "c", "a")
	assert.Equal(t, []string{"a", "b", "c"}, SortedFunc(s, cmp.Compare[string]))
	assert.Equal(t, []string{"c", "b", "a"}, SortedFunc(s, func(a, b string) int { return cmp.Compare(b, a) }))
	assert.Empty(t, SortedFunc(Make[string](), cmp.Compare[string]))
}
