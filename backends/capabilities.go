// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines what is shared by the delegates that compile parts of exported programs:
// the operations they may know (OpType) and how they declare what they support (Capabilities).
package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds mappings of what is supported by a delegate.
//
// A Capabilities value is never changed after creation: use Clone to derive a modified one.
type Capabilities struct {
	// Operations supported by a delegate.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[OpType]bool

	// DTypes list the data types supported by a delegate.
	// If empty, any data type is accepted.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[OpType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// Supports returns whether op is among the supported operations.
func (c Capabilities) Supports(op OpType) bool {
	return c.Operations[op]
}

// SupportsDType returns whether dtype is supported. If no DTypes are listed, all are supported.
func (c Capabilities) SupportsDType(dtype dtypes.DType) bool {
	if len(c.DTypes) == 0 {
		return true
	}
	return c.DTypes[dtype]
}
