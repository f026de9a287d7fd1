// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"fmt"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/pkg/core/graph"
)

// LoweringError is returned when a node can't be lowered: unsupported operation or attribute value,
// mismatching element types or element counts, malformed permutations.
//
// It carries the identity of the failing node and the module as lowered up to that node, so the
// caller can dump it for diagnosis.
type LoweringError struct {
	// Node that failed to lower.
	Node *graph.Node

	// Module with everything lowered before Node.
	Module *tosa.Module

	Err error
}

// Error implements error.
func (e *LoweringError) Error() string {
	return fmt.Sprintf("failed to lower node %q (%s, target %q): %v", e.Node.Name(), e.Node.Kind(), e.Node.Target(), e.Err)
}

// Unwrap returns the underlying error.
func (e *LoweringError) Unwrap() error { return e.Err }

// Describe returns the error with a full description of the failing node: its operands and metadata.
func (e *LoweringError) Describe() string {
	return e.Error() + "\n" + e.Node.Describe()
}
