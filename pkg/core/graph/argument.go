// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/ethosu/pkg/support/xslices"
)

// ArgumentKind discriminates the values an operand of a node can hold.
type ArgumentKind int

const (
	ArgumentKindInvalid ArgumentKind = iota
	ArgumentKindNone
	ArgumentKindNode
	ArgumentKindInt
	ArgumentKindFloat
	ArgumentKindBool
	ArgumentKindInts
	ArgumentKindFloats
	ArgumentKindNodes
)

var argumentKindNames = [...]string{
	ArgumentKindInvalid: "Invalid",
	ArgumentKindNone:    "None",
	ArgumentKindNode:    "Node",
	ArgumentKindInt:     "Int",
	ArgumentKindFloat:   "Float",
	ArgumentKindBool:    "Bool",
	ArgumentKindInts:    "Ints",
	ArgumentKindFloats:  "Floats",
	ArgumentKindNodes:   "Nodes",
}

// String implements fmt.Stringer.
func (k ArgumentKind) String() string {
	if k < 0 || int(k) >= len(argumentKindNames) {
		return fmt.Sprintf("ArgumentKind(%d)", int(k))
	}
	return argumentKindNames[k]
}

// Argument is one operand of a node: either a reference to another node (a tensor), a list of them, or a literal.
//
// The zero value is an invalid argument. Use the constructors NodeArg, IntArg, etc.
type Argument struct {
	Kind   ArgumentKind
	Node   *Node
	Nodes  []*Node
	Int    int
	Float  float64
	Bool   bool
	Ints   []int
	Floats []float64
}

// NodeArg returns an argument referencing node.
func NodeArg(node *Node) Argument { return Argument{Kind: ArgumentKindNode, Node: node} }

// NodesArg returns an argument referencing a list of nodes.
func NodesArg(nodes ...*Node) Argument { return Argument{Kind: ArgumentKindNodes, Nodes: nodes} }

// IntArg returns an integer literal argument.
func IntArg(v int) Argument { return Argument{Kind: ArgumentKindInt, Int: v} }

// FloatArg returns a floating point literal argument.
func FloatArg(v float64) Argument { return Argument{Kind: ArgumentKindFloat, Float: v} }

// BoolArg returns a boolean literal argument.
func BoolArg(v bool) Argument { return Argument{Kind: ArgumentKindBool, Bool: v} }

// IntsArg returns an integer list literal argument.
func IntsArg(v ...int) Argument { return Argument{Kind: ArgumentKindInts, Ints: v} }

// FloatsArg returns a floating point list literal argument.
func FloatsArg(v ...float64) Argument { return Argument{Kind: ArgumentKindFloats, Floats: v} }

// NoneArg returns the `None` literal argument.
func NoneArg() Argument { return Argument{Kind: ArgumentKindNone} }

// IsNone returns whether the argument is `None`.
func (a Argument) IsNone() bool { return a.Kind == ArgumentKindNone }

// IsNode returns whether the argument references a single node.
func (a Argument) IsNode() bool { return a.Kind == ArgumentKindNode && a.Node != nil }

// IsNumber returns whether the argument is an integer or floating point literal.
func (a Argument) IsNumber() bool { return a.Kind == ArgumentKindInt || a.Kind == ArgumentKindFloat }

// AsFloat returns the value of a numeric (or boolean) literal as a float64.
func (a Argument) AsFloat() (float64, bool) {
	switch a.Kind {
	case ArgumentKindInt:
		return float64(a.Int), true
	case ArgumentKindFloat:
		return a.Float, true
	case ArgumentKindBool:
		if a.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String implements fmt.Stringer, in a Python-like notation.
func (a Argument) String() string {
	switch a.Kind {
	case ArgumentKindNone:
		return "None"
	case ArgumentKindNode:
		if a.Node == nil {
			return "<nil node>"
		}
		return a.Node.Name()
	case ArgumentKindNodes:
		return "[" + strings.Join(xslices.Map(a.Nodes, func(n *Node) string { return n.Name() }), ", ") + "]"
	case ArgumentKindInt:
		return fmt.Sprintf("%d", a.Int)
	case ArgumentKindFloat:
		return fmt.Sprintf("%g", a.Float)
	case ArgumentKindBool:
		if a.Bool {
			return "True"
		}
		return "False"
	case ArgumentKindInts:
		return fmt.Sprintf("%v", a.Ints)
	case ArgumentKindFloats:
		return fmt.Sprintf("%v", a.Floats)
	default:
		return "<invalid>"
	}
}

// referencedNodes returns the nodes referenced by the argument, if any.
func (a Argument) referencedNodes() []*Node {
	switch a.Kind {
	case ArgumentKindNode:
		if a.Node != nil {
			return []*Node{a.Node}
		}
	case ArgumentKindNodes:
		return a.Nodes
	}
	return nil
}
