// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/ethosu/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
)

// NodeKind is the kind of node: placeholder (an input), an operation call or the graph output.
type NodeKind int

const (
	NodeKindInvalid NodeKind = iota
	NodeKindPlaceholder
	NodeKindCallFunction
	NodeKindOutput
)

var nodeKindNames = [...]string{
	NodeKindInvalid:      "invalid",
	NodeKindPlaceholder:  "placeholder",
	NodeKindCallFunction: "call_function",
	NodeKindOutput:       "output",
}

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	if k < 0 || int(k) >= len(nodeKindNames) {
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
	return nodeKindNames[k]
}

// NodeId is the position of a node in its graph, which is also its topological order.
type NodeId int

// MetaDelegationTag is the metadata key holding the tag of the partition a node was assigned to.
const MetaDelegationTag = "delegation_tag"

// Node of a source graph.
//
// A call node produces exactly one result tensor, whose shape is the node's declared Shape.
// Nodes are created by the Graph methods Placeholder, Call and Output, and except for their
// metadata, they are immutable.
type Node struct {
	graph  *Graph
	id     NodeId
	kind   NodeKind
	name   string
	target string
	opType backends.OpType
	args   []Argument
	kwargs map[string]Argument
	shape  shapes.Shape
	meta   map[string]string
	users  []*Node
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id of the node: its position in the graph's topological order.
func (n *Node) Id() NodeId { return n.id }

// Kind of the node.
func (n *Node) Kind() NodeKind { return n.kind }

// Name of the node, unique within the graph.
func (n *Node) Name() string { return n.name }

// Target of a call node, e.g. "aten.add.Tensor". Empty for other kinds.
func (n *Node) Target() string { return n.target }

// OpType of the target of a call node. OpTypeInvalid for unknown targets and for other kinds.
func (n *Node) OpType() backends.OpType { return n.opType }

// Args returns the positional operands. The slice is owned by the node and should not be changed.
func (n *Node) Args() []Argument { return n.args }

// NumArgs returns the number of positional operands.
func (n *Node) NumArgs() int { return len(n.args) }

// Arg returns the positional operand i, or a `None` argument if the node has fewer operands,
// which is how omitted trailing default values are represented.
func (n *Node) Arg(i int) Argument {
	if i < 0 || i >= len(n.args) {
		return NoneArg()
	}
	return n.args[i]
}

// Kwargs returns the keyword operands. The map is owned by the node and should not be changed.
func (n *Node) Kwargs() map[string]Argument { return n.kwargs }

// Kwarg returns the keyword operand with the given name, and whether it was set.
func (n *Node) Kwarg(name string) (Argument, bool) {
	a, found := n.kwargs[name]
	return a, found
}

// Shape of the node's result tensor. It is invalid (Shape.Ok() is false) if the node has no declared tensor metadata.
func (n *Node) Shape() shapes.Shape { return n.shape }

// HasShape returns whether the node declares the shape of its result tensor.
func (n *Node) HasShape() bool { return n.shape.Ok() }

// DType of the node's result tensor.
func (n *Node) DType() dtypes.DType { return n.shape.DType }

// Meta returns the metadata value for key, or "" if not set.
func (n *Node) Meta(key string) string { return n.meta[key] }

// MetaKeys returns the sorted keys of the node's metadata.
func (n *Node) MetaKeys() []string { return xslices.SortedKeys(n.meta) }

// SetMeta sets a metadata value. Metadata is the only mutable part of a node, used to annotate it
// (with a delegation tag, for instance).
func (n *Node) SetMeta(key, value string) {
	if n.meta == nil {
		n.meta = make(map[string]string)
	}
	n.meta[key] = value
}

// DelegationTag returns the tag of the partition the node was assigned to, or "" if none.
func (n *Node) DelegationTag() string { return n.Meta(MetaDelegationTag) }

// Inputs returns the nodes referenced by the operands (positional first, then keywords in sorted order),
// without repetitions.
func (n *Node) Inputs() []*Node {
	var inputs []*Node
	seen := make(map[*Node]bool)
	add := func(a Argument) {
		for _, input := range a.referencedNodes() {
			if !seen[input] {
				seen[input] = true
				inputs = append(inputs, input)
			}
		}
	}
	for _, a := range n.args {
		add(a)
	}
	for _, key := range xslices.SortedKeys(n.kwargs) {
		add(n.kwargs[key])
	}
	return inputs
}

// Users returns the nodes that use this node as an operand, in topological order.
func (n *Node) Users() []*Node { return n.users }

// Results returns the nodes of an output node: its first operand as a list of nodes.
// It returns nil for other kinds of nodes.
func (n *Node) Results() []*Node {
	if n.kind != NodeKindOutput || len(n.args) == 0 {
		return nil
	}
	a := n.args[0]
	switch a.Kind {
	case ArgumentKindNodes:
		return a.Nodes
	case ArgumentKindNode:
		return []*Node{a.Node}
	}
	return nil
}

// String implements fmt.Stringer with a one-line summary of the node.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%%%s = %s", n.name, n.kind)
	if n.kind == NodeKindCallFunction {
		fmt.Fprintf(&sb, "[target=%s]", n.target)
	}
	sb.WriteString("(")
	parts := xslices.Map(n.args, Argument.String)
	for _, key := range xslices.SortedKeys(n.kwargs) {
		parts = append(parts, fmt.Sprintf("%s=%s", key, n.kwargs[key]))
	}
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString(")")
	if n.HasShape() {
		fmt.Fprintf(&sb, " -> %s (%s)", n.shape, humanize.Bytes(uint64(n.shape.Memory())))
	}
	return sb.String()
}

// Describe returns a multi-line description of the node identity: its name, kind, target,
// operands and metadata. It's used for diagnostics of failing nodes.
func (n *Node) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- NODE DEBUG INFO --\n")
	fmt.Fprintf(&sb, "  Node.name: %s\n", n.name)
	fmt.Fprintf(&sb, "  Node.kind: %s\n", n.kind)
	fmt.Fprintf(&sb, "  Node.target: %s\n", n.target)
	fmt.Fprintf(&sb, "  Node.args: (%s)\n", strings.Join(xslices.Map(n.args, Argument.String), ", "))
	for _, key := range xslices.SortedKeys(n.kwargs) {
		fmt.Fprintf(&sb, "  Node.kwargs[%s]: %s\n", key, n.kwargs[key])
	}
	if n.HasShape() {
		fmt.Fprintf(&sb, "  Node.shape: %s\n", n.shape)
	}
	for _, key := range n.MetaKeys() {
		fmt.Fprintf(&sb, "  Node.meta[%s]: %s\n", key, n.meta[key])
	}
	return sb.String()
}
