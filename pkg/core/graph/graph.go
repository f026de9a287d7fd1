// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph models the source dataflow graph handed to the delegates: an ordered list of nodes,
// each a placeholder (input), an operation call or the single output node.
//
// Graphs are built in topological order: a node can only reference nodes created before it.
// The graph building methods "throw" errors with panic (using github.com/gomlx/exceptions),
// like the rest of the graph building APIs; use exceptions.TryCatch to convert them to errors.
//
// Example:
//
//	g := graph.New()
//	x := g.Placeholder("x", shapes.Make(dtypes.Float32, 2, 3))
//	y := g.Placeholder("y", shapes.Make(dtypes.Float32, 2, 3))
//	sum := g.Call("aten_add_tensor", "aten.add.Tensor", x.Shape(),
//		[]graph.Argument{graph.NodeArg(x), graph.NodeArg(y)}, nil)
//	g.Output(sum)
package graph

import (
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/exceptions"
)

// Graph is an ordered (topologically sorted) list of nodes.
type Graph struct {
	nodes  []*Node
	byName map[string]*Node
	output *Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{byName: make(map[string]*Node)}
}

// Nodes returns all nodes in topological order. The slice is owned by the graph and should not be changed.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NodeByName returns the node with the given name, or nil if there is none.
func (g *Graph) NodeByName(name string) *Node { return g.byName[name] }

// OutputNode returns the output node of the graph, or nil if it has not been set yet.
func (g *Graph) OutputNode() *Node { return g.output }

// Placeholders returns the placeholder nodes, in order.
func (g *Graph) Placeholders() []*Node {
	var placeholders []*Node
	for _, n := range g.nodes {
		if n.kind == NodeKindPlaceholder {
			placeholders = append(placeholders, n)
		}
	}
	return placeholders
}

// Placeholder creates an input node. Exported programs never give defaults to their placeholders,
// but they are accepted here so malformed programs can be represented (and rejected by the delegates).
func (g *Graph) Placeholder(name string, shape shapes.Shape, defaults ...Argument) *Node {
	return g.addNode(&Node{
		kind:  NodeKindPlaceholder,
		name:  name,
		shape: shape.Clone(),
		args:  slices.Clone(defaults),
	})
}

// Call creates an operation call node of the given target, with its operands and the shape of
// its result tensor. The shape can be shapes.Invalid() if the node has no declared tensor metadata.
func (g *Graph) Call(name, target string, shape shapes.Shape, args []Argument, kwargs map[string]Argument) *Node {
	if target == "" {
		exceptions.Panicf("graph.Call(%q): empty target", name)
	}
	return g.addNode(&Node{
		kind:   NodeKindCallFunction,
		name:   name,
		target: target,
		opType: backends.OpTypeForTarget(target),
		shape:  shape.Clone(),
		args:   slices.Clone(args),
		kwargs: maps.Clone(kwargs),
	})
}

// Output creates the output node of the graph, returning the given results.
// It must be the last node, and there can be only one.
func (g *Graph) Output(results ...*Node) *Node {
	output := g.addNode(&Node{
		kind:  NodeKindOutput,
		name:  "output",
		shape: shapes.Invalid(),
		args:  []Argument{NodesArg(slices.Clone(results)...)},
	})
	g.output = output
	return output
}

func (g *Graph) addNode(n *Node) *Node {
	if n.name == "" {
		exceptions.Panicf("graph: nodes must have a name (kind %s)", n.kind)
	}
	if _, found := g.byName[n.name]; found {
		exceptions.Panicf("graph: duplicate node name %q", n.name)
	}
	if g.output != nil {
		exceptions.Panicf("graph: cannot add node %q after the output node", n.name)
	}
	inputs := n.Inputs()
	for _, input := range inputs {
		if input.graph != g {
			exceptions.Panicf("graph: node %q references node %q from a different graph", n.name, input.name)
		}
		if input.kind == NodeKindOutput {
			exceptions.Panicf("graph: node %q references the output node", n.name)
		}
	}
	n.graph = g
	n.id = NodeId(len(g.nodes))
	for _, input := range inputs {
		input.users = append(input.users, n)
	}
	g.nodes = append(g.nodes, n)
	g.byName[n.name] = n
	return n
}

// String implements fmt.Stringer, listing one node per line.
func (g *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("graph():\n")
	for _, n := range g.nodes {
		sb.WriteString("    ")
		sb.WriteString(n.String())
		if tag := n.DelegationTag(); tag != "" {
			sb.WriteString("  # ")
			sb.WriteString(tag)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
