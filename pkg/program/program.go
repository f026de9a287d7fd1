// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package program defines ExportedProgram, a source graph bundled with its signature and its stored
// parameters and buffers (the "state dict"), and the YAML+npz file format used to save and load them.
package program

import (
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/ethosu/pkg/support/sets"
	"github.com/gomlx/ethosu/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Signature maps the placeholders of a program that are backed by stored data to their keys in the state dict.
// Placeholders not listed are user inputs.
type Signature struct {
	// InputsToParameters maps placeholder names to state dict keys of parameters (weights).
	InputsToParameters map[string]string

	// InputsToBuffers maps placeholder names to state dict keys of buffers (e.g. batch norm running statistics).
	InputsToBuffers map[string]string
}

// StateKey returns the state dict key of the placeholder name, and whether it is a parameter or buffer.
func (s Signature) StateKey(placeholder string) (key string, found bool) {
	if key, found = s.InputsToParameters[placeholder]; found {
		return
	}
	key, found = s.InputsToBuffers[placeholder]
	return
}

// ExportedProgram is a graph with its signature and its stored parameters and buffers.
type ExportedProgram struct {
	Name      string
	Graph     *graph.Graph
	Signature Signature
	StateDict map[string]*tensors.Tensor
}

// New returns an empty program around g.
func New(name string, g *graph.Graph) *ExportedProgram {
	return &ExportedProgram{
		Name:  name,
		Graph: g,
		Signature: Signature{
			InputsToParameters: make(map[string]string),
			InputsToBuffers:    make(map[string]string),
		},
		StateDict: make(map[string]*tensors.Tensor),
	}
}

// AddParameter registers the placeholder as a parameter stored under key, with the given value.
func (p *ExportedProgram) AddParameter(placeholder *graph.Node, key string, value *tensors.Tensor) {
	p.Signature.InputsToParameters[placeholder.Name()] = key
	p.StateDict[key] = value
}

// AddBuffer registers the placeholder as a buffer stored under key, with the given value.
func (p *ExportedProgram) AddBuffer(placeholder *graph.Node, key string, value *tensors.Tensor) {
	p.Signature.InputsToBuffers[placeholder.Name()] = key
	p.StateDict[key] = value
}

// StoredTensor returns the stored value of a parameter or buffer placeholder.
// It returns (nil, false) for user inputs and for non-placeholder nodes.
func (p *ExportedProgram) StoredTensor(node *graph.Node) (*tensors.Tensor, bool) {
	if node.Kind() != graph.NodeKindPlaceholder {
		return nil, false
	}
	key, found := p.Signature.StateKey(node.Name())
	if !found {
		return nil, false
	}
	t, found := p.StateDict[key]
	return t, found
}

// IsParameterOrBuffer returns whether the node is a placeholder listed in the signature as a parameter or buffer.
func (p *ExportedProgram) IsParameterOrBuffer(node *graph.Node) bool {
	if node.Kind() != graph.NodeKindPlaceholder {
		return false
	}
	_, found := p.Signature.StateKey(node.Name())
	return found
}

// Validate checks that every parameter or buffer in the signature refers to an existing placeholder
// and to a stored tensor whose shape matches the placeholder's declared shape.
func (p *ExportedProgram) Validate() error {
	if p.Graph == nil {
		return errors.Errorf("program %q has no graph", p.Name)
	}
	if p.Graph.OutputNode() == nil {
		return errors.Errorf("program %q has no output node", p.Name)
	}
	for _, m := range []map[string]string{p.Signature.InputsToParameters, p.Signature.InputsToBuffers} {
		for name, key := range m {
			node := p.Graph.NodeByName(name)
			if node == nil || node.Kind() != graph.NodeKindPlaceholder {
				return errors.Errorf("program %q: signature refers to %q, which is not a placeholder", p.Name, name)
			}
			t, found := p.StateDict[key]
			if !found {
				return errors.Errorf("program %q: placeholder %q refers to missing state dict entry %q", p.Name, name, key)
			}
			if node.HasShape() && !t.Shape().Equal(node.Shape()) {
				return errors.Errorf("program %q: placeholder %q declared with shape %s, but state dict entry %q has shape %s",
					p.Name, name, node.Shape(), key, t.Shape())
			}
		}
	}
	return nil
}

// Extract creates a standalone program with the given member nodes of p, which must be call nodes.
//
// Operands of members that are not members themselves become placeholders of the new program:
// parameters and buffers keep their name and stored data, other values become user inputs named after
// the node that produced them. Members used outside the set (including by the output node) become
// the outputs of the new program, in topological order.
func Extract(p *ExportedProgram, name string, members []*graph.Node) (extracted *ExportedProgram, err error) {
	err = exceptions.TryCatch[error](func() { extracted = extract(p, name, members) })
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to extract %q from program %q", name, p.Name)
	}
	return extracted, nil
}

func extract(p *ExportedProgram, name string, members []*graph.Node) *ExportedProgram {
	memberSet := sets.Make[*graph.Node](len(members))
	for _, n := range members {
		if n.Graph() != p.Graph {
			exceptions.Panicf("node %q is not part of the program graph", n.Name())
		}
		if n.Kind() != graph.NodeKindCallFunction {
			exceptions.Panicf("only call nodes can be extracted, got node %q of kind %s", n.Name(), n.Kind())
		}
		memberSet.Insert(n)
	}

	g := graph.New()
	newP := New(name, g)
	mapping := make(map[*graph.Node]*graph.Node)
	remapNode := func(n *graph.Node) *graph.Node {
		if mapped, found := mapping[n]; found {
			return mapped
		}
		// External operand: becomes a placeholder.
		if !n.HasShape() {
			exceptions.Panicf("external operand %q has no declared tensor metadata", n.Name())
		}
		placeholder := g.Placeholder(n.Name(), n.Shape())
		if key, found := p.Signature.StateKey(n.Name()); found && n.Kind() == graph.NodeKindPlaceholder {
			if _, isParam := p.Signature.InputsToParameters[n.Name()]; isParam {
				newP.Signature.InputsToParameters[n.Name()] = key
			} else {
				newP.Signature.InputsToBuffers[n.Name()] = key
			}
			if value, found := p.StateDict[key]; found {
				newP.StateDict[key] = value
			}
		}
		mapping[n] = placeholder
		return placeholder
	}
	remapArg := func(a graph.Argument) graph.Argument {
		switch a.Kind {
		case graph.ArgumentKindNode:
			return graph.NodeArg(remapNode(a.Node))
		case graph.ArgumentKindNodes:
			nodes := make([]*graph.Node, len(a.Nodes))
			for ii, n := range a.Nodes {
				nodes[ii] = remapNode(n)
			}
			return graph.NodesArg(nodes...)
		default:
			return a
		}
	}

	var outputs []*graph.Node
	for _, n := range p.Graph.Nodes() {
		if !memberSet.Has(n) {
			continue
		}
		args := make([]graph.Argument, n.NumArgs())
		for ii, a := range n.Args() {
			args[ii] = remapArg(a)
		}
		var kwargs map[string]graph.Argument
		if len(n.Kwargs()) > 0 {
			kwargs = make(map[string]graph.Argument, len(n.Kwargs()))
			// Sorted, so external operands become placeholders in a deterministic order.
			for _, key := range xslices.SortedKeys(n.Kwargs()) {
				kwargs[key] = remapArg(n.Kwargs()[key])
			}
		}
		newNode := g.Call(n.Name(), n.Target(), n.Shape(), args, kwargs)
		for _, key := range n.MetaKeys() {
			newNode.SetMeta(key, n.Meta(key))
		}
		mapping[n] = newNode
		for _, user := range n.Users() {
			if !memberSet.Has(user) {
				outputs = append(outputs, newNode)
				break
			}
		}
	}
	g.Output(outputs...)
	klog.V(2).Infof("extracted program %q: %d nodes, %d outputs", name, g.NumNodes(), len(outputs))
	return newP
}
