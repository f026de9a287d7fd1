// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"fmt"

	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
)

// OperandKind discriminates the two views of an operand.
type OperandKind int

const (
	// OperandTensor is a reference to a tensor declared in the module, named after the node producing it.
	OperandTensor OperandKind = iota

	// OperandLiteral is a constant value embedded in the source graph: never declared in the module.
	OperandLiteral
)

// Operand is a resolved operand of a node.
type Operand struct {
	Kind OperandKind

	// Name and Shape of the tensor, if Kind is OperandTensor.
	Name  string
	Shape shapes.Shape

	// Literal value, if Kind is OperandLiteral.
	Literal graph.Argument
}

// IsTensor returns whether the operand is a tensor.
func (o Operand) IsTensor() bool { return o.Kind == OperandTensor }

// Dims returns the dimensions of a tensor operand.
func (o Operand) Dims() []int { return o.Shape.Dimensions }

// Rank returns the rank of a tensor operand.
func (o Operand) Rank() int { return o.Shape.Rank() }

// DType returns the element type of a tensor operand.
func (o Operand) DType() dtypes.DType { return o.Shape.DType }

// String implements fmt.Stringer.
func (o Operand) String() string {
	if o.Kind == OperandLiteral {
		return fmt.Sprintf("literal %s", o.Literal)
	}
	return fmt.Sprintf("tensor %s%s", o.Name, o.Shape)
}

// tensorOperand creates a tensor Operand.
func tensorOperand(name string, shape shapes.Shape) Operand {
	return Operand{Kind: OperandTensor, Name: name, Shape: shape}
}

// ClassificationError is returned when an operand is neither a tensor nor a literal the delegate
// understands. It aborts the compilation.
type ClassificationError struct {
	// Node holding the operand, if known.
	Node *graph.Node

	Argument graph.Argument
	Reason   string
}

// Error implements error.
func (e *ClassificationError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("cannot classify operand %s of node %q: %s", e.Argument, e.Node.Name(), e.Reason)
	}
	return fmt.Sprintf("cannot classify operand %s: %s", e.Argument, e.Reason)
}

// ResolveNode returns the tensor produced by node, from its declared shape.
func ResolveNode(node *graph.Node) (Operand, error) {
	if node == nil {
		return Operand{}, &ClassificationError{Argument: graph.NodeArg(nil), Reason: "reference to a nil node"}
	}
	if node.Kind() == graph.NodeKindOutput {
		return Operand{}, &ClassificationError{Node: node, Argument: graph.NodeArg(node),
			Reason: "the output node doesn't produce a tensor"}
	}
	if !node.HasShape() {
		return Operand{}, &ClassificationError{Node: node, Argument: graph.NodeArg(node),
			Reason: "node has no declared tensor metadata"}
	}
	return tensorOperand(node.Name(), node.Shape()), nil
}

// ResolveArgument resolves an operand: node references become tensors, and numbers, lists of numbers,
// booleans and None become literals. Lists of nodes and invalid arguments are a ClassificationError.
func ResolveArgument(arg graph.Argument) (Operand, error) {
	switch arg.Kind {
	case graph.ArgumentKindNode:
		return ResolveNode(arg.Node)
	case graph.ArgumentKindNone, graph.ArgumentKindInt, graph.ArgumentKindFloat, graph.ArgumentKindBool,
		graph.ArgumentKindInts, graph.ArgumentKindFloats:
		return Operand{Kind: OperandLiteral, Literal: arg}, nil
	case graph.ArgumentKindNodes:
		return Operand{}, &ClassificationError{Argument: arg, Reason: "lists of tensors are not supported as operands"}
	default:
		return Operand{}, &ClassificationError{Argument: arg, Reason: fmt.Sprintf("unknown operand kind %s", arg.Kind)}
	}
}
