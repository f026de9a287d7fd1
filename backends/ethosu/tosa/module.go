// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tosa holds an in-memory TOSA 0.80 module (a single region with a single basic block) and
// its serialization to the TOSA flatbuffer format consumed by the Vela compiler.
//
// Modules are built by appending tensors and operators in producer-before-consumer order.
// Invalid additions (duplicate tensor names, references to undeclared tensors, constant data of the
// wrong size) panic with an error, using github.com/gomlx/exceptions, so the code building a module
// can stay linear; callers convert them back to errors at their API boundary with
// exceptions.TryCatch.
package tosa

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
)

// DefaultBlockName is the name of the region and basic block of new modules.
const DefaultBlockName = "main"

// Tensor declared in a Module.
type Tensor struct {
	// Name is unique within the module.
	Name  string
	Shape []int
	DType DType

	Origin Origin

	// Data holds the raw little-endian values of constant tensors.
	Data []byte
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	s := fmt.Sprintf("%s %s: %s%v", t.Origin, t.Name, t.DType, t.Shape)
	if t.Origin == OriginConstant {
		s = fmt.Sprintf("%s (%s)", s, humanize.Bytes(uint64(len(t.Data))))
	}
	return s
}

// Operator is one instruction of the module.
type Operator struct {
	Op Op

	// Attribute is optional.
	Attribute Attribute

	Inputs, Outputs []string
}

// String implements fmt.Stringer.
func (op *Operator) String() string {
	s := fmt.Sprintf("%s(%s) -> %s", op.Op, strings.Join(op.Inputs, ", "), strings.Join(op.Outputs, ", "))
	if op.Attribute != nil {
		s = s + " " + op.Attribute.String()
	}
	return s
}

// Module is a TOSA program with a single region and a single basic block.
type Module struct {
	// Name of the region and of the basic block.
	Name string

	tensors   []*Tensor
	byName    map[string]*Tensor
	operators []*Operator
	inputs    []string
	outputs   []string

	numConsts, numIntermediates int
}

// New creates an empty module.
func New() *Module {
	return &Module{
		Name:   DefaultBlockName,
		byName: make(map[string]*Tensor),
	}
}

// Tensors in declaration order.
func (m *Module) Tensors() []*Tensor { return m.tensors }

// Tensor returns the tensor with the given name, or nil if it was not declared.
func (m *Module) Tensor(name string) *Tensor { return m.byName[name] }

// Operators in emission order.
func (m *Module) Operators() []*Operator { return m.operators }

// Inputs returns the names of the input tensors, in declaration order.
func (m *Module) Inputs() []string { return m.inputs }

// Outputs returns the names of the tensors marked as outputs, in the order they were marked.
func (m *Module) Outputs() []string { return m.outputs }

func (m *Module) declare(name string, shape []int, dtype DType, origin Origin, data []byte) *Tensor {
	if name == "" {
		exceptions.Panicf("tosa: tensor without a name")
	}
	if _, found := m.byName[name]; found {
		exceptions.Panicf("tosa: tensor %q declared twice", name)
	}
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			exceptions.Panicf("tosa: tensor %q has a negative dimension in shape %v", name, shape)
		}
		size *= dim
	}
	if origin == OriginConstant && dtype.Size() > 0 && len(data) != size*dtype.Size() {
		exceptions.Panicf("tosa: constant %q of type %s%v requires %d bytes, got %d",
			name, dtype, shape, size*dtype.Size(), len(data))
	}
	t := &Tensor{Name: name, Shape: slices.Clone(shape), DType: dtype, Origin: origin, Data: data}
	m.tensors = append(m.tensors, t)
	m.byName[name] = t
	return t
}

// uniqueName returns "<prefix>-<n>" for the first n not yet used.
func (m *Module) uniqueName(prefix string, counter *int) string {
	for {
		name := fmt.Sprintf("%s-%d", prefix, *counter)
		*counter++
		if _, found := m.byName[name]; !found {
			return name
		}
	}
}

// AddInput declares an input tensor of the module.
func (m *Module) AddInput(name string, shape []int, dtype DType) *Tensor {
	t := m.declare(name, shape, dtype, OriginInput, nil)
	m.inputs = append(m.inputs, name)
	return t
}

// AddConst declares a constant tensor holding data, the raw little-endian values.
// If name is empty, a unique name is generated.
func (m *Module) AddConst(name string, shape []int, dtype DType, data []byte) *Tensor {
	if name == "" {
		name = m.uniqueName("const", &m.numConsts)
	}
	return m.declare(name, shape, dtype, OriginConstant, data)
}

// AddTensor declares a named intermediate tensor, typically the result of a source node.
func (m *Module) AddTensor(name string, shape []int, dtype DType) *Tensor {
	return m.declare(name, shape, dtype, OriginIntermediate, nil)
}

// AddIntermediate declares an intermediate tensor with a generated unique name.
func (m *Module) AddIntermediate(shape []int, dtype DType) *Tensor {
	return m.declare(m.uniqueName("layer", &m.numIntermediates), shape, dtype, OriginIntermediate, nil)
}

// AddOperator appends an instruction. All its inputs and outputs must have been declared.
// The attribute can be nil.
func (m *Module) AddOperator(op Op, attr Attribute, inputs, outputs []string) *Operator {
	if op == OpUnknown || op >= OpLast {
		exceptions.Panicf("tosa: invalid operator %s", op)
	}
	for _, names := range [][]string{inputs, outputs} {
		for _, name := range names {
			if _, found := m.byName[name]; !found {
				exceptions.Panicf("tosa: operator %s references undeclared tensor %q", op, name)
			}
		}
	}
	operator := &Operator{Op: op, Attribute: attr, Inputs: slices.Clone(inputs), Outputs: slices.Clone(outputs)}
	m.operators = append(m.operators, operator)
	return operator
}

// MarkOutput marks a declared tensor as an output of the module. Marking it again is a no-op.
func (m *Module) MarkOutput(name string) {
	if _, found := m.byName[name]; !found {
		exceptions.Panicf("tosa: cannot mark undeclared tensor %q as output", name)
	}
	if slices.Contains(m.outputs, name) {
		return
	}
	m.outputs = append(m.outputs, name)
}

// String returns a compact text listing of the module.
func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tosa.Module %q:\n", m.Name)
	sb.WriteString("  tensors:\n")
	for _, t := range m.tensors {
		fmt.Fprintf(&sb, "    %s\n", t)
	}
	sb.WriteString("  operators:\n")
	for _, op := range m.operators {
		fmt.Fprintf(&sb, "    %s\n", op)
	}
	fmt.Fprintf(&sb, "  inputs: %s\n", strings.Join(m.inputs, ", "))
	fmt.Fprintf(&sb, "  outputs: %s\n", strings.Join(m.outputs, ", "))
	return sb.String()
}
