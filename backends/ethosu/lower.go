// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// lowerer holds the state of the lowering of one program.
type lowerer struct {
	program *program.ExportedProgram
	caps    backends.Capabilities
	module  *tosa.Module

	// node being lowered, and its result tensor (for call nodes).
	node *graph.Node
	out  Operand
}

// Lower converts every node of the program, in topological order, to TOSA: placeholders become inputs
// or constants (parameters and buffers, with their stored values), call nodes become one or more
// operators writing to a tensor named after the node, and the output node marks the module outputs.
//
// It is normally used on a partition extracted with program.Extract, whose call nodes are all supported.
// It returns a *ClassificationError if an operand is neither a tensor nor a literal, and a
// *LoweringError for any other failure.
func Lower(p *program.ExportedProgram) (*tosa.Module, error) {
	if p == nil || p.Graph == nil {
		return nil, errors.New("ethosu: cannot lower a nil program")
	}
	l := &lowerer{program: p, caps: capabilities, module: tosa.New()}
	for _, node := range p.Graph.Nodes() {
		err := exceptions.TryCatch[error](func() { l.lowerNode(node) })
		if err == nil {
			continue
		}
		var classErr *ClassificationError
		if errors.As(err, &classErr) {
			if classErr.Node == nil {
				classErr.Node = node
			}
			return nil, err
		}
		klog.V(1).Infof("ethosu: failed to lower node:\n%s", node.Describe())
		return nil, &LoweringError{Node: node, Module: l.module, Err: err}
	}
	klog.V(1).Infof("ethosu: lowered program %q: %d nodes into %d TOSA operators",
		p.Name, p.Graph.NumNodes(), len(l.module.Operators()))
	return l.module, nil
}

func (l *lowerer) lowerNode(node *graph.Node) {
	l.node = node
	l.out = Operand{}
	klog.V(2).Infof("ethosu: lowering %s", node)
	switch node.Kind() {
	case graph.NodeKindPlaceholder:
		l.lowerPlaceholder()
	case graph.NodeKindOutput:
		l.lowerOutput()
	case graph.NodeKindCallFunction:
		l.lowerCall()
	default:
		exceptions.Panicf("unknown node kind %s", node.Kind())
	}
}

func (l *lowerer) lowerPlaceholder() {
	node := l.node
	if node.NumArgs() > 0 || len(node.Kwargs()) > 0 {
		exceptions.Panicf("placeholder %q has default values, which are not supported", node.Name())
	}
	out, err := ResolveNode(node)
	if err != nil {
		l.classificationFailure(err)
	}
	l.out = out
	dtype := l.tosaDType(out.DType())
	if !l.program.IsParameterOrBuffer(node) {
		l.module.AddInput(node.Name(), out.Dims(), dtype)
		return
	}
	value, found := l.program.StoredTensor(node)
	if !found {
		exceptions.Panicf("parameter or buffer %q has no stored value", node.Name())
	}
	if value.DType() != out.DType() || value.Memory() != out.Shape.Memory() {
		exceptions.Panicf("stored value of %q is %s, which doesn't match its declared shape %s",
			node.Name(), value, out.Shape)
	}
	l.module.AddConst(node.Name(), out.Dims(), dtype, value.Bytes())
}

func (l *lowerer) lowerOutput() {
	results := l.node.Results()
	if len(results) == 0 {
		exceptions.Panicf("output node has no results")
	}
	for _, result := range results {
		if l.module.Tensor(result.Name()) == nil {
			exceptions.Panicf("output %q was not lowered", result.Name())
		}
		l.module.MarkOutput(result.Name())
	}
}

func (l *lowerer) lowerCall() {
	node := l.node
	if !l.caps.Supports(node.OpType()) {
		exceptions.Panicf("operation %q is not supported by the Ethos-U delegate", node.Target())
	}
	out, err := ResolveNode(node)
	if err != nil {
		l.classificationFailure(err)
	}
	l.out = out
	l.module.AddTensor(node.Name(), out.Dims(), l.tosaDType(out.DType()))

	switch node.OpType() {
	case backends.OpTypeAdd:
		l.lowerAdd()
	case backends.OpTypeAddmm:
		l.lowerAddmm()
	case backends.OpTypePermuteCopy:
		l.lowerPermute()
	case backends.OpTypeHardtanh:
		l.lowerHardtanh()
	case backends.OpTypeConvolution:
		l.lowerConvolution()
	case backends.OpTypeDiv:
		l.lowerDiv()
	case backends.OpTypeBatchNormNoTraining:
		l.lowerBatchNorm()
	case backends.OpTypeAvgPool2d:
		l.lowerAvgPool2d()
	case backends.OpTypeSoftmax:
		l.lowerSoftmax()
	case backends.OpTypeGetItem:
		l.lowerGetItem()
	default:
		exceptions.Panicf("no lowering rule for operation %s (%q)", node.OpType(), node.Target())
	}
}
