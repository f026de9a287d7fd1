// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package program

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/ethosu/pkg/core/tensors/numpy"
	"github.com/gomlx/ethosu/pkg/support/fsutil"
	"github.com/gomlx/ethosu/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// File is the YAML description of an exported program.
//
// Operands (args and kwargs) are written in YAML's own notation: integers, floats, booleans and `null` are
// literals; strings are references to previously defined nodes; lists of them are literal lists or node lists.
//
// Example:
//
//	name: linear
//	state_dict: linear.npz
//	signature:
//	  inputs_to_parameters: {p_weight: fc.weight, p_bias: fc.bias}
//	nodes:
//	  - {name: x, op: placeholder, dtype: float32, shape: [1, 4]}
//	  - {name: p_weight, op: placeholder, dtype: float32, shape: [4, 2]}
//	  - {name: p_bias, op: placeholder, dtype: float32, shape: [2]}
//	  - name: aten_addmm_default
//	    op: call_function
//	    target: aten.addmm.default
//	    args: [p_bias, x, p_weight]
//	    dtype: float32
//	    shape: [1, 2]
//	  - {name: output, op: output, args: [[aten_addmm_default]]}
type File struct {
	Name string `yaml:"name"`

	// StateDict is the path of the .npz file with the parameters and buffers, relative to the YAML file.
	StateDict string `yaml:"state_dict,omitempty"`

	Signature FileSignature `yaml:"signature,omitempty"`
	Nodes     []FileNode    `yaml:"nodes"`
}

// FileSignature is the YAML form of Signature.
type FileSignature struct {
	InputsToParameters map[string]string `yaml:"inputs_to_parameters,omitempty"`
	InputsToBuffers    map[string]string `yaml:"inputs_to_buffers,omitempty"`
}

// FileNode is the YAML form of a graph node.
type FileNode struct {
	Name   string               `yaml:"name"`
	Op     string               `yaml:"op"`
	Target string               `yaml:"target,omitempty"`
	Args   []yaml.Node          `yaml:"args,omitempty"`
	Kwargs map[string]yaml.Node `yaml:"kwargs,omitempty"`
	DType  string               `yaml:"dtype,omitempty"`
	Shape  []int                `yaml:"shape,omitempty"`
	Meta   map[string]string    `yaml:"meta,omitempty"`
}

var dtypeNames = map[string]dtypes.DType{
	"bool":    dtypes.Bool,
	"int8":    dtypes.Int8,
	"uint8":   dtypes.Uint8,
	"int16":   dtypes.Int16,
	"uint16":  dtypes.Uint16,
	"int32":   dtypes.Int32,
	"uint32":  dtypes.Uint32,
	"int64":   dtypes.Int64,
	"uint64":  dtypes.Uint64,
	"float16": dtypes.Float16,
	"float32": dtypes.Float32,
	"float64": dtypes.Float64,
}

func dtypeFromName(name string) (dtypes.DType, error) {
	if dtype, found := dtypeNames[strings.ToLower(name)]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unknown dtype %q", name)
}

func dtypeName(dtype dtypes.DType) string {
	for name, dt := range dtypeNames {
		if dt == dtype {
			return name
		}
	}
	return strings.ToLower(dtype.String())
}

// Load reads a program from its YAML file, and its state dict from the referenced .npz file.
// A leading "~" in the path is expanded to the user's home directory.
func Load(filePath string) (*ExportedProgram, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read program file %q", filePath)
	}
	p, err := Parse(data, filepath.Dir(filePath))
	if err != nil {
		return nil, errors.WithMessagef(err, "while loading program %q", filePath)
	}
	return p, nil
}

// Parse a program from its YAML contents. baseDir is used to resolve the path of the state dict.
func Parse(data []byte, baseDir string) (*ExportedProgram, error) {
	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "failed to parse program YAML")
	}

	var p *ExportedProgram
	err := exceptions.TryCatch[error](func() { p = buildFromFile(&file) })
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid program %q", file.Name)
	}
	for k, v := range file.Signature.InputsToParameters {
		p.Signature.InputsToParameters[k] = v
	}
	for k, v := range file.Signature.InputsToBuffers {
		p.Signature.InputsToBuffers[k] = v
	}

	if file.StateDict != "" {
		npzPath := file.StateDict
		if !filepath.IsAbs(npzPath) {
			npzPath = filepath.Join(baseDir, npzPath)
		}
		entries, err := numpy.FromNpzFile(npzPath)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load state dict of program %q", file.Name)
		}
		p.StateDict = numpy.EntriesToMap(entries)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	klog.V(1).Infof("loaded program %q: %d nodes, %d stored tensors", p.Name, p.Graph.NumNodes(), len(p.StateDict))
	return p, nil
}

func buildFromFile(file *File) *ExportedProgram {
	g := graph.New()
	p := New(file.Name, g)
	for ii, fn := range file.Nodes {
		shape := shapes.Invalid()
		if fn.DType != "" {
			dtype, err := dtypeFromName(fn.DType)
			if err != nil {
				panic(errors.WithMessagef(err, "node #%d %q", ii, fn.Name))
			}
			shape = shapes.Make(dtype, fn.Shape...)
		} else if len(fn.Shape) > 0 {
			exceptions.Panicf("node #%d %q has a shape but no dtype", ii, fn.Name)
		}
		args := make([]graph.Argument, len(fn.Args))
		for jj := range fn.Args {
			args[jj] = argumentFromYAML(g, &fn.Args[jj])
		}
		var kwargs map[string]graph.Argument
		if len(fn.Kwargs) > 0 {
			kwargs = make(map[string]graph.Argument, len(fn.Kwargs))
			for key, value := range fn.Kwargs {
				kwargs[key] = argumentFromYAML(g, &value)
			}
		}

		var node *graph.Node
		switch fn.Op {
		case "placeholder":
			node = g.Placeholder(fn.Name, shape, args...)
		case "call_function":
			node = g.Call(fn.Name, fn.Target, shape, args, kwargs)
		case "output":
			var results []*graph.Node
			if len(args) > 0 {
				switch args[0].Kind {
				case graph.ArgumentKindNodes:
					results = args[0].Nodes
				case graph.ArgumentKindNode:
					results = []*graph.Node{args[0].Node}
				case graph.ArgumentKindInts:
					if len(args[0].Ints) > 0 {
						exceptions.Panicf("output node must list the result nodes, got %s", args[0])
					}
				default:
					exceptions.Panicf("output node must list the result nodes, got %s", args[0])
				}
			}
			node = g.Output(results...)
		default:
			exceptions.Panicf("node #%d %q has unknown op %q", ii, fn.Name, fn.Op)
		}
		for key, value := range fn.Meta {
			node.SetMeta(key, value)
		}
	}
	return p
}

// argumentFromYAML converts a YAML value to an Argument, resolving strings as node references.
func argumentFromYAML(g *graph.Graph, value *yaml.Node) graph.Argument {
	switch value.Kind {
	case yaml.ScalarNode:
		return scalarFromYAML(g, value)
	case yaml.SequenceNode:
		if len(value.Content) == 0 {
			return graph.IntsArg()
		}
		elements := xslices.Map(value.Content, func(e *yaml.Node) graph.Argument {
			if e.Kind != yaml.ScalarNode {
				exceptions.Panicf("line %d: nested lists are not supported as operands", e.Line)
			}
			return scalarFromYAML(g, e)
		})
		switch elements[0].Kind {
		case graph.ArgumentKindNode:
			nodes := make([]*graph.Node, len(elements))
			for ii, e := range elements {
				if e.Kind != graph.ArgumentKindNode {
					exceptions.Panicf("line %d: list mixes node references and literals", value.Line)
				}
				nodes[ii] = e.Node
			}
			return graph.NodesArg(nodes...)
		case graph.ArgumentKindInt, graph.ArgumentKindFloat:
			allInts := true
			for _, e := range elements {
				if !e.IsNumber() {
					exceptions.Panicf("line %d: list mixes numbers with %s", value.Line, e.Kind)
				}
				allInts = allInts && e.Kind == graph.ArgumentKindInt
			}
			if allInts {
				return graph.IntsArg(xslices.Map(elements, func(e graph.Argument) int { return e.Int })...)
			}
			return graph.FloatsArg(xslices.Map(elements, func(e graph.Argument) float64 {
				v, _ := e.AsFloat()
				return v
			})...)
		default:
			exceptions.Panicf("line %d: unsupported list of %s", value.Line, elements[0].Kind)
		}
	}
	exceptions.Panicf("line %d: unsupported operand", value.Line)
	return graph.Argument{}
}

func scalarFromYAML(g *graph.Graph, value *yaml.Node) graph.Argument {
	switch value.ShortTag() {
	case "!!null":
		return graph.NoneArg()
	case "!!bool":
		var b bool
		if err := value.Decode(&b); err != nil {
			panic(errors.Wrapf(err, "line %d", value.Line))
		}
		return graph.BoolArg(b)
	case "!!int":
		var i int
		if err := value.Decode(&i); err != nil {
			panic(errors.Wrapf(err, "line %d", value.Line))
		}
		return graph.IntArg(i)
	case "!!float":
		var f float64
		if err := value.Decode(&f); err != nil {
			panic(errors.Wrapf(err, "line %d", value.Line))
		}
		return graph.FloatArg(f)
	case "!!str":
		node := g.NodeByName(value.Value)
		if node == nil {
			exceptions.Panicf("line %d: reference to undefined node %q", value.Line, value.Value)
		}
		return graph.NodeArg(node)
	}
	exceptions.Panicf("line %d: unsupported scalar %q (tag %s)", value.Line, value.Value, value.ShortTag())
	return graph.Argument{}
}

// Save writes the program as a YAML file, and its state dict (if not empty) as an .npz file with the same
// base name next to it.
func Save(p *ExportedProgram, filePath string) error {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	file := File{
		Name: p.Name,
		Signature: FileSignature{
			InputsToParameters: p.Signature.InputsToParameters,
			InputsToBuffers:    p.Signature.InputsToBuffers,
		},
	}
	if len(p.StateDict) > 0 {
		npzName := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)) + ".npz"
		entries := make([]numpy.Entry, 0, len(p.StateDict))
		for _, key := range xslices.SortedKeys(p.StateDict) {
			entries = append(entries, numpy.Entry{Name: key, Tensor: p.StateDict[key]})
		}
		if err := numpy.ToNpzFile(entries, filepath.Join(filepath.Dir(filePath), npzName)); err != nil {
			return errors.WithMessagef(err, "failed to save state dict of program %q", p.Name)
		}
		file.StateDict = npzName
	}
	for _, n := range p.Graph.Nodes() {
		file.Nodes = append(file.Nodes, nodeToFile(n))
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal program %q", p.Name)
	}
	if err = os.WriteFile(filePath, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write program file %q", filePath)
	}
	return nil
}

func nodeToFile(n *graph.Node) FileNode {
	fn := FileNode{
		Name:   n.Name(),
		Op:     n.Kind().String(),
		Target: n.Target(),
	}
	if n.HasShape() {
		fn.DType = dtypeName(n.DType())
		fn.Shape = n.Shape().Dimensions
	}
	for _, a := range n.Args() {
		fn.Args = append(fn.Args, *argumentToYAML(a))
	}
	if len(n.Kwargs()) > 0 {
		fn.Kwargs = make(map[string]yaml.Node, len(n.Kwargs()))
		for key, a := range n.Kwargs() {
			fn.Kwargs[key] = *argumentToYAML(a)
		}
	}
	if keys := n.MetaKeys(); len(keys) > 0 {
		fn.Meta = make(map[string]string, len(keys))
		for _, key := range keys {
			fn.Meta[key] = n.Meta(key)
		}
	}
	return fn
}

func scalarYAML(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func argumentToYAML(a graph.Argument) *yaml.Node {
	switch a.Kind {
	case graph.ArgumentKindNone:
		return scalarYAML("!!null", "null")
	case graph.ArgumentKindNode:
		return scalarYAML("!!str", a.Node.Name())
	case graph.ArgumentKindInt:
		return scalarYAML("!!int", strconv.Itoa(a.Int))
	case graph.ArgumentKindFloat:
		return scalarYAML("!!float", formatFloat(a.Float))
	case graph.ArgumentKindBool:
		return scalarYAML("!!bool", strconv.FormatBool(a.Bool))
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	switch a.Kind {
	case graph.ArgumentKindNodes:
		for _, n := range a.Nodes {
			seq.Content = append(seq.Content, scalarYAML("!!str", n.Name()))
		}
	case graph.ArgumentKindInts:
		for _, v := range a.Ints {
			seq.Content = append(seq.Content, scalarYAML("!!int", strconv.Itoa(v)))
		}
	case graph.ArgumentKindFloats:
		for _, v := range a.Floats {
			seq.Content = append(seq.Content, scalarYAML("!!float", formatFloat(v)))
		}
	default:
		exceptions.Panicf("cannot save invalid argument")
	}
	return seq
}
