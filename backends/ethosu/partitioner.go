// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/backends/partitioner"
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/pkg/errors"
)

// DelegationSpec tells the host which backend compiles a partition, and with which compile specs.
type DelegationSpec struct {
	BackendID    string
	CompileSpecs []CompileSpec
}

// PartitionResult is the program annotated with delegation tags, its partitions and the delegation
// spec for each tag.
type PartitionResult struct {
	Program         *program.ExportedProgram
	Partitions      []*partitioner.Partition
	DelegationSpecs map[string]DelegationSpec
}

// Partition groups the nodes of p supported by caps into partitions, and tags them in the node
// metadata (graph.MetaDelegationTag). Single-node partitions are kept.
//
// The graph of p is modified in place (only its metadata).
func Partition(p *program.ExportedProgram, caps backends.Capabilities, specs []CompileSpec) (*PartitionResult, error) {
	if p == nil || p.Graph == nil {
		return nil, errors.New("ethosu: cannot partition a nil program")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pred := func(node *graph.Node) bool { return SupportsNode(caps, node) }
	partitions := partitioner.Propose(p.Graph, pred, partitioner.Options{AllowSingleNodePartition: true})
	tags := partitioner.Tag(partitions)
	result := &PartitionResult{
		Program:         p,
		Partitions:      partitions,
		DelegationSpecs: make(map[string]DelegationSpec, len(tags)),
	}
	for tag := range tags {
		result.DelegationSpecs[tag] = DelegationSpec{BackendID: BackendName, CompileSpecs: specs}
	}
	return result, nil
}
