// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/gopjrt/dtypes"
)

// capabilities of the Ethos-U delegate: operations it lowers to TOSA, and the element types TOSA 0.80
// can represent. Use Capabilities to get a copy.
var capabilities = backends.Capabilities{
	Operations: map[backends.OpType]bool{
		backends.OpTypeAdd:                 true,
		backends.OpTypeAddmm:               true,
		backends.OpTypePermuteCopy:         true,
		backends.OpTypeHardtanh:            true,
		backends.OpTypeConvolution:         true,
		backends.OpTypeDiv:                 true,
		backends.OpTypeBatchNormNoTraining: true,
		backends.OpTypeAvgPool2d:           true,
		backends.OpTypeSoftmax:             true,
		backends.OpTypeGetItem:             true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Bool:     true,
		dtypes.Uint8:    true,
		dtypes.Int8:     true,
		dtypes.Int16:    true,
		dtypes.Int32:    true,
		dtypes.Uint16:   true,
		dtypes.Float16:  true,
		dtypes.BFloat16: true,
		dtypes.Float32:  true,
	},
}

// Capabilities returns a copy of the capabilities of the Ethos-U delegate.
func Capabilities() backends.Capabilities {
	return capabilities.Clone()
}

// SupportsNode returns whether node is an operation call whose target is among the operations of caps.
func SupportsNode(caps backends.Capabilities, node *graph.Node) bool {
	return node.Kind() == graph.NodeKindCallFunction && caps.Supports(node.OpType())
}

// IsSupported returns whether the Ethos-U delegate can lower node.
func IsSupported(node *graph.Node) bool {
	return SupportsNode(capabilities, node)
}
