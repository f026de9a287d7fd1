// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
)

func TestOpTypeForTarget(t *testing.T) {
	assert.Equal(t, OpTypeAdd, OpTypeForTarget("aten.add.Tensor"))
	assert.Equal(t, OpTypeGetItem, OpTypeForTarget("getitem"))
	assert.Equal(t, OpTypeBatchNormNoTraining, OpTypeForTarget("aten._native_batch_norm_legit_no_training.default"))
	assert.Equal(t, OpTypeInvalid, OpTypeForTarget("aten.sin.default"))
	assert.Equal(t, "aten._softmax.default", TargetForOpType(OpTypeSoftmax))
	assert.Equal(t, "", TargetForOpType(OpTypeInvalid))

	// All OpTypes have names.
	for op := OpTypeInvalid; op <= OpTypeLast; op++ {
		assert.NotEmpty(t, op.String())
	}
	assert.Equal(t, "PermuteCopy", OpTypePermuteCopy.String())
	assert.Equal(t, "OpType(1000)", OpType(1000).String())
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{
		Operations: map[OpType]bool{OpTypeAdd: true},
		DTypes:     map[dtypes.DType]bool{dtypes.Float32: true},
	}
	assert.True(t, c.Supports(OpTypeAdd))
	assert.False(t, c.Supports(OpTypeSub))
	assert.True(t, c.SupportsDType(dtypes.Float32))
	assert.False(t, c.SupportsDType(dtypes.Int64))

	c2 := c.Clone()
	c2.Operations[OpTypeSub] = true
	assert.False(t, c.Supports(OpTypeSub))
	assert.True(t, c2.Supports(OpTypeSub))

	assert.True(t, Capabilities{}.SupportsDType(dtypes.Int8))
}
