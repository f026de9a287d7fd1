// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "fmt"

// OpType is an enum of the source graph operations known to the delegates.
//
// A delegate declares which of them it can lower with its Capabilities: knowing an OpType doesn't imply support.
type OpType int

const (
	OpTypeInvalid OpType = iota

	// Operations lowered by the Ethos-U delegate.

	OpTypeAdd
	OpTypeAddmm
	OpTypePermuteCopy
	OpTypeHardtanh
	OpTypeConvolution
	OpTypeDiv
	OpTypeBatchNormNoTraining
	OpTypeAvgPool2d
	OpTypeSoftmax
	OpTypeGetItem

	// Operations recognized, but not lowered by any delegate yet.

	OpTypeSub
	OpTypeMul
	OpTypeRelu
	OpTypeMaxPool2d
	OpTypeMean
	OpTypeView
	OpTypeMm

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

var opTypeNames = [...]string{
	OpTypeInvalid:             "Invalid",
	OpTypeAdd:                 "Add",
	OpTypeAddmm:               "Addmm",
	OpTypePermuteCopy:         "PermuteCopy",
	OpTypeHardtanh:            "Hardtanh",
	OpTypeConvolution:         "Convolution",
	OpTypeDiv:                 "Div",
	OpTypeBatchNormNoTraining: "BatchNormNoTraining",
	OpTypeAvgPool2d:           "AvgPool2d",
	OpTypeSoftmax:             "Softmax",
	OpTypeGetItem:             "GetItem",
	OpTypeSub:                 "Sub",
	OpTypeMul:                 "Mul",
	OpTypeRelu:                "Relu",
	OpTypeMaxPool2d:           "MaxPool2d",
	OpTypeMean:                "Mean",
	OpTypeView:                "View",
	OpTypeMm:                  "Mm",
	OpTypeLast:                "Last",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || int(op) >= len(opTypeNames) {
		return fmt.Sprintf("OpType(%d)", int(op))
	}
	return opTypeNames[op]
}

// targetToOpType maps the call targets of the exported graphs (the edge dialect operator names) to OpType.
var targetToOpType = map[string]OpType{
	"aten.add.Tensor":                                   OpTypeAdd,
	"aten.addmm.default":                                OpTypeAddmm,
	"aten.permute_copy.default":                         OpTypePermuteCopy,
	"aten.hardtanh.default":                             OpTypeHardtanh,
	"aten.convolution.default":                          OpTypeConvolution,
	"aten.div.Tensor":                                   OpTypeDiv,
	"aten._native_batch_norm_legit_no_training.default": OpTypeBatchNormNoTraining,
	"aten.avg_pool2d.default":                           OpTypeAvgPool2d,
	"aten._softmax.default":                             OpTypeSoftmax,
	"getitem":                                           OpTypeGetItem,
	"aten.sub.Tensor":                                   OpTypeSub,
	"aten.mul.Tensor":                                   OpTypeMul,
	"aten.relu.default":                                 OpTypeRelu,
	"aten.max_pool2d.default":                           OpTypeMaxPool2d,
	"aten.mean.dim":                                     OpTypeMean,
	"aten.view_copy.default":                            OpTypeView,
	"aten.mm.default":                                   OpTypeMm,
}

// OpTypeForTarget returns the OpType of a call target, or OpTypeInvalid if the target is not known.
func OpTypeForTarget(target string) OpType {
	if op, found := targetToOpType[target]; found {
		return op
	}
	return OpTypeInvalid
}

// TargetForOpType returns the canonical call target of op, or "" if it has none.
func TargetForOpType(op OpType) string {
	for target, op2 := range targetToOpType {
		if op2 == op {
			return target
		}
	}
	return ""
}
