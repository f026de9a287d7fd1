// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tosa

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// DType is the TOSA element type, with the values of the TOSA 0.80 schema.
type DType uint32

const (
	DTypeUnknown DType = iota
	DTypeBool
	DTypeUint8
	DTypeInt4
	DTypeInt8
	DTypeInt16
	DTypeInt32
	DTypeInt48
	DTypeFP32
	DTypeUint16
	DTypeFP16
	DTypeBF16
	DTypeShape
)

var dtypeNames = [...]string{
	DTypeUnknown: "UNKNOWN",
	DTypeBool:    "BOOL",
	DTypeUint8:   "UINT8",
	DTypeInt4:    "INT4",
	DTypeInt8:    "INT8",
	DTypeInt16:   "INT16",
	DTypeInt32:   "INT32",
	DTypeInt48:   "INT48",
	DTypeFP32:    "FP32",
	DTypeUint16:  "UINT16",
	DTypeFP16:    "FP16",
	DTypeBF16:    "BF16",
	DTypeShape:   "SHAPE",
}

// String implements fmt.Stringer.
func (d DType) String() string {
	if int(d) >= len(dtypeNames) {
		return fmt.Sprintf("DType(%d)", uint32(d))
	}
	return dtypeNames[d]
}

// Size in bytes of one element, or 0 if the type has no fixed byte size.
func (d DType) Size() int {
	switch d {
	case DTypeBool, DTypeUint8, DTypeInt8:
		return 1
	case DTypeInt16, DTypeUint16, DTypeFP16, DTypeBF16:
		return 2
	case DTypeInt32, DTypeFP32:
		return 4
	case DTypeInt48:
		return 6
	default:
		return 0
	}
}

// FromDType converts a source element type to its TOSA counterpart.
func FromDType(dtype dtypes.DType) (DType, error) {
	switch dtype {
	case dtypes.Bool:
		return DTypeBool, nil
	case dtypes.Uint8:
		return DTypeUint8, nil
	case dtypes.Int8:
		return DTypeInt8, nil
	case dtypes.Int16:
		return DTypeInt16, nil
	case dtypes.Int32:
		return DTypeInt32, nil
	case dtypes.Uint16:
		return DTypeUint16, nil
	case dtypes.Float32:
		return DTypeFP32, nil
	case dtypes.Float16:
		return DTypeFP16, nil
	case dtypes.BFloat16:
		return DTypeBF16, nil
	default:
		return DTypeUnknown, errors.Errorf("dtype %s has no TOSA 0.80 equivalent", dtype)
	}
}

// Op is the TOSA operator code, with the values of the TOSA 0.80 schema.
type Op uint32

const (
	OpUnknown Op = iota
	OpArgMax
	OpAvgPool2D
	OpConv2D
	OpConv3D
	OpDepthwiseConv2D
	OpFullyConnected
	OpMatMul
	OpMaxPool2D
	OpTransposeConv2D
	OpClamp
	OpReserved
	OpSigmoid
	OpTanh
	OpAdd
	OpArithmeticRightShift
	OpBitwiseAnd
	OpBitwiseOr
	OpBitwiseXor
	OpIntDiv
	OpLogicalAnd
	OpLogicalLeftShift
	OpLogicalRightShift
	OpLogicalOr
	OpLogicalXor
	OpMaximum
	OpMinimum
	OpMul
	OpPow
	OpSub
	OpTable
	OpAbs
	OpBitwiseNot
	OpCeil
	OpClz
	OpExp
	OpFloor
	OpLog
	OpLogicalNot
	OpNegate
	OpReciprocal
	OpRsqrt
	OpSelect
	OpEqual
	OpGreater
	OpGreaterEqual
	OpReduceAny
	OpReduceAll
	OpReduceMax
	OpReduceMin
	OpReduceProduct
	OpReduceSum
	OpConcat
	OpPad
	OpReshape
	OpReverse
	OpSlice
	OpTile
	OpTranspose
	OpGather
	OpScatter
	OpResize
	OpCast
	OpRescale
	OpConst
	OpIdentity
	OpCustom
	OpCondIf
	OpWhileLoop
	OpFFT2D
	OpRFFT2D
	OpErf
	OpDim

	// OpLast is kept last, as a counter.
	OpLast
)

var opNames = [...]string{
	OpUnknown:              "UNKNOWN",
	OpArgMax:               "ARGMAX",
	OpAvgPool2D:            "AVG_POOL2D",
	OpConv2D:               "CONV2D",
	OpConv3D:               "CONV3D",
	OpDepthwiseConv2D:      "DEPTHWISE_CONV2D",
	OpFullyConnected:       "FULLY_CONNECTED",
	OpMatMul:               "MATMUL",
	OpMaxPool2D:            "MAX_POOL2D",
	OpTransposeConv2D:      "TRANSPOSE_CONV2D",
	OpClamp:                "CLAMP",
	OpReserved:             "RESERVED",
	OpSigmoid:              "SIGMOID",
	OpTanh:                 "TANH",
	OpAdd:                  "ADD",
	OpArithmeticRightShift: "ARITHMETIC_RIGHT_SHIFT",
	OpBitwiseAnd:           "BITWISE_AND",
	OpBitwiseOr:            "BITWISE_OR",
	OpBitwiseXor:           "BITWISE_XOR",
	OpIntDiv:               "INTDIV",
	OpLogicalAnd:           "LOGICAL_AND",
	OpLogicalLeftShift:     "LOGICAL_LEFT_SHIFT",
	OpLogicalRightShift:    "LOGICAL_RIGHT_SHIFT",
	OpLogicalOr:            "LOGICAL_OR",
	OpLogicalXor:           "LOGICAL_XOR",
	OpMaximum:              "MAXIMUM",
	OpMinimum:              "MINIMUM",
	OpMul:                  "MUL",
	OpPow:                  "POW",
	OpSub:                  "SUB",
	OpTable:                "TABLE",
	OpAbs:                  "ABS",
	OpBitwiseNot:           "BITWISE_NOT",
	OpCeil:                 "CEIL",
	OpClz:                  "CLZ",
	OpExp:                  "EXP",
	OpFloor:                "FLOOR",
	OpLog:                  "LOG",
	OpLogicalNot:           "LOGICAL_NOT",
	OpNegate:               "NEGATE",
	OpReciprocal:           "RECIPROCAL",
	OpRsqrt:                "RSQRT",
	OpSelect:               "SELECT",
	OpEqual:                "EQUAL",
	OpGreater:              "GREATER",
	OpGreaterEqual:         "GREATER_EQUAL",
	OpReduceAny:            "REDUCE_ANY",
	OpReduceAll:            "REDUCE_ALL",
	OpReduceMax:            "REDUCE_MAX",
	OpReduceMin:            "REDUCE_MIN",
	OpReduceProduct:        "REDUCE_PRODUCT",
	OpReduceSum:            "REDUCE_SUM",
	OpConcat:               "CONCAT",
	OpPad:                  "PAD",
	OpReshape:              "RESHAPE",
	OpReverse:              "REVERSE",
	OpSlice:                "SLICE",
	OpTile:                 "TILE",
	OpTranspose:            "TRANSPOSE",
	OpGather:               "GATHER",
	OpScatter:              "SCATTER",
	OpResize:               "RESIZE",
	OpCast:                 "CAST",
	OpRescale:              "RESCALE",
	OpConst:                "CONST",
	OpIdentity:             "IDENTITY",
	OpCustom:               "CUSTOM",
	OpCondIf:               "COND_IF",
	OpWhileLoop:            "WHILE_LOOP",
	OpFFT2D:                "FFT2D",
	OpRFFT2D:               "RFFT2D",
	OpErf:                  "ERF",
	OpDim:                  "DIM",
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if op >= OpLast {
		return fmt.Sprintf("Op(%d)", uint32(op))
	}
	return opNames[op]
}

// Origin of a tensor declared in a Module.
type Origin int

const (
	OriginInput Origin = iota
	OriginConstant
	OriginIntermediate
)

// String implements fmt.Stringer.
func (o Origin) String() string {
	switch o {
	case OriginInput:
		return "input"
	case OriginConstant:
		return "const"
	case OriginIntermediate:
		return "intermediate"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}
