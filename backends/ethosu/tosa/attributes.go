// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tosa

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// AttributeType is the tag of the attribute union in the TOSA 0.80 schema.
type AttributeType uint8

const (
	AttributeNone AttributeType = iota
	AttributePool
	AttributeConv
	AttributeTransposeConv
	AttributePad
	AttributeAxis
	AttributeReshape
	AttributeSlice
	AttributeTile
	AttributeResize
	AttributeClamp
	AttributeRescale
	AttributeMul
	AttributeArithmeticRightShift
	AttributeCondIf
	AttributeWhileLoop
	AttributeTranspose
	AttributeTable
	AttributeMatMul
	AttributeFullyConnected
	AttributeNegate
	AttributeCustom
	AttributeFFT
	AttributeRFFT
)

// Attribute is the optional payload of an Operator.
//
// Only the attributes emitted by the Ethos-U lowering are implemented.
type Attribute interface {
	fmt.Stringer

	// Type of the attribute, used as the union tag when serializing.
	Type() AttributeType

	// build writes the attribute table and returns its offset.
	build(b *flatbuffers.Builder) flatbuffers.UOffsetT
}

// PoolAttribute configures AVG_POOL2D and MAX_POOL2D.
type PoolAttribute struct {
	// Pad is [top, bottom, left, right].
	Pad        []int `json:"pad"`
	Kernel     []int `json:"kernel"`
	Stride     []int `json:"stride"`
	InputZp    int   `json:"input_zp"`
	OutputZp   int   `json:"output_zp"`
	AccumDType DType `json:"accum_dtype"`
}

func (a *PoolAttribute) Type() AttributeType { return AttributePool }

func (a *PoolAttribute) String() string {
	return fmt.Sprintf("{pad=%v kernel=%v stride=%v input_zp=%d output_zp=%d accum_dtype=%s}",
		a.Pad, a.Kernel, a.Stride, a.InputZp, a.OutputZp, a.AccumDType)
}

func (a *PoolAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	pad := int32Vector(b, a.Pad)
	kernel := int32Vector(b, a.Kernel)
	stride := int32Vector(b, a.Stride)
	b.StartObject(6)
	b.PrependUOffsetTSlot(0, pad, 0)
	b.PrependUOffsetTSlot(1, kernel, 0)
	b.PrependUOffsetTSlot(2, stride, 0)
	b.PrependInt32Slot(3, int32(a.InputZp), 0)
	b.PrependInt32Slot(4, int32(a.OutputZp), 0)
	b.PrependUint32Slot(5, uint32(a.AccumDType), 0)
	return b.EndObject()
}

// ConvAttribute configures CONV2D and DEPTHWISE_CONV2D.
type ConvAttribute struct {
	// Pad is [top, bottom, left, right].
	Pad      []int `json:"pad"`
	Stride   []int `json:"stride"`
	Dilation []int `json:"dilation"`
	InputZp  int   `json:"input_zp"`
	WeightZp int   `json:"weight_zp"`
}

func (a *ConvAttribute) Type() AttributeType { return AttributeConv }

func (a *ConvAttribute) String() string {
	return fmt.Sprintf("{pad=%v stride=%v dilation=%v input_zp=%d weight_zp=%d}",
		a.Pad, a.Stride, a.Dilation, a.InputZp, a.WeightZp)
}

func (a *ConvAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	pad := int32Vector(b, a.Pad)
	stride := int32Vector(b, a.Stride)
	dilation := int32Vector(b, a.Dilation)
	b.StartObject(5)
	b.PrependUOffsetTSlot(0, pad, 0)
	b.PrependUOffsetTSlot(1, stride, 0)
	b.PrependUOffsetTSlot(2, dilation, 0)
	b.PrependInt32Slot(3, int32(a.InputZp), 0)
	b.PrependInt32Slot(4, int32(a.WeightZp), 0)
	return b.EndObject()
}

// AxisAttribute configures the reductions.
type AxisAttribute struct {
	Axis int `json:"axis"`
}

func (a *AxisAttribute) Type() AttributeType { return AttributeAxis }

func (a *AxisAttribute) String() string { return fmt.Sprintf("{axis=%d}", a.Axis) }

func (a *AxisAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	b.StartObject(1)
	b.PrependInt32Slot(0, int32(a.Axis), 0)
	return b.EndObject()
}

// ReshapeAttribute configures RESHAPE.
type ReshapeAttribute struct {
	NewShape []int `json:"new_shape"`
}

func (a *ReshapeAttribute) Type() AttributeType { return AttributeReshape }

func (a *ReshapeAttribute) String() string { return fmt.Sprintf("{new_shape=%v}", a.NewShape) }

func (a *ReshapeAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	newShape := int32Vector(b, a.NewShape)
	b.StartObject(1)
	b.PrependUOffsetTSlot(0, newShape, 0)
	return b.EndObject()
}

// ClampAttribute configures CLAMP: the integer bounds are used for integer tensors, the floating
// point ones otherwise.
type ClampAttribute struct {
	MinInt int     `json:"min_int"`
	MaxInt int     `json:"max_int"`
	MinFP  float32 `json:"min_fp"`
	MaxFP  float32 `json:"max_fp"`
}

func (a *ClampAttribute) Type() AttributeType { return AttributeClamp }

func (a *ClampAttribute) String() string {
	return fmt.Sprintf("{min_int=%d max_int=%d min_fp=%g max_fp=%g}", a.MinInt, a.MaxInt, a.MinFP, a.MaxFP)
}

func (a *ClampAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	b.StartObject(4)
	b.PrependInt32Slot(0, int32(a.MinInt), 0)
	b.PrependInt32Slot(1, int32(a.MaxInt), 0)
	b.PrependFloat32Slot(2, a.MinFP, 0)
	b.PrependFloat32Slot(3, a.MaxFP, 0)
	return b.EndObject()
}

// MulAttribute configures MUL. Shift is only meaningful for integer tensors.
type MulAttribute struct {
	Shift int `json:"shift"`
}

func (a *MulAttribute) Type() AttributeType { return AttributeMul }

func (a *MulAttribute) String() string { return fmt.Sprintf("{shift=%d}", a.Shift) }

func (a *MulAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	b.StartObject(1)
	b.PrependInt32Slot(0, int32(a.Shift), 0)
	return b.EndObject()
}

// TransposeAttribute configures TRANSPOSE: output axis i is input axis Perms[i].
type TransposeAttribute struct {
	Perms []int `json:"perms"`
}

func (a *TransposeAttribute) Type() AttributeType { return AttributeTranspose }

func (a *TransposeAttribute) String() string { return fmt.Sprintf("{perms=%v}", a.Perms) }

func (a *TransposeAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	perms := int32Vector(b, a.Perms)
	b.StartObject(1)
	b.PrependUOffsetTSlot(0, perms, 0)
	return b.EndObject()
}

// MatMulAttribute configures MATMUL with the zero points of its operands.
type MatMulAttribute struct {
	AZp int `json:"a_zp"`
	BZp int `json:"b_zp"`
}

func (a *MatMulAttribute) Type() AttributeType { return AttributeMatMul }

func (a *MatMulAttribute) String() string { return fmt.Sprintf("{a_zp=%d b_zp=%d}", a.AZp, a.BZp) }

func (a *MatMulAttribute) build(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	b.StartObject(2)
	b.PrependInt32Slot(0, int32(a.AZp), 0)
	b.PrependInt32Slot(1, int32(a.BZp), 0)
	return b.EndObject()
}
