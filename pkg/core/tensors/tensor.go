// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, a host-side multidimensional array used for the stored
// parameters and buffers of an exported program, and for the constants of a lowered module.
//
// A Tensor is defined by its shape (a data type and its axes' dimensions) and its contents, kept as
// a flat row-major (C-order) little-endian byte buffer, the layout expected by the TOSA serializer.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromRaw(shape shapes.Shape, data []byte): wraps a copy of raw bytes, validating their length.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int): filled with the value given.
package tensors

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array stored on the host as a flat row-major byte buffer.
//
// Tensors are immutable once created: Bytes returns the tensor's own storage and it should not be changed.
type Tensor struct {
	shape shapes.Shape
	data  []byte
}

// FromShape returns a zero-initialized Tensor with the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	return &Tensor{shape: shape.Clone(), data: make([]byte, shape.Memory())}
}

// FromRaw returns a Tensor with a copy of the given raw (little-endian, row-major) bytes.
// It returns an error if the length of data doesn't match the memory required by shape.
func FromRaw(shape shapes.Shape, data []byte) (*Tensor, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("tensors.FromRaw(%s): invalid shape", shape)
	}
	if uintptr(len(data)) != shape.Memory() {
		return nil, errors.Errorf("tensors.FromRaw(%s): data has %d bytes, but the shape requires %d bytes",
			shape, len(data), shape.Memory())
	}
	return &Tensor{shape: shape.Clone(), data: slices.Clone(data)}, nil
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	if len(data) > 0 {
		var dummy T
		dataAsBytes := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), uintptr(len(data))*unsafe.Sizeof(dummy))
		copy(t.data, dataAsBytes)
	}
	return t
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the
// given scalar value replicated everywhere.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	flat := make([]T, shape.Size())
	for ii := range flat {
		flat[ii] = value
	}
	return FromFlatDataAndDimensions(flat, dimensions...)
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Size is the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory is the number of bytes used by the tensor contents.
func (t *Tensor) Memory() uintptr { return uintptr(len(t.data)) }

// Bytes returns the tensor contents as raw bytes. The slice is owned by the Tensor and should not be changed.
func (t *Tensor) Bytes() []byte { return t.data }

// CopyFlatData returns a copy of the tensor contents as a flat slice of T.
//
// It panics if T doesn't match the tensor DType.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	if t.shape.DType != dtypes.FromGenericsType[T]() {
		var v T
		exceptions.Panicf("CopyFlatData[%T] is incompatible with Tensor's dtype %s", v, t.shape.DType)
	}
	flat := make([]T, t.shape.Size())
	if len(flat) > 0 {
		var dummy T
		flatAsBytes := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(flat))), uintptr(len(flat))*unsafe.Sizeof(dummy))
		copy(flatAsBytes, t.data)
	}
	return flat
}

// Equal returns whether both tensors have the same shape and contents.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	if t == otherTensor {
		return true
	}
	if t == nil || otherTensor == nil {
		return false
	}
	return t.shape.Equal(otherTensor.shape) && slices.Equal(t.data, otherTensor.data)
}

// String implements fmt.Stringer. It prints the shape and the memory used, not the values.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	return fmt.Sprintf("Tensor%s (%s)", t.shape, humanize.Bytes(uint64(len(t.data))))
}
