// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package numpy

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// npyBytes builds a version 1.0 .npy file by hand, the way NumPy writes it.
func npyBytes(header string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestFromNpyReader(t *testing.T) {
	data := make([]byte, 0, 24)
	for _, v := range []float32{1, 2, 3, 4, 5, 6} {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}

	// C-order.
	tensor, err := FromNpyReader(bytes.NewReader(npyBytes(
		"{'descr': '<f4', 'fortran_order': False, 'shape': (2, 3), }\n", data)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, tensor.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensors.CopyFlatData[float32](tensor))

	// Fortran-order: the same bytes hold the transposed layout.
	tensor, err = FromNpyReader(bytes.NewReader(npyBytes(
		"{'descr': '<f4', 'fortran_order': True, 'shape': (2, 3), }\n", data)))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, tensors.CopyFlatData[float32](tensor))

	// Scalar.
	tensor, err = FromNpyReader(bytes.NewReader(npyBytes(
		"{'descr': '<i8', 'fortran_order': False, 'shape': (), }\n", binary.LittleEndian.AppendUint64(nil, 42))))
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int64, tensor.DType())
	assert.Equal(t, []int64{42}, tensors.CopyFlatData[int64](tensor))

	// Truncated data.
	_, err = FromNpyReader(bytes.NewReader(npyBytes(
		"{'descr': '|u1', 'fortran_order': False, 'shape': (4,), }\n", []byte{1, 2})))
	require.Error(t, err)

	// Bad magic.
	_, err = FromNpyReader(bytes.NewReader([]byte("NOTNUMPYATALL")))
	require.ErrorContains(t, err, "magic")
}

func TestNpzRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: "weight", Tensor: tensors.FromFlatDataAndDimensions([]float32{0.5, -1, 2, 8}, 2, 2)},
		{Name: "cmd_data", Tensor: tensors.FromFlatDataAndDimensions([]uint8{1, 2, 3}, 3)},
		{Name: "scratch_shape", Tensor: tensors.FromFlatDataAndDimensions([]int64{10}, 1)},
	}
	var buf bytes.Buffer
	require.NoError(t, ToNpzWriter(entries, &buf))

	got, err := FromNpzReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for ii, e := range entries {
		assert.Equal(t, e.Name, got[ii].Name, "archive order must be preserved")
		assert.True(t, e.Tensor.Equal(got[ii].Tensor), "entry %q differs: %s vs %s", e.Name, e.Tensor, got[ii].Tensor)
	}

	m := EntriesToMap(got)
	assert.Len(t, m, 3)
	assert.Equal(t, []int64{10}, tensors.CopyFlatData[int64](m["scratch_shape"]))

	// Through files.
	filePath := filepath.Join(t.TempDir(), "state.npz")
	require.NoError(t, ToNpzFile(entries, filePath))
	fromFile, err := FromNpzFile(filePath)
	require.NoError(t, err)
	require.Len(t, fromFile, 3)
	assert.Equal(t, "weight", fromFile[0].Name)
}

func TestNpyHeaderAlignment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ToNpyWriter(tensors.FromFlatDataAndDimensions([]int32{1, 2, 3}, 3), &buf))
	headerLen := int(binary.LittleEndian.Uint16(buf.Bytes()[8:10]))
	assert.Equal(t, 0, (10+headerLen)%16)
	assert.Equal(t, byte('\n'), buf.Bytes()[10+headerLen-1])
	assert.Equal(t, 10+headerLen+12, buf.Len())
}
