// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package numpy allows one to read/write tensors to Python's NumPy npy and npz file formats.
//
// The npz archives are read in archive order, since consumers of an archive (the Vela packager) depend on it.
package numpy

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/ethosu/pkg/core/shapes"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Entry is one named array of an npz archive.
type Entry struct {
	Name   string
	Tensor *tensors.Tensor
}

// EntriesToMap indexes entries by name. Later entries override earlier ones with the same name.
func EntriesToMap(entries []Entry) map[string]*tensors.Tensor {
	m := make(map[string]*tensors.Tensor, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Tensor
	}
	return m
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// FromNpyReader reads a .npy file from an io.Reader and returns a tensors.Tensor.
func FromNpyReader(r io.Reader) (*tensors.Tensor, error) {
	magic := make([]byte, 6)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrapf(err, "failed to read magic string")
	}
	if string(magic) != "\x93NUMPY" {
		return nil, errors.Errorf("invalid .npy file format: magic string mismatch")
	}

	version := make([]byte, 2)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, errors.Wrapf(err, "failed to read version")
	}

	var headerLen uint32
	switch {
	case version[0] == 1:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = uint32(binary.LittleEndian.Uint16(lenBytes))
	case version[0] >= 2:
		lenBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, errors.Wrapf(err, "failed to read header length (v2.0+)")
		}
		headerLen = binary.LittleEndian.Uint32(lenBytes)
		if headerLen > 0xFFFF {
			return nil, errors.Errorf("header length %d exceeds uint16 max", headerLen)
		}
	default:
		return nil, errors.Errorf("unsupported .npy version: %d.%d", version[0], version[1])
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrapf(err, "failed to read header")
	}
	dtypeStr, dims, fortranOrder, err := parseNpyHeader(string(headerBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse .npy header")
	}
	if strings.HasPrefix(dtypeStr, ">") {
		return nil, errors.Errorf("big-endian .npy files (%q) are not supported", dtypeStr)
	}
	dtype, err := npyDTypeToGoMLX(dtypeStr)
	if err != nil {
		return nil, err
	}
	shape := shapes.Make(dtype, dims...)

	data := make([]byte, shape.Memory())
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Wrapf(err, "failed to read tensor data (expected %d bytes)", len(data))
	}
	if fortranOrder && shape.Rank() > 1 {
		cData := make([]byte, len(data))
		if err = FortranToCLayout(int(dtype.Memory()), dims, data, cData); err != nil {
			return nil, err
		}
		data = cData
	}
	return tensors.FromRaw(shape, data)
}

// FortranToCLayout converts column-major (Fortran) data to row-major (C) data.
func FortranToCLayout(dtypeSize int, dims []int, fortranData []byte, cData []byte) error {
	if dtypeSize <= 0 {
		return errors.Errorf("dtypeSize must be positive, got %d", dtypeSize)
	}
	totalElements := 1
	for _, d := range dims {
		totalElements *= d
	}
	expectedBytes := totalElements * dtypeSize
	if len(fortranData) != expectedBytes {
		return errors.Errorf("fortranData has incorrect size: got %d bytes, want %d", len(fortranData), expectedBytes)
	}
	if len(cData) != expectedBytes {
		return errors.Errorf("cData has incorrect size: got %d bytes, want %d", len(cData), expectedBytes)
	}
	if totalElements == 0 {
		return nil
	}

	coordinates := make([]int, len(dims))
	for cIndex := 0; cIndex < totalElements; cIndex++ {
		// Row-major index to coordinates.
		tempIndex := cIndex
		for i := len(dims) - 1; i >= 0; i-- {
			coordinates[i] = tempIndex % dims[i]
			tempIndex /= dims[i]
		}
		// Coordinates to column-major index.
		fortranIndex := 0
		multiplier := 1
		for i := 0; i < len(dims); i++ {
			fortranIndex += coordinates[i] * multiplier
			multiplier *= dims[i]
		}
		srcOffset := fortranIndex * dtypeSize
		dstOffset := cIndex * dtypeSize
		copy(cData[dstOffset:dstOffset+dtypeSize], fortranData[srcOffset:srcOffset+dtypeSize])
	}
	return nil
}

// parseNpyHeader extracts dtype, shape, and fortran_order from the .npy header string.
// Example: "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 2, 3), }"
func parseNpyHeader(header string) (dtype string, shape []int, fortranOrder bool, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	dtype = mDescr[1]

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	shape = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			// Scalars "()" and the trailing comma of "(N,)".
			continue
		}
		val, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in header", p)
			return
		}
		if val < 0 {
			err = errors.Errorf("invalid negative dimension %d in header: %q", val, header)
			return
		}
		shape = append(shape, val)
	}
	return
}

// npyDTypeToGoMLX converts a NumPy dtype string to a dtypes.DType.
func npyDTypeToGoMLX(npyType string) (dtypes.DType, error) {
	switch {
	case npyType == "|b1", npyType == "?", npyType == "b1":
		return dtypes.Bool, nil
	case strings.HasSuffix(npyType, "i1"):
		return dtypes.Int8, nil
	case strings.HasSuffix(npyType, "u1"):
		return dtypes.Uint8, nil
	case strings.HasSuffix(npyType, "i2"):
		return dtypes.Int16, nil
	case strings.HasSuffix(npyType, "u2"):
		return dtypes.Uint16, nil
	case strings.HasSuffix(npyType, "i4"):
		return dtypes.Int32, nil
	case strings.HasSuffix(npyType, "u4"):
		return dtypes.Uint32, nil
	case strings.HasSuffix(npyType, "i8"):
		return dtypes.Int64, nil
	case strings.HasSuffix(npyType, "u8"):
		return dtypes.Uint64, nil
	case strings.HasSuffix(npyType, "f2"):
		return dtypes.Float16, nil
	case strings.HasSuffix(npyType, "f4"):
		return dtypes.Float32, nil
	case strings.HasSuffix(npyType, "f8"):
		return dtypes.Float64, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported NumPy dtype: %s", npyType)
	}
}

// goMLXDTypeToNpy converts a dtypes.DType to a NumPy dtype string, little-endian for multi-byte types.
func goMLXDTypeToNpy(dtype dtypes.DType) (string, error) {
	switch dtype {
	case dtypes.Bool:
		return "|b1", nil
	case dtypes.Int8:
		return "|i1", nil
	case dtypes.Uint8:
		return "|u1", nil
	case dtypes.Int16:
		return "<i2", nil
	case dtypes.Uint16:
		return "<u2", nil
	case dtypes.Int32:
		return "<i4", nil
	case dtypes.Uint32:
		return "<u4", nil
	case dtypes.Int64:
		return "<i8", nil
	case dtypes.Uint64:
		return "<u8", nil
	case dtypes.Float16:
		return "<f2", nil
	case dtypes.Float32:
		return "<f4", nil
	case dtypes.Float64:
		return "<f8", nil
	default:
		return "", errors.Errorf("unsupported DType for .npy: %s", dtype)
	}
}

// FromNpzFile reads a .npz file and returns its arrays in archive order.
func FromNpzFile(filePath string) ([]Entry, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npz file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat .npz file %q", filePath)
	}
	entries, err := FromNpzReader(file, info.Size())
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", filePath)
	}
	return entries, nil
}

// FromNpzReader reads a .npz archive (a zip file of .npy files) and returns its arrays in archive order.
// Names are the archive file names without the ".npy" suffix. Non .npy members are skipped.
func FromNpzReader(r io.ReaderAt, size int64) ([]Entry, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create zip reader for `.npz`")
	}

	var entries []Entry
	for _, f := range zipReader.File {
		cleanPath := path.Clean(f.Name)
		if path.IsAbs(cleanPath) || strings.HasPrefix(cleanPath, "..") {
			return nil, errors.Errorf("invalid (malicious?) path in .npz archive: %q (normalized to %q)",
				f.Name, cleanPath)
		}
		if !strings.HasSuffix(f.Name, ".npy") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %q within .npz", f.Name)
		}
		tensor, err := FromNpyReader(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read tensor %q from .npz", f.Name)
		}
		entries = append(entries, Entry{Name: strings.TrimSuffix(f.Name, ".npy"), Tensor: tensor})
	}
	return entries, nil
}

// ToNpyWriter serializes a tensors.Tensor to an io.Writer in .npy format (version 1.0).
func ToNpyWriter(tensor *tensors.Tensor, w io.Writer) error {
	shape := tensor.Shape()
	dtype, err := goMLXDTypeToNpy(shape.DType)
	if err != nil {
		return err
	}

	var shapeTuple string
	switch shape.Rank() {
	case 0:
		shapeTuple = "()"
	case 1:
		shapeTuple = fmt.Sprintf("(%d,)", shape.Dimensions[0])
	default:
		dimsStr := make([]string, shape.Rank())
		for i, dim := range shape.Dimensions {
			dimsStr[i] = strconv.Itoa(dim)
		}
		shapeTuple = fmt.Sprintf("(%s)", strings.Join(dimsStr, ", "))
	}

	// Magic (6) + version (2) + header length (2), then the header padded so that the
	// data starts at a multiple of 16, terminated by a newline.
	var headerBuf bytes.Buffer
	headerBuf.WriteString(fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", dtype, shapeTuple))
	for (10+headerBuf.Len()+1)%16 != 0 {
		headerBuf.WriteByte(' ')
	}
	headerBuf.WriteByte('\n')

	var preamble bytes.Buffer
	preamble.WriteString("\x93NUMPY")
	preamble.Write([]byte{1, 0})
	_ = binary.Write(&preamble, binary.LittleEndian, uint16(headerBuf.Len()))
	preamble.Write(headerBuf.Bytes())
	if _, err := w.Write(preamble.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write .npy header")
	}
	if _, err := w.Write(tensor.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write tensor data")
	}
	return nil
}

// ToNpzWriter serializes the entries, in order, to an io.Writer as a .npz archive.
func ToNpzWriter(entries []Entry, w io.Writer) error {
	zipWriter := zip.NewWriter(w)
	for _, entry := range entries {
		npyName := entry.Name + ".npy"
		fileWriter, err := zipWriter.Create(npyName)
		if err != nil {
			return errors.Wrapf(err, "failed to create %q in .npz archive", npyName)
		}
		if err := ToNpyWriter(entry.Tensor, fileWriter); err != nil {
			return errors.WithMessagef(err, "failed to write tensor %q to .npz archive", entry.Name)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return errors.Wrapf(err, "failed to close zip archive")
	}
	return nil
}

// ToNpzFile serializes the entries, in order, to a .npz file.
func ToNpzFile(entries []Entry, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npz file %q", filePath)
	}
	if err = ToNpzWriter(entries, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "failed to close %q", filePath)
}
