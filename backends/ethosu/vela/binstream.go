// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package vela

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// Header starts every bin stream.
	Header = "vela_bin_stream\x00"

	// Footer ends every bin stream.
	Footer = "vela_end_stream\x00"

	// ScratchBlockName is the name of the zero-filled block reserving the runtime working memory.
	ScratchBlockName = "scratch_data"

	// Alignment of the fields and of the data of the blocks.
	Alignment = 16

	// MaxNameLength is the longest block name kept: names are NUL terminated in a 16 bytes field.
	MaxNameLength = Alignment - 1
)

// Block is a named blob of a compiled artifact.
type Block struct {
	Name string
	Data []byte
}

// alignUp rounds n up to the next multiple of Alignment.
func alignUp(n int) int {
	return (n + Alignment - 1) / Alignment * Alignment
}

// EncodeBinStream encodes the blocks, in order, followed by a zero-filled scratch block of scratchSize
// bytes rounded up to a multiple of 16.
//
// Each block is laid out as its name truncated to 15 bytes and NUL padded to 16, its unpadded length
// as a 16 bytes little-endian integer, and its data zero padded to a multiple of 16.
func EncodeBinStream(blocks []Block, scratchSize int) []byte {
	scratch := Block{Name: ScratchBlockName, Data: make([]byte, alignUp(max(scratchSize, 0)))}
	size := 2 * Alignment
	for _, block := range blocks {
		size += 2*Alignment + alignUp(len(block.Data))
	}
	size += 2*Alignment + len(scratch.Data)

	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteString(Header)
	for _, block := range append(blocks[:len(blocks):len(blocks)], scratch) {
		var field [Alignment]byte
		name := block.Name
		if len(name) > MaxNameLength {
			name = name[:MaxNameLength]
		}
		copy(field[:], name)
		buf.Write(field[:])

		field = [Alignment]byte{}
		binary.LittleEndian.PutUint64(field[:8], uint64(len(block.Data)))
		buf.Write(field[:])

		buf.Write(block.Data)
		buf.Write(make([]byte, alignUp(len(block.Data))-len(block.Data)))
	}
	buf.WriteString(Footer)
	return buf.Bytes()
}

// DecodeBinStream parses a bin stream back into its blocks, including the scratch block.
// Names are returned as stored, that is, truncated to 15 bytes.
func DecodeBinStream(data []byte) ([]Block, error) {
	if len(data) < 2*Alignment || string(data[:Alignment]) != Header {
		return nil, errors.Errorf("invalid bin stream: missing %q header", Header[:len(Header)-1])
	}
	if string(data[len(data)-Alignment:]) != Footer {
		return nil, errors.Errorf("invalid bin stream: missing %q footer", Footer[:len(Footer)-1])
	}
	body := data[Alignment : len(data)-Alignment]
	var blocks []Block
	for pos := 0; pos < len(body); {
		if pos+2*Alignment > len(body) {
			return nil, errors.Errorf("invalid bin stream: truncated block header at offset %d", pos+Alignment)
		}
		name := string(bytes.TrimRight(body[pos:pos+Alignment], "\x00"))
		lengthField := body[pos+Alignment : pos+2*Alignment]
		if binary.LittleEndian.Uint64(lengthField[8:]) != 0 {
			return nil, errors.Errorf("invalid bin stream: block %q length doesn't fit 64 bits", name)
		}
		length := binary.LittleEndian.Uint64(lengthField[:8])
		pos += 2 * Alignment
		if length > uint64(len(body)-pos) || alignUp(int(length)) > len(body)-pos {
			return nil, errors.Errorf("invalid bin stream: block %q of %d bytes exceeds the stream", name, length)
		}
		blocks = append(blocks, Block{Name: name, Data: bytes.Clone(body[pos : pos+int(length)])})
		pos += alignUp(int(length))
	}
	return blocks, nil
}
