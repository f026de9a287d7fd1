// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tosa

import (
	"github.com/gomlx/exceptions"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Version of the TOSA schema written by Serialize.
const (
	VersionMajor = 0
	VersionMinor = 80
	VersionPatch = 0
	VersionDraft = false
)

// FileIdentifier of TOSA flatbuffers.
const FileIdentifier = "TOSA"

// Serialize the module to a TOSA 0.80 flatbuffer. The output is deterministic.
func (m *Module) Serialize() (buf []byte, err error) {
	err = exceptions.TryCatch[error](func() { buf = m.serialize() })
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to serialize TOSA module %q", m.Name)
	}
	klog.V(2).Infof("tosa: serialized module %q: %d tensors, %d operators, %d bytes",
		m.Name, len(m.tensors), len(m.operators), len(buf))
	return buf, nil
}

func (m *Module) serialize() []byte {
	b := flatbuffers.NewBuilder(1024)

	tensorOffsets := make([]flatbuffers.UOffsetT, len(m.tensors))
	for ii, t := range m.tensors {
		tensorOffsets[ii] = buildTensor(b, t)
	}
	operatorOffsets := make([]flatbuffers.UOffsetT, len(m.operators))
	for ii, op := range m.operators {
		operatorOffsets[ii] = buildOperator(b, op)
	}

	// Basic block.
	blockName := b.CreateString(m.Name)
	operators := offsetVector(b, operatorOffsets)
	tensors := offsetVector(b, tensorOffsets)
	inputs := stringVector(b, m.inputs)
	outputs := stringVector(b, m.outputs)
	b.StartObject(5)
	b.PrependUOffsetTSlot(0, blockName, 0)
	b.PrependUOffsetTSlot(1, operators, 0)
	b.PrependUOffsetTSlot(2, tensors, 0)
	b.PrependUOffsetTSlot(3, inputs, 0)
	b.PrependUOffsetTSlot(4, outputs, 0)
	block := b.EndObject()

	// Region.
	regionName := b.CreateString(m.Name)
	blocks := offsetVector(b, []flatbuffers.UOffsetT{block})
	b.StartObject(2)
	b.PrependUOffsetTSlot(0, regionName, 0)
	b.PrependUOffsetTSlot(1, blocks, 0)
	region := b.EndObject()

	// Version: the defaults of the schema are -1 and draft=true, so all fields are written.
	b.StartObject(4)
	b.PrependInt32Slot(0, VersionMajor, -1)
	b.PrependInt32Slot(1, VersionMinor, -1)
	b.PrependInt32Slot(2, VersionPatch, -1)
	b.PrependBoolSlot(3, VersionDraft, true)
	version := b.EndObject()

	regions := offsetVector(b, []flatbuffers.UOffsetT{region})
	b.StartObject(2)
	b.PrependUOffsetTSlot(0, version, 0)
	b.PrependUOffsetTSlot(1, regions, 0)
	root := b.EndObject()
	b.FinishWithFileIdentifier(root, []byte(FileIdentifier))
	return b.FinishedBytes()
}

func buildTensor(b *flatbuffers.Builder, t *Tensor) flatbuffers.UOffsetT {
	name := b.CreateString(t.Name)
	shape := int32Vector(b, t.Shape)
	var data flatbuffers.UOffsetT
	if t.Origin == OriginConstant {
		// The data vector is aligned to 8 bytes.
		b.Prep(8, len(t.Data))
		data = b.CreateByteVector(t.Data)
	}
	b.StartObject(6)
	b.PrependUOffsetTSlot(0, name, 0)
	b.PrependUOffsetTSlot(1, shape, 0)
	b.PrependUint32Slot(2, uint32(t.DType), 0)
	if t.Origin == OriginConstant {
		b.PrependUOffsetTSlot(3, data, 0)
	}
	return b.EndObject()
}

func buildOperator(b *flatbuffers.Builder, op *Operator) flatbuffers.UOffsetT {
	var attr flatbuffers.UOffsetT
	attrType := AttributeNone
	if op.Attribute != nil {
		attr = op.Attribute.build(b)
		attrType = op.Attribute.Type()
	}
	inputs := stringVector(b, op.Inputs)
	outputs := stringVector(b, op.Outputs)
	b.StartObject(5)
	b.PrependUint32Slot(0, uint32(op.Op), 0)
	b.PrependByteSlot(1, byte(attrType), 0)
	if op.Attribute != nil {
		b.PrependUOffsetTSlot(2, attr, 0)
	}
	b.PrependUOffsetTSlot(3, inputs, 0)
	b.PrependUOffsetTSlot(4, outputs, 0)
	return b.EndObject()
}

func int32Vector(b *flatbuffers.Builder, values []int) flatbuffers.UOffsetT {
	b.StartVector(4, len(values), 4)
	for ii := len(values) - 1; ii >= 0; ii-- {
		b.PrependInt32(int32(values[ii]))
	}
	return b.EndVector(len(values))
}

func offsetVector(b *flatbuffers.Builder, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(offsets), 4)
	for ii := len(offsets) - 1; ii >= 0; ii-- {
		b.PrependUOffsetT(offsets[ii])
	}
	return b.EndVector(len(offsets))
}

func stringVector(b *flatbuffers.Builder, values []string) flatbuffers.UOffsetT {
	offsets := make([]flatbuffers.UOffsetT, len(values))
	for ii, s := range values {
		offsets[ii] = b.CreateString(s)
	}
	return offsetVector(b, offsets)
}
