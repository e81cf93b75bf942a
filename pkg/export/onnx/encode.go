package onnx

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// The exporter emits ONNX protobuf messages directly on the wire using
// field numbers from onnx.proto (onnx/onnx-ml.proto, IR version 8). Only
// the handful of messages the isolation forest graph needs are covered.

// AttributeProto.type enum values.
const (
	attrTypeInt     = 2
	attrTypeString  = 3
	attrTypeFloats  = 6
	attrTypeInts    = 7
	attrTypeStrings = 8
)

func appendSub(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func packFloats(vals []float32) []byte {
	var b []byte
	for _, v := range vals {
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}
	return b
}

func packInts(vals []int64) []byte {
	var b []byte
	for _, v := range vals {
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

// AttributeProto: name=1, f=2, i=3, s=4, floats=7, ints=8, strings=9, type=20.

func intAttr(name string, v int64) []byte {
	var b []byte
	b = appendString(b, 1, name)
	b = appendInt(b, 3, v)
	b = appendInt(b, 20, attrTypeInt)
	return b
}

func stringAttr(name, v string) []byte {
	var b []byte
	b = appendString(b, 1, name)
	b = appendString(b, 4, v)
	b = appendInt(b, 20, attrTypeString)
	return b
}

func floatsAttr(name string, vals []float32) []byte {
	var b []byte
	b = appendString(b, 1, name)
	b = appendSub(b, 7, packFloats(vals))
	b = appendInt(b, 20, attrTypeFloats)
	return b
}

func intsAttr(name string, vals []int64) []byte {
	var b []byte
	b = appendString(b, 1, name)
	b = appendSub(b, 8, packInts(vals))
	b = appendInt(b, 20, attrTypeInts)
	return b
}

func stringsAttr(name string, vals []string) []byte {
	var b []byte
	b = appendString(b, 1, name)
	for _, v := range vals {
		b = appendString(b, 9, v)
	}
	b = appendInt(b, 20, attrTypeStrings)
	return b
}

// NodeProto: input=1, output=2, name=3, op_type=4, attribute=5, domain=7.
func nodeProto(opType, domain string, inputs, outputs []string, attrs ...[]byte) []byte {
	var b []byte
	for _, in := range inputs {
		b = appendString(b, 1, in)
	}
	for _, out := range outputs {
		b = appendString(b, 2, out)
	}
	b = appendString(b, 4, opType)
	for _, a := range attrs {
		b = appendSub(b, 5, a)
	}
	if domain != "" {
		b = appendString(b, 7, domain)
	}
	return b
}

// TensorProto: dims=1, data_type=2, float_data=4, name=8.
// data_type 1 is FLOAT.
func floatTensor(name string, dims []int64, vals []float32) []byte {
	var b []byte
	for _, d := range dims {
		b = appendInt(b, 1, d)
	}
	b = appendInt(b, 2, 1)
	b = appendSub(b, 4, packFloats(vals))
	b = appendString(b, 8, name)
	return b
}

// tensorDim is one entry of a TensorShapeProto: either a fixed value or a
// symbolic parameter such as the batch dimension.
type tensorDim struct {
	value int64
	param string
}

// ValueInfoProto: name=1, type=2. TypeProto.tensor_type=1 with
// elem_type=1, shape=2; Dimension.dim_value=1, dim_param=2.
func floatValueInfo(name string, dims []tensorDim) []byte {
	var shape []byte
	for _, d := range dims {
		var dp []byte
		if d.param != "" {
			dp = appendString(dp, 2, d.param)
		} else {
			dp = appendInt(dp, 1, d.value)
		}
		shape = appendSub(shape, 1, dp)
	}

	var tensorType []byte
	tensorType = appendInt(tensorType, 1, 1) // elem_type FLOAT
	tensorType = appendSub(tensorType, 2, shape)

	var typeProto []byte
	typeProto = appendSub(typeProto, 1, tensorType)

	var b []byte
	b = appendString(b, 1, name)
	b = appendSub(b, 2, typeProto)
	return b
}
