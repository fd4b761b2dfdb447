/*
	wows-replays: World of Warships replay parsing library (golang)
	Copyright (C) 2026 lkolbly

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ArgType is one node of a schema type tree. A tree is built once from the
// entity definition files and is immutable afterwards; parsed values carry
// field names borrowed from it.
type ArgType interface {
	// SortSize is the byte footprint of a value of this type, or Unbounded
	// for variable-length types. Entity definitions order properties and
	// methods by it, which fixes their wire indices.
	SortSize() int
	// ParseValue decodes one value of this type from r, leaving the cursor
	// on the first byte after the value.
	ParseValue(r *bytes.Reader) (ArgValue, error)
}

// Unbounded is the SortSize of variable-length types. It is larger than any
// exact size the game encodes and addition with it saturates.
const Unbounded = 0xffff

//go:generate stringer --type PrimitiveType
type PrimitiveType uint8

const (
	PrimitiveUint8 PrimitiveType = iota
	PrimitiveUint16
	PrimitiveUint32
	PrimitiveUint64
	PrimitiveInt8
	PrimitiveInt16
	PrimitiveInt32
	PrimitiveInt64
	PrimitiveFloat32
	PrimitiveFloat64
	PrimitiveVector2
	PrimitiveVector3
	PrimitiveString
	PrimitiveUnicodeString
	PrimitiveBlob
)

type ArrayType struct {
	// FixedCount is negative when the element count is read from a 1-byte
	// prefix instead of being fixed by the schema.
	FixedCount int
	Elem       ArgType
}

type DictField struct {
	Name string
	Type ArgType
}

type FixedDictType struct {
	// AllowNone adds a leading presence byte: 0 means the whole dict is
	// absent, 1 means the fields follow.
	AllowNone bool
	Fields    []DictField
}

// TupleType appears in the definition files but no known client encodes it;
// parsing one is an explicit error rather than a guess.
type TupleType struct {
	Elem  ArgType
	Count int
}

// ErrTupleUnsupported is returned when a TUPLE value shows up in a payload.
var ErrTupleUnsupported = errors.New("tuple parsing is unsupported")

// UnknownDictFlagError reports a nullable fixed dict whose presence byte is
// neither 0 nor 1. Observed dumps only ever contain those two, so anything
// else means the schema or the framing is wrong.
type UnknownDictFlagError struct {
	Flag byte
	Rest []byte
}

func (e *UnknownDictFlagError) Error() string {
	return fmt.Sprintf("unknown fixed dict presence flag 0x%02x (%d bytes follow)", e.Flag, len(e.Rest))
}

// ArgValue is one decoded value. It holds one of:
//
//	uint8..uint64, int8..int64, float32, float64
//	Vector2, Vector3
//	StringBytes, UnicodeBytes, []byte (blob)
//	*ArrayValue, Dict, NullableDict
type ArgValue any

type Vector2 struct {
	X, Y float32
}

type Vector3 struct {
	X, Y, Z float32
}

// StringBytes is a STRING payload. No encoding validation happens during
// decode; bytes come through as sent and UTF-8 interpretation is up to the
// consumer.
type StringBytes []byte

// UnicodeBytes is a UNICODE_STRING payload, same caveats as StringBytes.
type UnicodeBytes []byte

// ArrayValue is a decoded ARRAY. It is handed around by pointer so nested
// property updates can splice it in place.
type ArrayValue struct {
	Elems []ArgValue
}

// Dict is a decoded FIXED_DICT. Keys reference the schema's field names.
type Dict map[string]ArgValue

// NullableDict is a decoded FIXED_DICT with AllowNone set; nil means the
// presence byte was 0.
type NullableDict map[string]ArgValue

func (p PrimitiveType) SortSize() int {
	switch p {
	case PrimitiveUint8, PrimitiveInt8:
		return 1
	case PrimitiveUint16, PrimitiveInt16:
		return 2
	case PrimitiveUint32, PrimitiveInt32, PrimitiveFloat32:
		return 4
	case PrimitiveUint64, PrimitiveInt64, PrimitiveFloat64, PrimitiveVector2:
		return 8
	case PrimitiveVector3:
		return 12
	default:
		return Unbounded
	}
}

func (p PrimitiveType) ParseValue(r *bytes.Reader) (ArgValue, error) {
	switch p {
	case PrimitiveUint8:
		var v uint8
		return v, read(r, &v)
	case PrimitiveUint16:
		var v uint16
		return v, read(r, &v)
	case PrimitiveUint32:
		var v uint32
		return v, read(r, &v)
	case PrimitiveUint64:
		var v uint64
		return v, read(r, &v)
	case PrimitiveInt8:
		var v int8
		return v, read(r, &v)
	case PrimitiveInt16:
		var v int16
		return v, read(r, &v)
	case PrimitiveInt32:
		var v int32
		return v, read(r, &v)
	case PrimitiveInt64:
		var v int64
		return v, read(r, &v)
	case PrimitiveFloat32:
		var v float32
		return v, read(r, &v)
	case PrimitiveFloat64:
		var v float64
		return v, read(r, &v)
	case PrimitiveVector2:
		var v Vector2
		return v, read(r, &v)
	case PrimitiveVector3:
		var v Vector3
		return v, read(r, &v)
	case PrimitiveString:
		data, err := ReadLengthPrefixed(r)
		return StringBytes(data), err
	case PrimitiveUnicodeString:
		data, err := ReadLengthPrefixed(r)
		return UnicodeBytes(data), err
	case PrimitiveBlob:
		return ReadLengthPrefixed(r)
	default:
		return nil, fmt.Errorf("unhandled primitive type %d", p)
	}
}

func read(r *bytes.Reader, out any) error {
	err := binary.Read(r, binary.LittleEndian, out)
	if err != nil {
		return fmt.Errorf("reading %T: %w", out, err)
	}
	return nil
}

// ReadLengthPrefixed reads a string/blob payload. A single length byte
// covers 0-254; the escape byte 0xFF means a little-endian uint16 length
// follows plus one unused byte.
func ReadLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	l, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	size := int(l)
	if l == 0xff {
		var wide uint16
		if err := binary.Read(r, binary.LittleEndian, &wide); err != nil {
			return nil, fmt.Errorf("reading escaped length: %w", err)
		}
		if _, err := r.ReadByte(); err != nil {
			return nil, fmt.Errorf("reading escaped length pad byte: %w", err)
		}
		size = int(wide)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d payload bytes: %w", size, err)
	}
	return data, nil
}

func (a ArrayType) SortSize() int {
	if a.FixedCount < 0 {
		return Unbounded
	}
	return saturatingMul(a.Elem.SortSize(), a.FixedCount)
}

func (a ArrayType) ParseValue(r *bytes.Reader) (ArgValue, error) {
	count := a.FixedCount
	if count < 0 {
		c, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading array count: %w", err)
		}
		count = int(c)
	}
	elems := make([]ArgValue, 0, count)
	for i := 0; i < count; i++ {
		v, err := a.Elem.ParseValue(r)
		if err != nil {
			return nil, fmt.Errorf("array element %d/%d: %w", i, count, err)
		}
		elems = append(elems, v)
	}
	return &ArrayValue{Elems: elems}, nil
}

func (d FixedDictType) SortSize() int {
	if d.AllowNone {
		return Unbounded
	}
	size := 0
	for _, f := range d.Fields {
		size = saturatingAdd(size, f.Type.SortSize())
	}
	return size
}

func (d FixedDictType) ParseValue(r *bytes.Reader) (ArgValue, error) {
	if d.AllowNone {
		flag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading presence flag: %w", err)
		}
		switch flag {
		case 0:
			return NullableDict(nil), nil
		case 1:
		default:
			rest := make([]byte, r.Len())
			r.Read(rest)
			return nil, &UnknownDictFlagError{Flag: flag, Rest: rest}
		}
	}
	fields := make(map[string]ArgValue, len(d.Fields))
	for _, f := range d.Fields {
		v, err := f.Type.ParseValue(r)
		if err != nil {
			return nil, fmt.Errorf("dict field %q: %w", f.Name, err)
		}
		fields[f.Name] = v
	}
	if d.AllowNone {
		return NullableDict(fields), nil
	}
	return Dict(fields), nil
}

func (t TupleType) SortSize() int {
	return saturatingMul(t.Elem.SortSize(), t.Count)
}

func (t TupleType) ParseValue(r *bytes.Reader) (ArgValue, error) {
	return nil, ErrTupleUnsupported
}

func saturatingAdd(a, b int) int {
	if a >= Unbounded || b >= Unbounded || a+b >= Unbounded {
		return Unbounded
	}
	return a + b
}

func saturatingMul(a, n int) int {
	if a >= Unbounded || n > 0 && a*n >= Unbounded {
		return Unbounded
	}
	return a * n
}
