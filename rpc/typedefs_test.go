package rpc

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestPrimitiveScalars(t *testing.T) {
	tests := []struct {
		name string
		typ  PrimitiveType
		data []byte
		want ArgValue
	}{
		{"uint8", PrimitiveUint8, []byte{0x2a}, uint8(42)},
		{"uint16", PrimitiveUint16, []byte{0x34, 0x12}, uint16(0x1234)},
		{"uint32", PrimitiveUint32, []byte{0x78, 0x56, 0x34, 0x12}, uint32(0x12345678)},
		{"int8", PrimitiveInt8, []byte{0xff}, int8(-1)},
		{"int32", PrimitiveInt32, []byte{0xff, 0xff, 0xff, 0xff}, int32(-1)},
		{"float32", PrimitiveFloat32, []byte{0x00, 0x00, 0x80, 0x3f}, float32(1.0)},
		{"vector3", PrimitiveVector3, []byte{
			0x00, 0x00, 0x80, 0x3f,
			0x00, 0x00, 0x00, 0x40,
			0x00, 0x00, 0x40, 0x40,
		}, Vector3{X: 1, Y: 2, Z: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.data)
			got, err := tt.typ.ParseValue(r)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
			if r.Len() != 0 {
				t.Errorf("left %d bytes unread", r.Len())
			}
		})
	}
}

func TestLengthPrefixShort(t *testing.T) {
	data := append([]byte{3}, []byte("abc")...)
	v, err := PrimitiveString.ParseValue(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if string(v.(StringBytes)) != "abc" {
		t.Errorf("got %q", v)
	}
}

func TestLengthPrefix254(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 254)
	data := append([]byte{254}, payload...)
	v, err := PrimitiveBlob.ParseValue(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.([]byte)) != 254 {
		t.Errorf("got %d bytes, want 254", len(v.([]byte)))
	}
}

func TestLengthPrefixEscape(t *testing.T) {
	// 255 escapes to a u16 length plus a throwaway byte.
	payload := bytes.Repeat([]byte{'y'}, 300)
	data := append([]byte{0xff, 0x2c, 0x01, 0x00}, payload...)
	v, err := PrimitiveBlob.ParseValue(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.([]byte)) != 300 {
		t.Errorf("got %d bytes, want 300", len(v.([]byte)))
	}
}

func TestLengthPrefixEscapeAt255(t *testing.T) {
	// Exactly 255 bytes already takes the escaped form.
	payload := bytes.Repeat([]byte{'z'}, 255)
	data := append([]byte{0xff, 0xff, 0x00, 0x00}, payload...)
	v, err := PrimitiveBlob.ParseValue(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.([]byte)) != 255 {
		t.Errorf("got %d bytes, want 255", len(v.([]byte)))
	}
}

func TestLengthPrefixEscapeMax(t *testing.T) {
	payload := bytes.Repeat([]byte{'w'}, 65535)
	data := append([]byte{0xff, 0xff, 0xff, 0x00}, payload...)
	v, err := PrimitiveBlob.ParseValue(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.([]byte)) != 65535 {
		t.Errorf("got %d bytes, want 65535", len(v.([]byte)))
	}
}

func TestArrayLengthPrefixed(t *testing.T) {
	arr := ArrayType{FixedCount: -1, Elem: PrimitiveUint16}
	data := []byte{2, 0x01, 0x00, 0x02, 0x00}
	v, err := arr.ParseValue(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	got := v.(*ArrayValue)
	if len(got.Elems) != 2 || got.Elems[0] != uint16(1) || got.Elems[1] != uint16(2) {
		t.Errorf("got %#v", got.Elems)
	}
}

func TestArrayFixedCount(t *testing.T) {
	arr := ArrayType{FixedCount: 3, Elem: PrimitiveUint8}
	v, err := arr.ParseValue(bytes.NewReader([]byte{7, 8, 9}))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.(*ArrayValue).Elems) != 3 {
		t.Errorf("got %#v", v)
	}
}

func TestFixedDictOrderedFields(t *testing.T) {
	dict := FixedDictType{Fields: []DictField{
		{Name: "a", Type: PrimitiveUint8},
		{Name: "b", Type: PrimitiveUint16},
	}}
	v, err := dict.ParseValue(bytes.NewReader([]byte{5, 0x22, 0x11}))
	if err != nil {
		t.Fatal(err)
	}
	got := v.(Dict)
	if got["a"] != uint8(5) || got["b"] != uint16(0x1122) {
		t.Errorf("got %#v", got)
	}
}

func TestNullableDict(t *testing.T) {
	dict := FixedDictType{AllowNone: true, Fields: []DictField{
		{Name: "a", Type: PrimitiveUint8},
	}}

	v, err := dict.ParseValue(bytes.NewReader([]byte{0}))
	if err != nil {
		t.Fatal(err)
	}
	if nd := v.(NullableDict); nd != nil {
		t.Errorf("flag 0 should decode to nil, got %#v", nd)
	}

	v, err = dict.ParseValue(bytes.NewReader([]byte{1, 9}))
	if err != nil {
		t.Fatal(err)
	}
	if nd := v.(NullableDict); nd["a"] != uint8(9) {
		t.Errorf("got %#v", nd)
	}

	_, err = dict.ParseValue(bytes.NewReader([]byte{2, 9}))
	var flagErr *UnknownDictFlagError
	if !errors.As(err, &flagErr) {
		t.Fatalf("flag 2 err = %v, want UnknownDictFlagError", err)
	}
	if flagErr.Flag != 2 {
		t.Errorf("Flag = %d, want 2", flagErr.Flag)
	}
}

func TestTupleUnsupported(t *testing.T) {
	tup := TupleType{Elem: PrimitiveUint8, Count: 2}
	if _, err := tup.ParseValue(bytes.NewReader([]byte{1, 2})); !errors.Is(err, ErrTupleUnsupported) {
		t.Errorf("err = %v, want ErrTupleUnsupported", err)
	}
}

func TestSortSize(t *testing.T) {
	tests := []struct {
		name string
		typ  ArgType
		want int
	}{
		{"uint8", PrimitiveUint8, 1},
		{"vector3", PrimitiveVector3, 12},
		{"string", PrimitiveString, Unbounded},
		{"fixed array", ArrayType{FixedCount: 4, Elem: PrimitiveUint16}, 8},
		{"dynamic array", ArrayType{FixedCount: -1, Elem: PrimitiveUint16}, Unbounded},
		{"array of strings", ArrayType{FixedCount: 2, Elem: PrimitiveString}, Unbounded},
		{"dict", FixedDictType{Fields: []DictField{
			{Name: "a", Type: PrimitiveUint32},
			{Name: "b", Type: PrimitiveFloat64},
		}}, 12},
		{"nullable dict", FixedDictType{AllowNone: true, Fields: []DictField{
			{Name: "a", Type: PrimitiveUint8},
		}}, Unbounded},
		{"dict with string", FixedDictType{Fields: []DictField{
			{Name: "a", Type: PrimitiveString},
		}}, Unbounded},
		{"huge fixed array saturates", ArrayType{FixedCount: 30000, Elem: PrimitiveFloat64}, Unbounded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.SortSize(); got != tt.want {
				t.Errorf("SortSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCloneValueIsDeep(t *testing.T) {
	orig := Dict{
		"arr": &ArrayValue{Elems: []ArgValue{uint8(1), uint8(2)}},
	}
	clone := CloneValue(orig).(Dict)
	clone["arr"].(*ArrayValue).Elems[0] = uint8(99)
	if orig["arr"].(*ArrayValue).Elems[0] != uint8(1) {
		t.Error("mutating the clone reached the original")
	}
}

func TestPlain(t *testing.T) {
	v := Dict{
		"name": StringBytes("hello"),
		"blob": []byte{0xde, 0xad},
		"arr":  &ArrayValue{Elems: []ArgValue{uint16(7)}},
		"none": NullableDict(nil),
	}
	got := Plain(v).(map[string]any)
	if got["name"] != "hello" {
		t.Errorf("name = %#v", got["name"])
	}
	if got["blob"] != "dead" {
		t.Errorf("blob = %#v", got["blob"])
	}
	if arr := got["arr"].([]any); len(arr) != 1 || arr[0] != uint16(7) {
		t.Errorf("arr = %#v", got["arr"])
	}
	if got["none"] != nil {
		t.Errorf("none = %#v", got["none"])
	}
}
