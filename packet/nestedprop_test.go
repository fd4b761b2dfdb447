package packet

import (
	"reflect"
	"testing"

	"github.com/lkolbly/wows-replays-sub000/bitstream"
	"github.com/lkolbly/wows-replays-sub000/rpc"
)

func TestIndexBits(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {255, 8},
	}
	for _, tt := range tests {
		if got := indexBits(tt.n); got != tt.want {
			t.Errorf("indexBits(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestSpliceElems(t *testing.T) {
	mk := func(vals ...int) *rpc.ArrayValue {
		arr := &rpc.ArrayValue{}
		for _, v := range vals {
			arr.Elems = append(arr.Elems, uint32(v))
		}
		return arr
	}
	vals := func(vals ...int) []rpc.ArgValue {
		var out []rpc.ArgValue
		for _, v := range vals {
			out = append(out, uint32(v))
		}
		return out
	}
	tests := []struct {
		name       string
		arr        *rpc.ArrayValue
		idx1, idx2 int
		values     []rpc.ArgValue
		want       *rpc.ArrayValue
	}{
		{"single into empty", mk(), 0, 0, vals(5), mk(5)},
		{"multi into empty clamps", mk(), 2, 5, vals(5, 6, 7, 8), mk(5, 6, 7, 8)},
		{"replace mid single", mk(1, 2, 3, 4, 5), 2, 3, vals(6), mk(1, 2, 6, 4, 5)},
		{"insert mid", mk(1, 2, 3, 4, 5), 2, 2, vals(6), mk(1, 2, 6, 3, 4, 5)},
		{"grow mid", mk(1, 2, 3, 4, 5), 2, 4, vals(6, 7, 8), mk(1, 2, 6, 7, 8, 5)},
		{"shrink mid", mk(1, 2, 3, 4, 5), 2, 4, vals(6), mk(1, 2, 6, 5)},
		{"append past end", mk(1, 2, 3, 4, 5), 5, 12, vals(6, 7, 8), mk(1, 2, 3, 4, 5, 6, 7, 8)},
		{"inverted range inserts", mk(1, 2, 3), 2, 1, vals(9), mk(1, 2, 9, 3)},
		{"remove range", mk(1, 2, 3, 4), 1, 3, nil, mk(1, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spliceElems(tt.arr, tt.idx1, tt.idx2, tt.values)
			if !reflect.DeepEqual(tt.arr.Elems, tt.want.Elems) {
				t.Errorf("got %v, want %v", tt.arr.Elems, tt.want.Elems)
			}
		})
	}
}

// patchSchema is a dict of a scalar and a byte array, the shapes nested
// updates actually hit in the wild.
func patchSchema() (rpc.FixedDictType, rpc.Dict) {
	typ := rpc.FixedDictType{Fields: []rpc.DictField{
		{Name: "a", Type: rpc.PrimitiveUint8},
		{Name: "b", Type: rpc.ArrayType{FixedCount: -1, Elem: rpc.PrimitiveUint8}},
	}}
	value := rpc.Dict{
		"a": uint8(1),
		"b": &rpc.ArrayValue{Elems: []rpc.ArgValue{uint8(1), uint8(2), uint8(3)}},
	}
	return typ, value
}

func TestApplyPatchSetKey(t *testing.T) {
	typ, value := patchSchema()
	// cont=0 (leaf on the dict), field idx 0 over 1 bit, pad, value byte.
	r := bitstream.NewReader([]byte{0x00, 0x07})
	patch, err := applyPatch(typ, value, false, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if patch.Op != PatchSetKey || patch.Key != "a" {
		t.Errorf("patch = %+v", patch)
	}
	if value["a"] != uint8(7) {
		t.Errorf("a = %#v, want 7", value["a"])
	}
}

func TestApplyPatchSetElement(t *testing.T) {
	typ, value := patchSchema()
	// cont=1, field idx 1 (descend into b), cont=0, element idx 2 over 2
	// bits, pad, one replacement byte.
	r := bitstream.NewReader([]byte{0xd0, 0x09})
	patch, err := applyPatch(typ, value, false, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if patch.Op != PatchSetElement || patch.Index != 2 {
		t.Errorf("patch = %+v", patch)
	}
	if !reflect.DeepEqual(patch.Path, []any{"b"}) {
		t.Errorf("path = %v", patch.Path)
	}
	arr := value["b"].(*rpc.ArrayValue)
	if arr.Elems[2] != uint8(9) {
		t.Errorf("b = %v", arr.Elems)
	}
}

func TestApplyPatchSetRange(t *testing.T) {
	typ, value := patchSchema()
	// Slice mode widens the index field to cover len+1: descend into b,
	// leaf, idx1=1 idx2=3 over 2 bits each, two replacement bytes.
	r := bitstream.NewReader([]byte{0xce, 0xaa, 0xbb})
	patch, err := applyPatch(typ, value, true, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if patch.Op != PatchSetRange || patch.Index != 1 || patch.End != 3 {
		t.Errorf("patch = %+v", patch)
	}
	arr := value["b"].(*rpc.ArrayValue)
	want := []rpc.ArgValue{uint8(1), uint8(0xaa), uint8(0xbb)}
	if !reflect.DeepEqual(arr.Elems, want) {
		t.Errorf("b = %v, want %v", arr.Elems, want)
	}
}

func TestApplyPatchRemoveRange(t *testing.T) {
	typ, value := patchSchema()
	// Slice bounds 0..2 with no payload removes the range.
	r := bitstream.NewReader([]byte{0xc4})
	patch, err := applyPatch(typ, value, true, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if patch.Op != PatchRemoveRange || patch.Index != 0 || patch.End != 2 {
		t.Errorf("patch = %+v", patch)
	}
	arr := value["b"].(*rpc.ArrayValue)
	if !reflect.DeepEqual(arr.Elems, []rpc.ArgValue{uint8(3)}) {
		t.Errorf("b = %v", arr.Elems)
	}
}

func TestApplyPatchAbsentNullableDict(t *testing.T) {
	typ := rpc.FixedDictType{AllowNone: true, Fields: []rpc.DictField{
		{Name: "a", Type: rpc.PrimitiveUint8},
	}}
	r := bitstream.NewReader([]byte{0x80})
	if _, err := applyPatch(typ, rpc.NullableDict(nil), false, r, nil); err == nil {
		t.Error("expected error patching an absent dict")
	}
}
