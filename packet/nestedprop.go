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

package packet

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/lkolbly/wows-replays-sub000/bitstream"
	"github.com/lkolbly/wows-replays-sub000/rpc"
)

//go:generate stringer --type PatchOp
type PatchOp uint8

const (
	// PatchSetKey replaces one field of a dict.
	PatchSetKey PatchOp = iota
	// PatchSetElement replaces one array element in place.
	PatchSetElement
	// PatchSetRange splices decoded elements over the index range
	// [Index, End), Python slice-assignment style.
	PatchSetRange
	// PatchRemoveRange deletes the index range [Index, End).
	PatchRemoveRange
)

// PropertyPatch describes one applied nested property update.
type PropertyPatch struct {
	Op PatchOp
	// Path holds the descent steps from the property root to the container
	// the operation ran on, outermost first: string for a dict field, int
	// for an array index.
	Path []any
	// Key is the replaced field name for SetKey.
	Key string
	// Index and End delimit the touched element range. SetElement uses
	// Index only.
	Index int
	End   int
	// Values are the decoded replacement values.
	Values []rpc.ArgValue
}

// indexBits is the bit width of an index into a collection of n entries:
// enough bits for the next power of two.
func indexBits(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// applyPatch decodes a nested property update against the schema node t and
// applies it to the live value v in place. Each level starts with a
// continuation bit: 1 descends one container level, 0 runs the leaf
// operation on the current container.
func applyPatch(t rpc.ArgType, v rpc.ArgValue, isSlice bool, r *bitstream.Reader, path []any) (*PropertyPatch, error) {
	cont, err := r.ReadBit()
	if err != nil {
		return nil, fmt.Errorf("reading continuation bit: %w", err)
	}
	if cont == 0 {
		return applyLeaf(t, v, isSlice, r, path)
	}
	switch t := t.(type) {
	case rpc.FixedDictType:
		fields, err := dictFields(v)
		if err != nil {
			return nil, err
		}
		idx, err := r.ReadUint(indexBits(len(t.Fields)))
		if err != nil {
			return nil, fmt.Errorf("reading dict field index: %w", err)
		}
		if int(idx) >= len(t.Fields) {
			return nil, fmt.Errorf("dict field index %d out of range (%d fields)", idx, len(t.Fields))
		}
		field := t.Fields[idx]
		return applyPatch(field.Type, fields[field.Name], isSlice, r, append(path, field.Name))
	case rpc.ArrayType:
		arr, ok := v.(*rpc.ArrayValue)
		if !ok {
			return nil, fmt.Errorf("descending into %T with an array schema", v)
		}
		idx, err := r.ReadUint(indexBits(len(arr.Elems)))
		if err != nil {
			return nil, fmt.Errorf("reading array index: %w", err)
		}
		if int(idx) >= len(arr.Elems) {
			return nil, fmt.Errorf("array index %d out of range (%d elements)", idx, len(arr.Elems))
		}
		return applyPatch(t.Elem, arr.Elems[idx], isSlice, r, append(path, int(idx)))
	default:
		return nil, fmt.Errorf("cannot descend into %T", t)
	}
}

func applyLeaf(t rpc.ArgType, v rpc.ArgValue, isSlice bool, r *bitstream.Reader, path []any) (*PropertyPatch, error) {
	switch t := t.(type) {
	case rpc.FixedDictType:
		fields, err := dictFields(v)
		if err != nil {
			return nil, err
		}
		idx, err := r.ReadUint(indexBits(len(t.Fields)))
		if err != nil {
			return nil, fmt.Errorf("reading dict field index: %w", err)
		}
		if int(idx) >= len(t.Fields) {
			return nil, fmt.Errorf("dict field index %d out of range (%d fields)", idx, len(t.Fields))
		}
		field := t.Fields[idx]
		rest := bytes.NewReader(r.ReadRemainingBytes())
		value, err := field.Type.ParseValue(rest)
		if err != nil {
			return nil, fmt.Errorf("decoding new value for field %q: %w", field.Name, err)
		}
		if rest.Len() != 0 {
			return nil, fmt.Errorf("field %q value left %d bytes undecoded", field.Name, rest.Len())
		}
		fields[field.Name] = value
		return &PropertyPatch{
			Op:     PatchSetKey,
			Path:   path,
			Key:    field.Name,
			Values: []rpc.ArgValue{value},
		}, nil
	case rpc.ArrayType:
		arr, ok := v.(*rpc.ArrayValue)
		if !ok {
			return nil, fmt.Errorf("leaf operation on %T with an array schema", v)
		}
		width := indexBits(len(arr.Elems))
		if isSlice {
			width = indexBits(len(arr.Elems) + 1)
		}
		i1, err := r.ReadUint(width)
		if err != nil {
			return nil, fmt.Errorf("reading range start: %w", err)
		}
		idx1 := int(i1)
		idx2 := idx1
		if isSlice {
			i2, err := r.ReadUint(width)
			if err != nil {
				return nil, fmt.Errorf("reading range end: %w", err)
			}
			idx2 = int(i2)
		}
		rest := bytes.NewReader(r.ReadRemainingBytes())
		if rest.Len() == 0 {
			if !isSlice {
				return nil, fmt.Errorf("single-element update at index %d carries no value", idx1)
			}
			spliceElems(arr, idx1, idx2, nil)
			return &PropertyPatch{
				Op:    PatchRemoveRange,
				Path:  path,
				Index: idx1,
				End:   idx2,
			}, nil
		}
		var values []rpc.ArgValue
		for rest.Len() > 0 {
			value, err := t.Elem.ParseValue(rest)
			if err != nil {
				return nil, fmt.Errorf("decoding replacement element %d: %w", len(values), err)
			}
			values = append(values, value)
		}
		if isSlice {
			spliceElems(arr, idx1, idx2, values)
			return &PropertyPatch{
				Op:     PatchSetRange,
				Path:   path,
				Index:  idx1,
				End:    idx2,
				Values: values,
			}, nil
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("single-element update at index %d decoded %d values", idx1, len(values))
		}
		if idx1 >= len(arr.Elems) {
			return nil, fmt.Errorf("element index %d out of range (%d elements)", idx1, len(arr.Elems))
		}
		arr.Elems[idx1] = values[0]
		return &PropertyPatch{
			Op:     PatchSetElement,
			Path:   path,
			Index:  idx1,
			Values: values,
		}, nil
	default:
		return nil, fmt.Errorf("leaf operation on non-container type %T", t)
	}
}

// dictFields unwraps a dict value into its mutable field map.
func dictFields(v rpc.ArgValue) (map[string]rpc.ArgValue, error) {
	switch v := v.(type) {
	case rpc.Dict:
		return v, nil
	case rpc.NullableDict:
		if v == nil {
			return nil, fmt.Errorf("update targets an absent nullable dict")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("update targets %T with a dict schema", v)
	}
}

// spliceElems assigns values over arr[idx1:idx2] with Python slice
// semantics: out-of-range indices clamp and an inverted range inserts at
// idx1 without removing anything.
func spliceElems(arr *rpc.ArrayValue, idx1, idx2 int, values []rpc.ArgValue) {
	n := len(arr.Elems)
	if idx1 > n {
		idx1 = n
	}
	if idx2 > n {
		idx2 = n
	}
	if idx2 < idx1 {
		idx2 = idx1
	}
	out := make([]rpc.ArgValue, 0, idx1+len(values)+n-idx2)
	out = append(out, arr.Elems[:idx1]...)
	out = append(out, values...)
	out = append(out, arr.Elems[idx2:]...)
	arr.Elems = out
}
