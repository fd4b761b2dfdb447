package bitstream

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadBitMSBFirst(t *testing.T) {
	r := NewReader([]byte{0b10110001})
	want := []byte{1, 0, 1, 1, 0, 0, 0, 1}
	for i, w := range want {
		b, err := r.ReadBit()
		if err != nil {
			t.Fatalf("bit %d: %v", i, err)
		}
		if b != w {
			t.Errorf("bit %d = %d, want %d", i, b, w)
		}
	}
	if _, err := r.ReadBit(); !errors.Is(err, io.EOF) {
		t.Errorf("past-end ReadBit err = %v, want io.EOF", err)
	}
}

func TestReadUint(t *testing.T) {
	r := NewReader([]byte{0xb1, 0x40})
	v, err := r.ReadUint(4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xb {
		t.Errorf("first nibble = %#x, want 0xb", v)
	}
	v, err = r.ReadUint(8)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x14 {
		t.Errorf("straddling byte = %#x, want 0x14", v)
	}
	if _, err := r.ReadUint(5); !errors.Is(err, io.EOF) {
		t.Errorf("short ReadUint err = %v, want io.EOF", err)
	}
}

func TestReadUintZeroWidth(t *testing.T) {
	r := NewReader(nil)
	v, err := r.ReadUint(0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("zero-width read = %d, want 0", v)
	}
}

func TestReadRemainingBytesAligns(t *testing.T) {
	r := NewReader([]byte{0xff, 0x12, 0x34})
	if _, err := r.ReadUint(3); err != nil {
		t.Fatal(err)
	}
	rest := r.ReadRemainingBytes()
	if !bytes.Equal(rest, []byte{0x12, 0x34}) {
		t.Errorf("rest = % x, want 12 34", rest)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining() = %d after draining", r.Remaining())
	}
}

func TestReadBytesAlignedFastPath(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	got, err := r.ReadBytes(2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("ReadBytes = % x", got)
	}
	if r.Remaining() != 8 {
		t.Errorf("Remaining() = %d, want 8", r.Remaining())
	}
}
