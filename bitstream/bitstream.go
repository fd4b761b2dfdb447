package bitstream

import (
	"fmt"
	"io"
)

// Reader consumes a byte slice bit by bit, most significant bit of each
// byte first. Index selectors inside nested property updates are packed
// this way, followed by byte-aligned value payloads.
type Reader struct {
	data      []byte
	bitOffset int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports the number of unread bits.
func (r *Reader) Remaining() int {
	return len(r.data)*8 - r.bitOffset
}

func (r *Reader) ReadBit() (byte, error) {
	if r.Remaining() < 1 {
		return 0, io.EOF
	}
	b := (r.data[r.bitOffset>>3] >> (7 - (r.bitOffset & 7))) & 1
	r.bitOffset++
	return b, nil
}

// ReadUint reads up to 64 bits and returns them as an unsigned integer,
// first bit read being the most significant.
func (r *Reader) ReadUint(bits int) (uint64, error) {
	if bits < 0 || bits > 64 {
		return 0, fmt.Errorf("invalid bit count %d", bits)
	}
	if r.Remaining() < bits {
		return 0, io.EOF
	}
	v := uint64(0)
	for range bits {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | uint64(b)
	}
	return v, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.Remaining() < n*8 {
		return nil, io.EOF
	}
	out := make([]byte, n)
	if r.bitOffset&7 == 0 {
		copy(out, r.data[r.bitOffset>>3:])
		r.bitOffset += n * 8
		return out, nil
	}
	for i := range out {
		v, err := r.ReadUint(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// AlignToByteBoundary discards bits up to the next byte boundary.
func (r *Reader) AlignToByteBoundary() {
	if off := r.bitOffset & 7; off != 0 {
		r.bitOffset += 8 - off
	}
}

// ReadRemainingBytes aligns to the next byte boundary and returns every
// byte left in the stream. The returned slice aliases the reader's data.
func (r *Reader) ReadRemainingBytes() []byte {
	r.AlignToByteBoundary()
	b := r.data[r.bitOffset>>3:]
	r.bitOffset = len(r.data) * 8
	return b
}
