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

// Package packet decodes the framed packet stream of a battle recording.
//
// The stream is a sequence of size/type/clock headers, each followed by a
// payload. Payload layouts for entity traffic depend on the client build:
// with entity definitions loaded the parser decodes properties and methods
// against the schema, without them it falls back to per-build dispatch
// tables of reverse-engineered layouts.
package packet

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/lkolbly/wows-replays-sub000/rpc"
)

// PacketProcessor receives each framed packet in stream order.
type PacketProcessor interface {
	Process(*Packet)
}

// PacketProcessorFunc adapts a function to the PacketProcessor interface.
type PacketProcessorFunc func(*Packet)

func (f PacketProcessorFunc) Process(p *Packet) { f(p) }

const headerSize = 12

// Parser frames and decodes a packet stream. It is incremental: Feed
// buffers bytes as they arrive and Next yields packets as soon as they are
// complete. A Parser is not safe for concurrent use.
type Parser struct {
	tracker *entityTracker
	version uint32
	schema  bool

	buf []byte
	// off is the consumed prefix of buf; base is the stream offset of
	// buf[0].
	off  int
	base int
}

// NewParser returns a schema-mode parser: entity properties and methods are
// decoded against the given entity definitions.
func NewParser(specs []*rpc.EntitySpec) *Parser {
	return &Parser{
		tracker: newEntityTracker(specs),
		schema:  true,
	}
}

// NewLegacyParser returns a parser for streams without entity definitions.
// Entity RPCs are decoded through the dispatch table for the given client
// build; build 0 passes every RPC through undecoded.
func NewLegacyParser(version uint32) *Parser {
	return &Parser{
		tracker: newEntityTracker(nil),
		version: version,
	}
}

// Feed appends stream bytes to the parse buffer. The consumed prefix is
// dropped; the fresh allocation keeps previously returned Raw slices
// intact.
func (p *Parser) Feed(data []byte) {
	pending := p.buf[p.off:]
	buf := make([]byte, 0, len(pending)+len(data))
	buf = append(buf, pending...)
	buf = append(buf, data...)
	p.base += p.off
	p.buf = buf
	p.off = 0
}

// Buffered is the number of unconsumed bytes held by the parser.
func (p *Parser) Buffered() int {
	return len(p.buf) - p.off
}

// Next returns the next complete packet. It returns ErrNeedMoreData when
// the buffer does not hold a full packet yet. A malformed payload is
// reported inside the returned packet via ParseError, not as an error;
// only an unsupported client build aborts the stream.
func (p *Parser) Next() (*Packet, error) {
	pending := p.buf[p.off:]
	if len(pending) < headerSize {
		return nil, ErrNeedMoreData
	}
	size := binary.LittleEndian.Uint32(pending)
	tag := PacketTag(binary.LittleEndian.Uint32(pending[4:]))
	clock := math.Float32frombits(binary.LittleEndian.Uint32(pending[8:]))
	if len(pending) < headerSize+int(size) {
		return nil, ErrNeedMoreData
	}
	raw := pending[headerSize : headerSize+int(size)]
	pkt := &Packet{
		Offset: p.base + p.off,
		Size:   size,
		Type:   tag,
		Clock:  clock,
		Raw:    raw,
	}
	p.off += headerSize + int(size)

	var err error
	if p.schema {
		pkt.Payload, err = p.parseSchemaPacket(tag, raw)
	} else {
		pkt.Payload, err = p.parseLegacyPacket(tag, raw)
	}
	if err != nil {
		var unsupported *UnsupportedVersionError
		if errors.As(err, &unsupported) {
			return nil, unsupported
		}
		pkt.Payload = nil
		pkt.ParseError = err
	}
	return pkt, nil
}

// ParsePackets decodes a complete stream in one call, handing each packet
// to proc. A partial packet at the end of the data is a TruncatedError;
// malformed payloads inside the stream are reported per packet and do not
// stop it.
func (p *Parser) ParsePackets(data []byte, proc PacketProcessor) error {
	p.Feed(data)
	for {
		pkt, err := p.Next()
		if errors.Is(err, ErrNeedMoreData) {
			if p.Buffered() != 0 {
				return &TruncatedError{Offset: p.base + p.off}
			}
			return nil
		}
		if err != nil {
			return err
		}
		proc.Process(pkt)
	}
}
