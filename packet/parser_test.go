package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/lkolbly/wows-replays-sub000/rpc"
)

func frame(tag PacketTag, clock float32, payload []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	binary.Write(&buf, binary.LittleEndian, uint32(tag))
	binary.Write(&buf, binary.LittleEndian, math.Float32bits(clock))
	buf.Write(payload)
	return buf.Bytes()
}

func le32(vals ...uint32) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func collect(t *testing.T, p *Parser, stream []byte) []*Packet {
	t.Helper()
	var pkts []*Packet
	err := p.ParsePackets(stream, PacketProcessorFunc(func(pkt *Packet) {
		pkts = append(pkts, pkt)
	}))
	if err != nil {
		t.Fatal(err)
	}
	return pkts
}

func TestFraming(t *testing.T) {
	stream := append(frame(0x99, 1.5, []byte{1, 2, 3}), frame(0x98, 2.5, nil)...)
	pkts := collect(t, NewLegacyParser(0), stream)
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if pkts[0].Type != 0x99 || pkts[0].Size != 3 || pkts[0].Clock != 1.5 {
		t.Errorf("first header = %+v", pkts[0])
	}
	if !bytes.Equal(pkts[0].Raw, []byte{1, 2, 3}) {
		t.Errorf("raw = % x", pkts[0].Raw)
	}
	if pkts[0].Offset != 0 || pkts[1].Offset != 15 {
		t.Errorf("offsets = %d, %d", pkts[0].Offset, pkts[1].Offset)
	}
	// Unknown tags pass through undecoded without error.
	if pkts[0].Payload != nil || pkts[0].ParseError != nil {
		t.Errorf("unknown tag decoded: %+v", pkts[0])
	}
}

func TestStreamingOneByteAtATime(t *testing.T) {
	stream := append(frame(0x99, 1.0, []byte{1, 2, 3}), frame(0x98, 2.0, []byte{4})...)
	p := NewLegacyParser(0)
	var pkts []*Packet
	for _, b := range stream {
		p.Feed([]byte{b})
		for {
			pkt, err := p.Next()
			if errors.Is(err, ErrNeedMoreData) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			pkts = append(pkts, pkt)
		}
	}
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if !bytes.Equal(pkts[0].Raw, []byte{1, 2, 3}) || !bytes.Equal(pkts[1].Raw, []byte{4}) {
		t.Errorf("raw = % x, % x", pkts[0].Raw, pkts[1].Raw)
	}
	if pkts[1].Offset != 15 {
		t.Errorf("second offset = %d, want 15", pkts[1].Offset)
	}
}

func TestTruncatedStream(t *testing.T) {
	stream := append(frame(0x99, 1.0, []byte{1, 2, 3}), 0xde, 0xad)
	p := NewLegacyParser(0)
	err := p.ParsePackets(stream, PacketProcessorFunc(func(*Packet) {}))
	var trunc *TruncatedError
	if !errors.As(err, &trunc) {
		t.Fatalf("err = %v, want TruncatedError", err)
	}
	if trunc.Offset != 15 {
		t.Errorf("Offset = %d, want 15", trunc.Offset)
	}
}

func legacyRPC(entityID, subtype uint32, body []byte) []byte {
	out := le32(entityID, subtype, uint32(len(body)))
	return append(out, body...)
}

func TestLegacyChat(t *testing.T) {
	body := le32(77)
	body = append(body, 4)
	body = append(body, "team"...)
	body = append(body, 5)
	body = append(body, "hello"...)
	stream := frame(TagEntityMethod, 10, legacyRPC(123, 0x76, body))

	pkts := collect(t, NewLegacyParser(build094), stream)
	if len(pkts) != 1 {
		t.Fatalf("got %d packets", len(pkts))
	}
	chat, ok := pkts[0].Payload.(*ChatPacket)
	if !ok {
		t.Fatalf("payload = %#v (err %v)", pkts[0].Payload, pkts[0].ParseError)
	}
	if chat.EntityID != 123 || chat.SenderID != 77 || chat.Audience != "team" || chat.Message != "hello" {
		t.Errorf("chat = %+v", chat)
	}
}

func TestLegacyUnknownSubtypeTolerated(t *testing.T) {
	stream := frame(TagEntityMethod, 10, legacyRPC(123, 0xabc, []byte{9, 9}))
	pkts := collect(t, NewLegacyParser(build094), stream)
	raw, ok := pkts[0].Payload.(*EntityRPCPacket)
	if !ok {
		t.Fatalf("payload = %#v", pkts[0].Payload)
	}
	if raw.EntityID != 123 || raw.Subtype != 0xabc || !bytes.Equal(raw.Payload, []byte{9, 9}) {
		t.Errorf("rpc = %+v", raw)
	}
}

func TestUnsupportedBuildIsFatal(t *testing.T) {
	stream := frame(TagEntityMethod, 10, legacyRPC(123, 0x76, nil))
	p := NewLegacyParser(999999)
	err := p.ParsePackets(stream, PacketProcessorFunc(func(*Packet) {}))
	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedVersionError", err)
	}
	if unsupported.Version != 999999 {
		t.Errorf("Version = %d", unsupported.Version)
	}
}

func TestLegacyMalformedPayloadContinues(t *testing.T) {
	// Banner value 2 is unmapped; the packet carries the error and the
	// stream keeps going.
	bad := frame(TagEntityMethod, 1, legacyRPC(1, 0xc, []byte{2}))
	good := frame(TagEntityMethod, 2, legacyRPC(1, 0xc, []byte{8}))
	pkts := collect(t, NewLegacyParser(build094), append(bad, good...))
	if len(pkts) != 2 {
		t.Fatalf("got %d packets", len(pkts))
	}
	if pkts[0].ParseError == nil || pkts[0].Payload != nil {
		t.Errorf("bad packet = %+v", pkts[0])
	}
	banner, ok := pkts[1].Payload.(*BannerPacket)
	if !ok || banner.Banner != BannerCitadel {
		t.Errorf("good packet = %#v", pkts[1].Payload)
	}
}

// avatarSpecs is a minimal schema: one entity with a dict property and one
// string-arg method.
func avatarSpecs() []*rpc.EntitySpec {
	return []*rpc.EntitySpec{{
		Name: "Avatar",
		Properties: []rpc.Property{{
			Name: "state",
			Type: rpc.FixedDictType{Fields: []rpc.DictField{
				{Name: "a", Type: rpc.PrimitiveUint8},
				{Name: "b", Type: rpc.PrimitiveUint8},
			}},
			Flag: rpc.FlagAllClients,
		}},
		ClientMethods: []rpc.Method{{
			Name: "onChat",
			Args: []rpc.ArgType{rpc.PrimitiveString},
		}},
	}}
}

func entityCreatePayload(entityID uint32, entityType uint16, state []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, entityID)
	binary.Write(&buf, binary.LittleEndian, entityType)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // vehicle
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // space
	buf.Write(make([]byte, 24))                        // position, rotation
	binary.Write(&buf, binary.LittleEndian, uint32(len(state)))
	buf.Write(state)
	return buf.Bytes()
}

func TestSchemaEntityLifecycle(t *testing.T) {
	var stream []byte
	// Create entity 100 of type 1 with state = {a:1, b:2} on property 0.
	stream = append(stream, frame(TagEntityCreate, 1, entityCreatePayload(100, 1, []byte{1, 0, 1, 2}))...)
	// Call onChat("hi").
	method := le32(100, 0, 3)
	method = append(method, 2, 'h', 'i')
	stream = append(stream, frame(TagEntityMethod, 2, method)...)
	// Patch state.b to 42: top continuation bit, zero-width property
	// index, leaf on the dict, field index 1, one value byte.
	patch := le32(100)
	patch = append(patch, 0, 2, 0, 0, 0, 0xa0, 0x2a)
	stream = append(stream, frame(TagNestedProperty, 3, patch)...)
	// Leave, then a method on the gone entity.
	stream = append(stream, frame(TagEntityLeave, 4, le32(100))...)
	stream = append(stream, frame(TagEntityMethod, 5, method)...)

	pkts := collect(t, NewParser(avatarSpecs()), stream)
	if len(pkts) != 5 {
		t.Fatalf("got %d packets, want 5", len(pkts))
	}

	create, ok := pkts[0].Payload.(*EntityCreatePacket)
	if !ok {
		t.Fatalf("create = %#v (err %v)", pkts[0].Payload, pkts[0].ParseError)
	}
	if create.EntityID != 100 || create.EntityType != "Avatar" {
		t.Errorf("create = %+v", create)
	}
	state, ok := create.Props["state"].(rpc.Dict)
	if !ok || state["a"] != uint8(1) || state["b"] != uint8(2) {
		t.Errorf("state = %#v", create.Props["state"])
	}

	call, ok := pkts[1].Payload.(*EntityMethodPacket)
	if !ok {
		t.Fatalf("method = %#v (err %v)", pkts[1].Payload, pkts[1].ParseError)
	}
	if call.Method != "onChat" || string(call.Args[0].(rpc.StringBytes)) != "hi" {
		t.Errorf("call = %+v", call)
	}

	update, ok := pkts[2].Payload.(*PropertyUpdatePacket)
	if !ok {
		t.Fatalf("update = %#v (err %v)", pkts[2].Payload, pkts[2].ParseError)
	}
	if update.Property != "state" || update.Update.Op != PatchSetKey || update.Update.Key != "b" {
		t.Errorf("update = %+v", update.Update)
	}
	if update.Update.Values[0] != uint8(42) {
		t.Errorf("patched value = %#v", update.Update.Values[0])
	}

	if _, ok := pkts[3].Payload.(*EntityLeavePacket); !ok {
		t.Fatalf("leave = %#v", pkts[3].Payload)
	}

	// The entity is gone; the method call fails per-packet.
	var unknown *UnknownEntityError
	if !errors.As(pkts[4].ParseError, &unknown) {
		t.Fatalf("after leave err = %v, want UnknownEntityError", pkts[4].ParseError)
	}
	if unknown.EntityID != 100 {
		t.Errorf("EntityID = %d", unknown.EntityID)
	}
}

func TestSchemaMethodBadArgument(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(TagEntityCreate, 1, entityCreatePayload(100, 1, []byte{0}))...)
	// onChat with a string whose declared length exceeds the payload.
	method := le32(100, 0, 2)
	method = append(method, 200, 'x')
	stream = append(stream, frame(TagEntityMethod, 2, method)...)

	pkts := collect(t, NewParser(avatarSpecs()), stream)
	var rpcErr *RPCValueError
	if !errors.As(pkts[1].ParseError, &rpcErr) {
		t.Fatalf("err = %v, want RPCValueError", pkts[1].ParseError)
	}
	if rpcErr.Method != "onChat" || rpcErr.ArgIndex != 0 {
		t.Errorf("rpcErr = %+v", rpcErr)
	}
}

func TestSchemaMethodTrailingBytesTolerated(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(TagEntityCreate, 1, entityCreatePayload(100, 1, []byte{0}))...)
	// onChat("hi") with three bytes past the last argument. The call still
	// decodes; the extras are reported, not fatal.
	method := le32(100, 0, 6)
	method = append(method, 2, 'h', 'i', 0xde, 0xad, 0xbe)
	stream = append(stream, frame(TagEntityMethod, 2, method)...)

	pkts := collect(t, NewParser(avatarSpecs()), stream)
	if pkts[1].ParseError != nil {
		t.Fatalf("err = %v, want clean decode", pkts[1].ParseError)
	}
	call, ok := pkts[1].Payload.(*EntityMethodPacket)
	if !ok {
		t.Fatalf("method = %#v", pkts[1].Payload)
	}
	if call.Method != "onChat" || string(call.Args[0].(rpc.StringBytes)) != "hi" {
		t.Errorf("call = %+v", call)
	}
}

func TestSchemaCellStateTrailingBytesTolerated(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(TagEntityCreate, 1, entityCreatePayload(100, 1, []byte{0}))...)
	// Avatar declares no internal properties, so any cell state bytes are
	// surplus. The packet still decodes with the raw value attached.
	cell := le32(100, 0, 0)
	cell = append(cell, make([]byte, 24)...) // position, rotation
	cell = append(cell, le32(2)...)
	cell = append(cell, 7, 7)
	stream = append(stream, frame(TagCellPlayerCreate, 2, cell)...)

	pkts := collect(t, NewParser(avatarSpecs()), stream)
	if pkts[1].ParseError != nil {
		t.Fatalf("err = %v, want clean decode", pkts[1].ParseError)
	}
	create, ok := pkts[1].Payload.(*CellPlayerCreatePacket)
	if !ok {
		t.Fatalf("cell create = %#v", pkts[1].Payload)
	}
	if create.EntityID != 100 || !bytes.Equal(create.Value, []byte{7, 7}) {
		t.Errorf("cell create = %+v", create)
	}
}

func TestSchemaPropertyIndexOutOfRange(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(TagEntityCreate, 1, entityCreatePayload(100, 1, []byte{0}))...)
	// Avatar has a single client property; index 5 is out of range.
	prop := le32(100, 5, 1)
	prop = append(prop, 9)
	stream = append(stream, frame(TagEntityProperty, 2, prop)...)

	pkts := collect(t, NewParser(avatarSpecs()), stream)
	var idxErr *PropertyIndexError
	if !errors.As(pkts[1].ParseError, &idxErr) {
		t.Fatalf("err = %v, want PropertyIndexError", pkts[1].ParseError)
	}
	if idxErr.EntityID != 100 || idxErr.Index != 5 {
		t.Errorf("idxErr = %+v", idxErr)
	}
}

func TestSchemaPropertyUpdatesTrackedState(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(TagEntityCreate, 1, entityCreatePayload(100, 1, []byte{1, 0, 1, 2}))...)
	// EntityProperty replaces state wholesale with {a:9, b:9}.
	prop := le32(100, 0, 2)
	prop = append(prop, 9, 9)
	stream = append(stream, frame(TagEntityProperty, 2, prop)...)
	// Patch b afterwards; decoding against the replaced value proves the
	// tracker took the property update.
	patch := le32(100)
	patch = append(patch, 0, 2, 0, 0, 0, 0xa0, 0x2a)
	stream = append(stream, frame(TagNestedProperty, 3, patch)...)

	pkts := collect(t, NewParser(avatarSpecs()), stream)
	set, ok := pkts[1].Payload.(*EntityPropertyPacket)
	if !ok {
		t.Fatalf("property = %#v (err %v)", pkts[1].Payload, pkts[1].ParseError)
	}
	if set.Property != "state" || set.Value.(rpc.Dict)["a"] != uint8(9) {
		t.Errorf("set = %+v", set)
	}
	update, ok := pkts[2].Payload.(*PropertyUpdatePacket)
	if !ok {
		t.Fatalf("update = %#v (err %v)", pkts[2].Payload, pkts[2].ParseError)
	}
	if update.Update.Values[0] != uint8(42) {
		t.Errorf("patched value = %#v", update.Update.Values[0])
	}
}

func TestLegacyPosition(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(55)) // pid
	binary.Write(&buf, binary.LittleEndian, uint32(0))  // zero word
	binary.Write(&buf, binary.LittleEndian, float32(1))
	binary.Write(&buf, binary.LittleEndian, float32(2))
	binary.Write(&buf, binary.LittleEndian, float32(3))
	binary.Write(&buf, binary.BigEndian, uint32(0x11223344))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, float32(0))
	binary.Write(&buf, binary.LittleEndian, float32(0))
	binary.Write(&buf, binary.LittleEndian, float32(0))
	buf.WriteByte(7)

	pkts := collect(t, NewLegacyParser(0), frame(TagPosition, 1, buf.Bytes()))
	pos, ok := pkts[0].Payload.(*LegacyPositionPacket)
	if !ok {
		t.Fatalf("payload = %#v (err %v)", pkts[0].Payload, pkts[0].ParseError)
	}
	if pos.PID != 55 || pos.X != 1 || pos.Z != 3 || pos.RotX != 0x11223344 || pos.Extra != 7 {
		t.Errorf("pos = %+v", pos)
	}
}
