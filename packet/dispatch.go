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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/lkolbly/wows-replays-sub000/bitstream"
	"github.com/lkolbly/wows-replays-sub000/rpc"
)

func readLE(r *bytes.Reader, out any) error {
	return binary.Read(r, binary.LittleEndian, out)
}

func readVec3(r *bytes.Reader) (Vec3, error) {
	var v Vec3
	return v, readLE(r, &v)
}

func readRot3(r *bytes.Reader) (Rot3, error) {
	var v Rot3
	return v, readLE(r, &v)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	return v, readLE(r, &v)
}

// parseSchemaPacket decodes a payload in schema mode, where entity property
// and method layouts come from the loaded entity definitions. Unknown tags
// return a nil payload without error.
func (p *Parser) parseSchemaPacket(tag PacketTag, payload []byte) (any, error) {
	switch tag {
	case TagBasePlayerCreate:
		return p.parseBasePlayerCreate(payload)
	case TagCellPlayerCreate:
		return p.parseCellPlayerCreate(payload)
	case TagEntityEnter:
		return parseEntityEnter(payload)
	case TagEntityLeave:
		return p.parseEntityLeave(payload)
	case TagEntityCreate:
		return p.parseEntityCreate(payload)
	case TagEntityProperty:
		return p.parseEntityProperty(payload)
	case TagEntityMethod:
		return p.parseEntityMethod(payload)
	case TagPosition:
		return parsePosition(payload)
	case TagVersion:
		return parseVersion(payload)
	case TagBattleResults:
		return parseBattleResults(payload)
	case TagNestedProperty:
		return p.parseNestedPropertyUpdate(payload)
	case TagCamera:
		return parseCamera(payload)
	case TagCameraMode:
		return parseCameraMode(payload)
	case TagMap:
		return parseMap(payload)
	case TagPlayerOrientation:
		return parsePlayerOrientation(payload)
	case TagCameraFreeLook:
		return parseCameraFreeLook(payload)
	case TagCruiseState:
		return parseCruiseState(payload)
	default:
		return nil, nil
	}
}

func (p *Parser) parseBasePlayerCreate(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var entityType uint16
	if err := readLE(r, &entityType); err != nil {
		return nil, err
	}
	spec, err := p.tracker.spec(entityType)
	if err != nil {
		return nil, err
	}
	state := make([]byte, r.Len())
	r.Read(state)
	// The base state blob is left undecoded; properties fill in lazily
	// from later updates.
	p.tracker.create(entityID, entityType)
	return &BasePlayerCreatePacket{
		EntityID:   entityID,
		EntityType: spec.Name,
		State:      state,
	}, nil
}

func (p *Parser) parseCellPlayerCreate(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	spaceID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	vehicleID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	position, err := readVec3(r)
	if err != nil {
		return nil, err
	}
	rotation, err := readRot3(r)
	if err != nil {
		return nil, err
	}
	vlen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	value := make([]byte, vlen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, fmt.Errorf("reading %d cell state bytes: %w", vlen, err)
	}
	_, spec, err := p.tracker.get(entityID)
	if err != nil {
		return nil, err
	}
	// The cell state decodes as the internal properties in declaration
	// order. The values are validated but not tracked: nested updates
	// address client-visible properties only.
	vr := bytes.NewReader(value)
	for _, prop := range spec.InternalProperties {
		if _, err := prop.Type.ParseValue(vr); err != nil {
			return nil, fmt.Errorf("internal property %q: %w", prop.Name, err)
		}
	}
	if vr.Len() != 0 {
		log.Warn().
			Uint32("entity", entityID).
			Int("leftover", vr.Len()).
			Msg("cell state left undecoded trailing bytes")
	}
	return &CellPlayerCreatePacket{
		EntityID:  entityID,
		SpaceID:   spaceID,
		VehicleID: vehicleID,
		Position:  position,
		Rotation:  rotation,
		Value:     value,
	}, nil
}

func parseEntityEnter(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	var pkt EntityEnterPacket
	if err := readLE(r, &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}

func (p *Parser) parseEntityLeave(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	p.tracker.remove(entityID)
	return &EntityLeavePacket{EntityID: entityID}, nil
}

func (p *Parser) parseEntityCreate(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var entityType uint16
	if err := readLE(r, &entityType); err != nil {
		return nil, err
	}
	vehicleID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	spaceID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	position, err := readVec3(r)
	if err != nil {
		return nil, err
	}
	rotation, err := readRot3(r)
	if err != nil {
		return nil, err
	}
	stateLength, err := readU32(r)
	if err != nil {
		return nil, err
	}
	spec, err := p.tracker.spec(entityType)
	if err != nil {
		return nil, err
	}
	numProps, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	state := p.tracker.create(entityID, entityType)
	props := make(map[string]rpc.ArgValue, numProps)
	for i := 0; i < int(numProps); i++ {
		propID, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading property id %d/%d: %w", i, numProps, err)
		}
		if int(propID) >= len(spec.Properties) {
			return nil, &PropertyIndexError{EntityID: entityID, Index: uint32(propID)}
		}
		propSpec := spec.Properties[propID]
		value, err := propSpec.Type.ParseValue(r)
		if err != nil {
			raw := make([]byte, r.Len())
			r.Read(raw)
			return nil, &RPCValueError{
				Method:   "EntityCreate::" + propSpec.Name,
				ArgIndex: int(propID),
				ArgType:  propSpec.Type,
				Raw:      raw,
				Err:      err,
			}
		}
		state.props[int(propID)] = rpc.CloneValue(value)
		props[propSpec.Name] = value
	}
	return &EntityCreatePacket{
		EntityID:    entityID,
		EntityType:  spec.Name,
		SpaceID:     spaceID,
		VehicleID:   vehicleID,
		Position:    position,
		Rotation:    rotation,
		StateLength: stateLength,
		Props:       props,
	}, nil
}

func (p *Parser) parseEntityProperty(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	propID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, fmt.Errorf("reading %d property bytes: %w", length, err)
	}
	state, spec, err := p.tracker.get(entityID)
	if err != nil {
		return nil, err
	}
	if int(propID) >= len(spec.Properties) {
		return nil, &PropertyIndexError{EntityID: entityID, Index: propID}
	}
	propSpec := spec.Properties[propID]
	pval, err := propSpec.Type.ParseValue(bytes.NewReader(value))
	if err != nil {
		return nil, &RPCValueError{
			Method:   "EntityProperty::" + propSpec.Name,
			ArgIndex: int(propID),
			ArgType:  propSpec.Type,
			Raw:      value,
			Err:      err,
		}
	}
	state.props[int(propID)] = rpc.CloneValue(pval)
	return &EntityPropertyPacket{
		EntityID: entityID,
		Property: propSpec.Name,
		Value:    pval,
	}, nil
}

func (p *Parser) parseEntityMethod(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	methodID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	args := make([]byte, length)
	if _, err := io.ReadFull(r, args); err != nil {
		return nil, fmt.Errorf("reading %d argument bytes: %w", length, err)
	}
	_, spec, err := p.tracker.get(entityID)
	if err != nil {
		return nil, err
	}
	if int(methodID) >= len(spec.ClientMethods) {
		return nil, fmt.Errorf("method index %d out of range (%d client methods on %s)", methodID, len(spec.ClientMethods), spec.Name)
	}
	method := spec.ClientMethods[methodID]
	ar := bytes.NewReader(args)
	values := make([]rpc.ArgValue, 0, len(method.Args))
	for idx, argType := range method.Args {
		value, err := argType.ParseValue(ar)
		if err != nil {
			raw := make([]byte, ar.Len())
			ar.Read(raw)
			return nil, &RPCValueError{
				Method:   method.Name,
				ArgIndex: idx,
				ArgType:  argType,
				Raw:      raw,
				Err:      err,
			}
		}
		values = append(values, value)
	}
	if ar.Len() != 0 {
		log.Warn().
			Uint32("entity", entityID).
			Str("method", method.Name).
			Int("leftover", ar.Len()).
			Msg("entity method left undecoded trailing bytes")
	}
	return &EntityMethodPacket{
		EntityID: entityID,
		Method:   method.Name,
		Args:     values,
	}, nil
}

func (p *Parser) parseNestedPropertyUpdate(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	isSlice, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if isSlice&0xfe != 0 {
		return nil, fmt.Errorf("unexpected slice flag 0x%02x", isSlice)
	}
	// The size field is almost certainly a u32 of which only the low byte
	// is ever populated; the next 3 bytes must be zero.
	payloadSize, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var zeros [3]byte
	if _, err := io.ReadFull(r, zeros[:]); err != nil {
		return nil, err
	}
	if zeros != [3]byte{} {
		return nil, fmt.Errorf("unexpected size padding % x", zeros)
	}
	rest := make([]byte, r.Len())
	r.Read(rest)
	if int(payloadSize) != len(rest) {
		return nil, fmt.Errorf("declared %d payload bytes, have %d", payloadSize, len(rest))
	}
	state, spec, err := p.tracker.get(entityID)
	if err != nil {
		return nil, err
	}
	br := bitstream.NewReader(rest)
	cont, err := br.ReadBit()
	if err != nil {
		return nil, err
	}
	if cont != 1 {
		return nil, &PatchTypeError{EntityID: entityID, Detail: "update does not select a property"}
	}
	idx, err := br.ReadUint(indexBits(len(spec.Properties)))
	if err != nil {
		return nil, err
	}
	propIdx := int(idx)
	if propIdx >= len(spec.Properties) {
		return nil, &PropertyIndexError{EntityID: entityID, Index: uint32(propIdx)}
	}
	value, ok := state.props[propIdx]
	if !ok {
		// The property was never initialized by a create packet, which
		// happens for the avatar's base state. There is nothing to patch.
		return nil, &PropertyIndexError{EntityID: entityID, Index: uint32(propIdx)}
	}
	propSpec := spec.Properties[propIdx]
	patch, err := applyPatch(propSpec.Type, value, isSlice&1 == 1, br, nil)
	if err != nil {
		return nil, &PatchTypeError{EntityID: entityID, Detail: err.Error()}
	}
	return &PropertyUpdatePacket{
		EntityID: entityID,
		Property: propSpec.Name,
		Update:   patch,
	}, nil
}

func parsePosition(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	pid, err := readU32(r)
	if err != nil {
		return nil, err
	}
	zero, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if zero != 0 {
		return nil, fmt.Errorf("expected zero word in position packet, got %d", zero)
	}
	pkt := PositionPacket{PID: pid}
	if pkt.Position, err = readVec3(r); err != nil {
		return nil, err
	}
	if pkt.PositionError, err = readVec3(r); err != nil {
		return nil, err
	}
	if pkt.Rotation, err = readRot3(r); err != nil {
		return nil, err
	}
	isError, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	pkt.IsError = isError != 0
	return &pkt, nil
}

func parseVersion(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d version bytes: %w", length, err)
	}
	return &VersionPacket{Version: string(data)}, nil
}

func parseBattleResults(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int(length) != r.Len() {
		return nil, fmt.Errorf("battle results declare %d bytes, have %d", length, r.Len())
	}
	data := make([]byte, length)
	io.ReadFull(r, data)
	return &BattleResultsPacket{Results: string(data)}, nil
}

func parseCamera(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	var pkt CameraPacket
	if err := readLE(r, &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}

func parseCameraMode(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	mode, err := readU32(r)
	if err != nil {
		return nil, err
	}
	return &CameraModePacket{Mode: mode}, nil
}

func parseCameraFreeLook(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	v, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &CameraFreeLookPacket{Value: v}, nil
}

func parseMap(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	var pkt MapPacket
	var err error
	if pkt.SpaceID, err = readU32(r); err != nil {
		return nil, err
	}
	if err := readLE(r, &pkt.ArenaID); err != nil {
		return nil, err
	}
	if pkt.Unknown1, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Unknown2, err = readU32(r); err != nil {
		return nil, err
	}
	pkt.Blob = make([]byte, 128)
	if _, err := io.ReadFull(r, pkt.Blob); err != nil {
		return nil, err
	}
	nameLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("reading %d map name bytes: %w", nameLen, err)
	}
	pkt.Name = string(name)
	pkt.Matrix = make([]byte, 4*4*4)
	if _, err := io.ReadFull(r, pkt.Matrix); err != nil {
		return nil, err
	}
	if pkt.Unknown, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &pkt, nil
}

func parsePlayerOrientation(payload []byte) (any, error) {
	if len(payload) != 0x20 {
		return nil, fmt.Errorf("player orientation payload is %d bytes, want 32", len(payload))
	}
	r := bytes.NewReader(payload)
	var pkt PlayerOrientationPacket
	if err := readLE(r, &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}

func parseCruiseState(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	var pkt CruiseStatePacket
	if err := readLE(r, &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}
