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
)

// legacyHandler decodes one entity RPC payload. The reader is positioned at
// the start of the payload; leftover bytes are logged by the caller.
type legacyHandler func(entityID, supertype, subtype uint32, r *bytes.Reader) (any, error)

type rpcKey struct {
	supertype uint32
	subtype   uint32
}

// Client build numbers with known entity RPC layouts. Builds between the
// named ones reuse the nearest earlier table; the mapping past 0.9.5.0 is
// carried forward unverified.
const (
	build094  = 2571457 // 0.9.4
	build0950 = 2591463 // 0.9.5.0
	build0951 = 2643263 // 0.9.5.1
	build0960 = 2666186 // 0.9.6.0
	build0961 = 2697511 // 0.9.6.1
	build0970 = 2744482 // 0.9.7.0
	build098  = 2832630 // 0.9.8
	build0103 = 3747819 // 0.10.3
)

var table094 = map[rpcKey]legacyHandler{
	{0x8, 0x76}: parseLegacyChat,
	{0x8, 0x3c}: parseLegacyTiming,
	{0x8, 0x3d}: parseLegacyTiming,
	{0x8, 0x79}: parseLegacyPairs,
	{0x8, 0x63}: parseLegacyArtilleryHit,
	{0x8, 0xc}:  parseLegacyBanner,
	{0x8, 0x35}: parseLegacyDamageReceived,
}

var table0950 = map[rpcKey]legacyHandler{
	{0x8, 0x78}: parseLegacyChat,
	{0x8, 0x3e}: parseLegacyTiming,
	{0x8, 0x3f}: parseLegacyTiming,
	{0x8, 0x7b}: parseLegacyPairs,
	{0x8, 0x64}: parseLegacyArtilleryHit,
	{0x8, 0xc}:  parseLegacyBanner,
	{0x8, 0x35}: parseLegacyDamageReceived,
	{0x8, 0x53}: parseLegacyShipDestroyed,
	{0x8, 0x58}: parseLegacyVoiceLine,
}

// Only chat is confirmed for 0.10.3; everything else shifted indices again.
var table0103 = map[rpcKey]legacyHandler{
	{0x8, 0x78}: parseLegacyChat,
}

// legacyTables keys dispatch tables by client build. Build 0 is the
// wildcard: every RPC passes through undecoded.
var legacyTables = map[uint32]map[rpcKey]legacyHandler{
	0:         {},
	build094:  table094,
	build0950: table0950,
	build0951: table0950,
	build0960: table0950,
	build0961: table0950,
	build0970: table0950,
	build098:  table0950,
	build0103: table0103,
}

// SupportedBuilds lists the client builds with a dispatch table, in no
// particular order.
func SupportedBuilds() []uint32 {
	builds := make([]uint32, 0, len(legacyTables))
	for b := range legacyTables {
		builds = append(builds, b)
	}
	return builds
}

// parseLegacyEntityPacket frames a 0x7/0x8 entity RPC and dispatches its
// payload through the build's table.
func (p *Parser) parseLegacyEntityPacket(supertype uint32, payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	entityID, err := readU32(r)
	if err != nil {
		return nil, err
	}
	subtype, err := readU32(r)
	if err != nil {
		return nil, err
	}
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading %d RPC payload bytes: %w", length, err)
	}
	table, ok := legacyTables[p.version]
	if !ok {
		return nil, &UnsupportedVersionError{Version: p.version}
	}
	handler, ok := table[rpcKey{supertype, subtype}]
	if !ok {
		return &EntityRPCPacket{
			Supertype: supertype,
			EntityID:  entityID,
			Subtype:   subtype,
			Payload:   body,
		}, nil
	}
	br := bytes.NewReader(body)
	pkt, err := handler(entityID, supertype, subtype, br)
	if err != nil {
		return nil, err
	}
	if br.Len() != 0 {
		log.Warn().
			Uint32("supertype", supertype).
			Uint32("subtype", subtype).
			Int("leftover", br.Len()).
			Msg("entity RPC left undecoded trailing bytes")
	}
	return pkt, nil
}

func parseLegacyChat(entityID, _, _ uint32, r *bytes.Reader) (any, error) {
	sender, err := readU32(r)
	if err != nil {
		return nil, err
	}
	audience, err := readByteString(r)
	if err != nil {
		return nil, fmt.Errorf("reading audience: %w", err)
	}
	message, err := readByteString(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	return &ChatPacket{
		EntityID: entityID,
		SenderID: sender,
		Audience: audience,
		Message:  message,
	}, nil
}

// readByteString reads a 1-byte-length-prefixed string.
func readByteString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func parseLegacyTiming(_, supertype, subtype uint32, r *bytes.Reader) (any, error) {
	time, err := readU32(r)
	if err != nil {
		return nil, err
	}
	zero, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if zero != 0 {
		return nil, fmt.Errorf("0x%x.0x%x: expected zero word in timing packet, got %d", supertype, subtype, zero)
	}
	return &TimingPacket{Time: time}, nil
}

func parseLegacyPairs(_, _, _ uint32, r *bytes.Reader) (any, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	pairs := make([][2]uint32, count)
	for i := range pairs {
		if pairs[i][0], err = readU32(r); err != nil {
			return nil, err
		}
		if pairs[i][1], err = readU32(r); err != nil {
			return nil, err
		}
	}
	trailer, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if trailer != 0 {
		return nil, fmt.Errorf("expected zero trailer byte, got 0x%02x", trailer)
	}
	return &Type879Packet{Pairs: pairs}, nil
}

func parseLegacyArtilleryHit(_, supertype, subtype uint32, r *bytes.Reader) (any, error) {
	var pkt ArtilleryHitPacket
	pkt.Raw = rawBytes(r)
	var err error
	if pkt.Bitmask0, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Bitmask1, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Bitmask2, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Subject, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Damage, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Bitmask3, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Bitmask4, err = readU32(r); err != nil {
		return nil, err
	}
	if pkt.Bitmask5, err = readU32(r); err != nil {
		return nil, err
	}
	count, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	pkt.Incapacitations = make([]uint32, count)
	for i := range pkt.Incapacitations {
		if pkt.Incapacitations[i], err = readU32(r); err != nil {
			return nil, err
		}
	}
	switch (pkt.Bitmask5 & 0xff000000) >> 24 {
	case 0:
	case 0xff:
		pkt.IsSecondary = true
	default:
		return nil, fmt.Errorf("0x%x.0x%x: unknown secondary bitfield 0x%08x", supertype, subtype, pkt.Bitmask5)
	}
	pkt.IsIncoming = pkt.Bitmask1&1 != 0
	return &pkt, nil
}

// rawBytes returns a view of the reader's unread bytes without consuming
// them.
func rawBytes(r *bytes.Reader) []byte {
	data := make([]byte, r.Len())
	pos, _ := r.Seek(0, io.SeekCurrent)
	r.Read(data)
	r.Seek(pos, io.SeekStart)
	return data
}

var bannerValues = map[byte]Banner{
	1:  BannerTorpedoHit,
	3:  BannerPlaneShotDown,
	4:  BannerIncapacitation,
	5:  BannerDestroyed,
	6:  BannerSetFire,
	7:  BannerFlooding,
	8:  BannerCitadel,
	9:  BannerDefended,
	10: BannerCaptured,
	11: BannerAssistedInCapture,
	13: BannerSecondaryHit,
	14: BannerOverPenetration,
	15: BannerPenetration,
	16: BannerNonPenetration,
	17: BannerRicochet,
	19: BannerSpotted,
	21: BannerDiveBombPenetration,
	25: BannerRocketPenetration,
	26: BannerRocketNonPenetration,
	27: BannerShotDownByAircraft,
	28: BannerTorpedoProtectionHit,
	30: BannerRocketTorpedoProtectionHit,
}

func parseLegacyBanner(_, supertype, subtype uint32, r *bytes.Reader) (any, error) {
	v, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	banner, ok := bannerValues[v]
	if !ok {
		return nil, fmt.Errorf("0x%x.0x%x: unknown banner type 0x%02x", supertype, subtype, v)
	}
	return &BannerPacket{Banner: banner}, nil
}

func parseLegacyDamageReceived(entityID, supertype, subtype uint32, r *bytes.Reader) (any, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		// A zero-count form with a fixed 5-byte body showed up in
		// 0.9.5(.1?); its meaning is unclear, so it passes through raw.
		if r.Len() != 5 {
			return nil, fmt.Errorf("zero-count damage packet with %d trailing bytes", r.Len())
		}
		body := make([]byte, r.Len())
		r.Read(body)
		return &EntityRPCPacket{
			Supertype: supertype,
			EntityID:  entityID,
			Subtype:   subtype,
			Payload:   body,
		}, nil
	}
	if r.Len() != 8*int(count) {
		return nil, fmt.Errorf("damage packet declares %d entries, have %d bytes", count, r.Len())
	}
	damage := make([]DamageDealt, count)
	for i := range damage {
		if err := binary.Read(r, binary.LittleEndian, &damage[i]); err != nil {
			return nil, err
		}
	}
	return &DamageReceivedPacket{Recipient: entityID, Damage: damage}, nil
}

var deathCauses = map[uint32]DeathCause{
	2:  DeathCauseSecondaries,
	3:  DeathCauseTorpedo,
	4:  DeathCauseDiveBomber,
	5:  DeathCauseAerialTorpedo,
	6:  DeathCauseFire,
	7:  DeathCauseRamming,
	9:  DeathCauseFlooding,
	14: DeathCauseAerialRocket,
	15: DeathCauseDetonation,
	17: DeathCauseArtillery,
	18: DeathCauseArtillery,
	19: DeathCauseArtillery,
}

func parseLegacyShipDestroyed(_, supertype, subtype uint32, r *bytes.Reader) (any, error) {
	victim, err := readU32(r)
	if err != nil {
		return nil, err
	}
	killer, err := readU32(r)
	if err != nil {
		return nil, err
	}
	rawCause, err := readU32(r)
	if err != nil {
		return nil, err
	}
	cause, ok := deathCauses[rawCause]
	if !ok {
		return nil, fmt.Errorf("0x%x.0x%x: unknown death cause %d", supertype, subtype, rawCause)
	}
	return &ShipDestroyedPacket{
		Victim:   victim,
		Killer:   killer,
		Cause:    cause,
		RawCause: rawCause,
	}, nil
}

func parseLegacyVoiceLine(_, supertype, subtype uint32, r *bytes.Reader) (any, error) {
	audience, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	sender, err := readU32(r)
	if err != nil {
		return nil, err
	}
	line, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	a, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if _, err := readU32(r); err != nil {
		return nil, err
	}
	pkt := &VoiceLinePacket{Sender: sender}
	switch audience {
	case 0:
	case 1:
		pkt.IsGlobal = true
	default:
		return nil, fmt.Errorf("0x%x.0x%x: unknown voice line audience %d", supertype, subtype, audience)
	}
	switch line {
	case 1:
		pkt.Kind = VoiceLineAttentionToSquare
		pkt.Square = [2]uint32{a, b}
	case 2:
		pkt.Kind = VoiceLineConcentrateFire
		pkt.Target = b
	case 3:
		pkt.Kind = VoiceLineRequestingSupport
	case 5:
		pkt.Kind = VoiceLineWilco
	case 6:
		pkt.Kind = VoiceLineNegative
	case 7:
		pkt.Kind = VoiceLineWellDone
	case 8:
		pkt.Kind = VoiceLineFairWinds
	case 9:
		pkt.Kind = VoiceLineCurses
	case 10:
		pkt.Kind = VoiceLineDefendTheBase
	case 11:
		pkt.Kind = VoiceLineProvideAntiAircraft
	case 12:
		pkt.Kind = VoiceLineRetreat
		pkt.Target = b
	case 13:
		pkt.Kind = VoiceLineIntelRequired
	case 14:
		pkt.Kind = VoiceLineSetSmokeScreen
	case 15:
		pkt.Kind = VoiceLineUsingRadar
	case 16:
		pkt.Kind = VoiceLineUsingHydroSearch
	default:
		return nil, fmt.Errorf("0x%x.0x%x: unknown voice line %d", supertype, subtype, line)
	}
	return pkt, nil
}

// parseLegacyPacket decodes a payload without entity definitions: entity
// RPCs go through the build dispatch tables and positional packets use the
// pre-schema layouts.
func (p *Parser) parseLegacyPacket(tag PacketTag, payload []byte) (any, error) {
	switch tag {
	case TagEntityProperty, TagEntityMethod:
		return p.parseLegacyEntityPacket(uint32(tag), payload)
	case TagPosition:
		return parseLegacyPosition(payload)
	case TagLegacyOrientation:
		return parseLegacyOrientation(payload)
	default:
		return nil, nil
	}
}

func parseLegacyPosition(payload []byte) (any, error) {
	r := bytes.NewReader(payload)
	var pkt LegacyPositionPacket
	var err error
	if pkt.PID, err = readU32(r); err != nil {
		return nil, err
	}
	zero, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if zero != 0 {
		return nil, fmt.Errorf("expected zero word in position packet, got %d", zero)
	}
	if err := readLE(r, &pkt.X); err != nil {
		return nil, err
	}
	if err := readLE(r, &pkt.Y); err != nil {
		return nil, err
	}
	if err := readLE(r, &pkt.Z); err != nil {
		return nil, err
	}
	// The rotation words are big-endian, unlike everything around them.
	if err := binary.Read(r, binary.BigEndian, &pkt.RotX); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &pkt.RotY); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &pkt.RotZ); err != nil {
		return nil, err
	}
	if err := readLE(r, &pkt.A); err != nil {
		return nil, err
	}
	if err := readLE(r, &pkt.B); err != nil {
		return nil, err
	}
	if err := readLE(r, &pkt.C); err != nil {
		return nil, err
	}
	if pkt.Extra, err = r.ReadByte(); err != nil {
		return nil, err
	}
	return &pkt, nil
}

func parseLegacyOrientation(payload []byte) (any, error) {
	if len(payload) != 0x20 {
		return nil, fmt.Errorf("orientation payload is %d bytes, want 32", len(payload))
	}
	r := bytes.NewReader(payload)
	var pkt LegacyPlayerOrientationPacket
	if err := readLE(r, &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}
