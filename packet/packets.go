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
	"github.com/lkolbly/wows-replays-sub000/rpc"
)

// PacketTag is the type field of a packet header. Tags identify the payload
// layout; unknown tags are carried through undecoded.
//
//go:generate stringer --type PacketTag
type PacketTag uint32

const (
	TagBasePlayerCreate  PacketTag = 0x0
	TagCellPlayerCreate  PacketTag = 0x1
	TagEntityControl     PacketTag = 0x2
	TagEntityEnter       PacketTag = 0x3
	TagEntityLeave       PacketTag = 0x4
	TagEntityCreate      PacketTag = 0x5
	TagEntityProperty    PacketTag = 0x7
	TagEntityMethod      PacketTag = 0x8
	TagPosition          PacketTag = 0xa
	TagVersion           PacketTag = 0x16
	TagBattleResults     PacketTag = 0x22
	TagNestedProperty    PacketTag = 0x23
	TagCamera            PacketTag = 0x25
	TagCameraMode        PacketTag = 0x27
	TagMap               PacketTag = 0x28
	TagLegacyOrientation PacketTag = 0x2b
	TagPlayerOrientation PacketTag = 0x2c
	TagCameraFreeLook    PacketTag = 0x2f
	TagCruiseState       PacketTag = 0x32
)

type Vec3 struct {
	X, Y, Z float32
}

type Rot3 struct {
	Roll, Pitch, Yaw float32
}

// Packet is one framed packet. Raw always holds the payload bytes; Payload
// holds the decoded form when the tag is known and decoding succeeded.
// When decoding failed, ParseError carries the reason and Payload is nil;
// the stream itself continues.
type Packet struct {
	// Offset is the byte position of this packet's header in the stream.
	Offset     int
	Size       uint32
	Type       PacketTag
	Clock      float32
	Raw        []byte
	Payload    any
	ParseError error
}

// PositionPacket carries the primary position update for an entity.
type PositionPacket struct {
	PID           uint32
	Position      Vec3
	PositionError Vec3
	Rotation      Rot3
	IsError       bool
}

type BasePlayerCreatePacket struct {
	EntityID   uint32
	EntityType string
	// State is the undecoded base state blob.
	State []byte
}

type CellPlayerCreatePacket struct {
	EntityID  uint32
	SpaceID   uint32
	VehicleID uint32
	Position  Vec3
	Rotation  Rot3
	// Value holds the cell state blob, which decodes as the entity's
	// internal properties in declaration order.
	Value []byte
}

type EntityEnterPacket struct {
	EntityID  uint32
	SpaceID   uint32
	VehicleID uint32
}

type EntityLeavePacket struct {
	EntityID uint32
}

type EntityCreatePacket struct {
	EntityID    uint32
	EntityType  string
	SpaceID     uint32
	VehicleID   uint32
	Position    Vec3
	Rotation    Rot3
	StateLength uint32
	Props       map[string]rpc.ArgValue
}

type EntityPropertyPacket struct {
	EntityID uint32
	Property string
	Value    rpc.ArgValue
}

type EntityMethodPacket struct {
	EntityID uint32
	Method   string
	Args     []rpc.ArgValue
}

// PropertyUpdatePacket is a decoded nested property update. The patch has
// already been applied to the tracked entity state when this is emitted.
type PropertyUpdatePacket struct {
	EntityID uint32
	Property string
	Update   *PropertyPatch
}

// PlayerOrientationPacket usually appears twice per tick: once for the
// player's ship and once for the camera. ParentID names the object the
// camera is attached to, when any.
type PlayerOrientationPacket struct {
	PID      uint32
	ParentID uint32
	Position Vec3
	Rotation Rot3
}

type CameraPacket struct {
	Unknown          Vec3
	Unknown2         uint32
	AbsolutePosition Vec3
	FOV              float32
	Position         Vec3
	Rotation         Rot3
}

type CameraModePacket struct {
	Mode uint32
}

type CameraFreeLookPacket struct {
	Value uint8
}

type MapPacket struct {
	SpaceID  uint32
	ArenaID  int64
	Unknown1 uint32
	Unknown2 uint32
	Blob     []byte
	Name     string
	// Matrix is believed to always be the 4x4 unit matrix, kept raw.
	Matrix  []byte
	Unknown uint8
}

type VersionPacket struct {
	Version string
}

type BattleResultsPacket struct {
	// Results is the raw pickle-ish results string as sent by the server.
	Results string
}

type CruiseStatePacket struct {
	Key   uint32
	Value int32
}

// EntityRPCPacket is an entity property or method call left undecoded: the
// build's dispatch table has no handler for its supertype/subtype pair.
type EntityRPCPacket struct {
	Supertype uint32
	EntityID  uint32
	Subtype   uint32
	Payload   []byte
}

// LegacyPositionPacket is the pre-schema position layout. The rotations are
// big-endian fixed-point words; A/B/C look like local-frame velocities.
type LegacyPositionPacket struct {
	PID              uint32
	X, Y, Z          float32
	RotX, RotY, RotZ uint32
	A, B, C          float32
	Extra            uint8
}

type LegacyPlayerOrientationPacket struct {
	PID      uint32
	ParentID uint32
	X, Y, Z  float32
	// Heading is radians, 0 north, positive clockwise.
	Heading float32
	F4, F5  float32
}

type ChatPacket struct {
	EntityID uint32
	SenderID uint32
	Audience string
	Message  string
}

// TimingPacket instances come in mirrored pairs on adjacent subtypes with a
// matching counter, ticking roughly once per millisecond.
type TimingPacket struct {
	Time uint32
}

// Type879Packet is the pid/value pair list carried by subtype 0x79 (0x7b
// from 0.9.5 on). Its meaning is unknown.
type Type879Packet struct {
	Pairs [][2]uint32
}

type ArtilleryHitPacket struct {
	Subject     uint32
	IsIncoming  bool
	IsHE        bool
	IsSecondary bool
	Damage      uint32

	Incapacitations []uint32

	Bitmask0 uint32
	Bitmask1 uint32
	Bitmask2 uint32
	Bitmask3 uint32
	Bitmask4 uint32
	Bitmask5 uint32

	Raw []byte
}

//go:generate stringer --type Banner
type Banner uint8

const (
	BannerPlaneShotDown Banner = iota
	BannerIncapacitation
	BannerSetFire
	BannerCitadel
	BannerSecondaryHit
	BannerOverPenetration
	BannerPenetration
	BannerNonPenetration
	BannerRicochet
	BannerTorpedoProtectionHit
	BannerCaptured
	BannerAssistedInCapture
	BannerSpotted
	BannerDestroyed
	BannerTorpedoHit
	BannerDefended
	BannerFlooding
	BannerDiveBombPenetration
	BannerRocketPenetration
	BannerRocketNonPenetration
	BannerRocketTorpedoProtectionHit
	BannerShotDownByAircraft
)

type BannerPacket struct {
	Banner Banner
}

type DamageDealt struct {
	Source uint32
	Amount float32
}

type DamageReceivedPacket struct {
	Recipient uint32
	Damage    []DamageDealt
}

//go:generate stringer --type DeathCause
type DeathCause uint8

const (
	DeathCauseSecondaries DeathCause = iota
	DeathCauseArtillery
	DeathCauseFire
	DeathCauseFlooding
	DeathCauseTorpedo
	DeathCauseDiveBomber
	DeathCauseAerialRocket
	DeathCauseAerialTorpedo
	DeathCauseDetonation
	DeathCauseRamming
)

type ShipDestroyedPacket struct {
	Victim uint32
	Killer uint32
	Cause  DeathCause
	// RawCause is the wire value Cause was mapped from.
	RawCause uint32
}

//go:generate stringer --type VoiceLineKind
type VoiceLineKind uint8

const (
	VoiceLineIntelRequired VoiceLineKind = iota
	VoiceLineFairWinds
	VoiceLineWilco
	VoiceLineNegative
	VoiceLineWellDone
	VoiceLineCurses
	VoiceLineUsingRadar
	VoiceLineUsingHydroSearch
	VoiceLineDefendTheBase
	VoiceLineSetSmokeScreen
	VoiceLineProvideAntiAircraft
	VoiceLineRequestingSupport
	VoiceLineRetreat
	VoiceLineAttentionToSquare
	VoiceLineConcentrateFire
)

type VoiceLinePacket struct {
	Sender   uint32
	IsGlobal bool
	Kind     VoiceLineKind
	// Target is the subject entity for ConcentrateFire and Retreat, zero
	// otherwise.
	Target uint32
	// Square holds the zero-indexed (letter, number) grid reference for
	// AttentionToSquare. F2 is {5, 1}.
	Square [2]uint32
}
