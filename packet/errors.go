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
	"errors"
	"fmt"

	"github.com/lkolbly/wows-replays-sub000/rpc"
)

// ErrNeedMoreData is returned by Parser.Next when the buffered bytes do not
// yet hold a complete packet. Feed more data and call Next again.
var ErrNeedMoreData = errors.New("need more data")

// TruncatedError is the fatal form of a short read: the stream ended inside
// a packet and no more data is coming.
type TruncatedError struct {
	// Offset is the byte position of the incomplete packet's header within
	// the full stream.
	Offset int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("stream truncated mid-packet at offset %d", e.Offset)
}

// UnsupportedVersionError aborts parsing: without a dispatch table for the
// client build, entity payloads cannot be interpreted and skipping them
// silently would produce a misleadingly empty stream.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("no dispatch table for client build %d", e.Version)
}

// UnknownEntityError reports a packet referencing an entity id never
// announced by a create packet.
type UnknownEntityError struct {
	EntityID uint32
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %d", e.EntityID)
}

// RPCValueError reports a method argument whose bytes did not decode as the
// schema's type. Raw keeps the argument bytes onward for inspection.
type RPCValueError struct {
	Method   string
	ArgIndex int
	ArgType  rpc.ArgType
	Raw      []byte
	Err      error
}

func (e *RPCValueError) Error() string {
	return fmt.Sprintf("method %s argument %d: %v", e.Method, e.ArgIndex, e.Err)
}

func (e *RPCValueError) Unwrap() error { return e.Err }

// PropertyIndexError reports an entity property or state packet addressing
// a property index outside the entity's client-visible table.
type PropertyIndexError struct {
	EntityID uint32
	Index    uint32
}

func (e *PropertyIndexError) Error() string {
	return fmt.Sprintf("entity %d property index %d out of range", e.EntityID, e.Index)
}

// PatchTypeError reports a nested property update whose path descended into
// a value that is not a container, or whose leaf operation does not fit the
// container it landed on.
type PatchTypeError struct {
	EntityID uint32
	Detail   string
}

func (e *PatchTypeError) Error() string {
	return fmt.Sprintf("entity %d nested property update: %s", e.EntityID, e.Detail)
}
