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

// Package replay opens recording container files: a JSON meta header plus a
// Blowfish-encrypted, zlib-compressed packet stream.
package replay

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/blowfish"
)

// transportKey decrypts the packet stream. It is baked into the client and
// shared by every recording.
var transportKey = []byte{
	0x29, 0xB7, 0xC9, 0x09, 0x38, 0x3F, 0x84, 0x88,
	0xFA, 0x98, 0xEC, 0x4E, 0x13, 0x19, 0x79, 0xFB,
}

// Replay is an opened recording.
type Replay struct {
	Meta    Meta
	RawMeta []byte
	// ExtraBlocks holds the container blocks between the meta and the
	// packet stream, undecoded. Newer clients use them for post-battle
	// data.
	ExtraBlocks [][]byte
	// PacketData is the decrypted, decompressed packet stream.
	PacketData []byte
}

// FromFile opens and decodes a recording from disk.
func FromFile(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromBytes(data)
}

// FromBytes decodes a recording container. The layout is a magic word, a
// block count, a JSON meta block, count-1 extra blocks, two size words and
// then the encrypted compressed packet stream.
func FromBytes(data []byte) (*Replay, error) {
	r := bytes.NewReader(data)
	var magic, blockCount uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &blockCount); err != nil {
		return nil, fmt.Errorf("reading block count: %w", err)
	}
	if blockCount < 1 {
		return nil, fmt.Errorf("container declares %d blocks", blockCount)
	}
	rawMeta, err := readBlock(r)
	if err != nil {
		return nil, fmt.Errorf("reading meta block: %w", err)
	}
	rep := &Replay{RawMeta: rawMeta}
	if err := json.Unmarshal(rawMeta, &rep.Meta); err != nil {
		return nil, fmt.Errorf("decoding meta: %w", err)
	}
	for i := uint32(0); i < blockCount-1; i++ {
		block, err := readBlock(r)
		if err != nil {
			return nil, fmt.Errorf("reading block %d: %w", i+1, err)
		}
		rep.ExtraBlocks = append(rep.ExtraBlocks, block)
	}
	var decompressedSize, compressedSize uint32
	if err := binary.Read(r, binary.LittleEndian, &decompressedSize); err != nil {
		return nil, fmt.Errorf("reading decompressed size: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &compressedSize); err != nil {
		return nil, fmt.Errorf("reading compressed size: %w", err)
	}
	encrypted := make([]byte, r.Len())
	r.Read(encrypted)
	rep.PacketData, err = decodeStream(encrypted)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func readBlock(r *bytes.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	block := make([]byte, size)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}
	return block, nil
}

// decodeStream undoes the client's stream encoding: Blowfish in a homegrown
// chaining mode where each decrypted block is XORed with the previous
// plaintext block, then zlib.
func decodeStream(encrypted []byte) ([]byte, error) {
	cipher, err := blowfish.NewCipher(transportKey)
	if err != nil {
		return nil, err
	}
	decrypted := make([]byte, len(encrypted))
	var previous [blowfish.BlockSize]byte
	for off := 0; off+blowfish.BlockSize <= len(encrypted); off += blowfish.BlockSize {
		block := decrypted[off : off+blowfish.BlockSize]
		cipher.Decrypt(block, encrypted[off:off+blowfish.BlockSize])
		for j := range block {
			block[j] ^= previous[j]
			previous[j] = block[j]
		}
	}
	zr, err := zlib.NewReader(bytes.NewReader(decrypted))
	if err != nil {
		return nil, fmt.Errorf("opening packet stream: %w", err)
	}
	defer zr.Close()
	packets, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing packet stream: %w", err)
	}
	return packets, nil
}
