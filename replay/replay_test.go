package replay

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/crypto/blowfish"
)

// encodeStream is the inverse of the container's stream transform, used to
// build fixtures: zlib, pad to the cipher block size, then Blowfish with
// the XOR chain over plaintext blocks.
func encodeStream(t *testing.T, packets []byte) []byte {
	t.Helper()
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(packets); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	plain := compressed.Bytes()
	for len(plain)%blowfish.BlockSize != 0 {
		plain = append(plain, 0)
	}
	cipher, err := blowfish.NewCipher(transportKey)
	if err != nil {
		t.Fatal(err)
	}
	encrypted := make([]byte, len(plain))
	var prev [blowfish.BlockSize]byte
	for off := 0; off < len(plain); off += blowfish.BlockSize {
		var chained [blowfish.BlockSize]byte
		for j := 0; j < blowfish.BlockSize; j++ {
			chained[j] = plain[off+j] ^ prev[j]
			prev[j] = plain[off+j]
		}
		cipher.Encrypt(encrypted[off:off+blowfish.BlockSize], chained[:])
	}
	return encrypted
}

func buildContainer(t *testing.T, meta string, extra [][]byte, packets []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0x12323411))
	binary.Write(&buf, binary.LittleEndian, uint32(1+len(extra)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(meta)))
	buf.WriteString(meta)
	for _, block := range extra {
		binary.Write(&buf, binary.LittleEndian, uint32(len(block)))
		buf.Write(block)
	}
	encrypted := encodeStream(t, packets)
	binary.Write(&buf, binary.LittleEndian, uint32(len(packets)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(encrypted)))
	buf.Write(encrypted)
	return buf.Bytes()
}

const testMeta = `{
	"matchGroup": "pvp",
	"clientVersionFromExe": "0,9,4,2571457",
	"playerName": "somebody",
	"mapName": "spaces/17_NA_fault_line",
	"vehicles": [
		{"shipId": 4181669584, "relation": 0, "id": 531463715, "name": "somebody"}
	]
}`

func TestFromBytes(t *testing.T) {
	packets := []byte("pretend packet stream with enough bytes to compress")
	data := buildContainer(t, testMeta, [][]byte{{0xaa, 0xbb}}, packets)

	rep, err := FromBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Meta.PlayerName != "somebody" {
		t.Errorf("PlayerName = %q", rep.Meta.PlayerName)
	}
	if rep.Meta.MatchGroup != "pvp" {
		t.Errorf("MatchGroup = %q", rep.Meta.MatchGroup)
	}
	if len(rep.ExtraBlocks) != 1 || !bytes.Equal(rep.ExtraBlocks[0], []byte{0xaa, 0xbb}) {
		t.Errorf("ExtraBlocks = %v", rep.ExtraBlocks)
	}
	if !bytes.Equal(rep.PacketData, packets) {
		t.Errorf("PacketData = %q", rep.PacketData)
	}
	if len(rep.Meta.Vehicles) != 1 || rep.Meta.Vehicles[0].ShipID != 4181669584 {
		t.Errorf("Vehicles = %+v", rep.Meta.Vehicles)
	}
}

func TestFromBytesBadMeta(t *testing.T) {
	data := buildContainer(t, "not json", nil, []byte("x"))
	if _, err := FromBytes(data); err == nil {
		t.Error("expected meta decode error")
	}
}

func TestBuildNumber(t *testing.T) {
	m := Meta{ClientVersionFromExe: "0,9,4,2571457"}
	build, err := m.BuildNumber()
	if err != nil {
		t.Fatal(err)
	}
	if build != 2571457 {
		t.Errorf("build = %d", build)
	}
	version, err := m.Version()
	if err != nil {
		t.Fatal(err)
	}
	if version != "0.9.4" {
		t.Errorf("version = %q", version)
	}

	m.ClientVersionFromExe = "0.9.4"
	if _, err := m.BuildNumber(); err == nil {
		t.Error("expected error for malformed version")
	}
}
