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

// Command streamer uploads a replay to a streamserver as if a battle were
// in progress: the meta control message first, then small compressed
// fragments paced in time, then a game-over control message.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lkolbly/wows-replays-sub000/replay"
)

// replayMeta is the upload announcement of the streaming protocol.
type replayMeta struct {
	Username string `json:"username"`
	Version  string `json:"version"`
}

func main() {
	server := flag.String("server", "ws://127.0.0.1:3000", "streamserver base URL")
	chunkSize := flag.Int("chunk", 870, "fragment size in bytes")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between fragments")
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] REPLAY\n", os.Args[0])
		os.Exit(2)
	}

	rep, err := replay.FromFile(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("opening replay")
	}
	log.Info().
		Str("player", rep.Meta.PlayerName).
		Str("version", rep.Meta.ClientVersionFromExe).
		Int("bytes", len(rep.PacketData)).
		Msg("uploading")

	conn, _, err := websocket.DefaultDialer.Dial(*server+"/upload", nil)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting")
	}
	defer conn.Close()

	meta, err := json.Marshal(map[string]replayMeta{"ReplayMeta": {
		Username: rep.Meta.PlayerName,
		Version:  rep.Meta.ClientVersionFromExe,
	}})
	if err != nil {
		log.Fatal().Err(err).Msg("encoding meta")
	}
	if err := conn.WriteMessage(websocket.TextMessage, meta); err != nil {
		log.Fatal().Err(err).Msg("sending meta")
	}

	for offset := 0; offset < len(rep.PacketData); offset += *chunkSize {
		end := offset + *chunkSize
		if end > len(rep.PacketData) {
			end = len(rep.PacketData)
		}
		fragment, err := packFragment(rep.PacketData[offset:end])
		if err != nil {
			log.Fatal().Err(err).Msg("compressing fragment")
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, fragment); err != nil {
			log.Fatal().Err(err).Msg("sending fragment")
		}
		time.Sleep(*interval)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`"GameOver"`)); err != nil {
		log.Fatal().Err(err).Msg("sending game over")
	}
	log.Info().Msg("done")
}

// packFragment frames one fragment for the wire: the uncompressed size as a
// little-endian word, then the lz4 block.
func packFragment(data []byte) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(out, uint32(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, out[4:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible, store raw. Size zero in the header marks it.
		binary.LittleEndian.PutUint32(out, 0)
		return append(out[:4], data...), nil
	}
	return out[:4+n], nil
}
