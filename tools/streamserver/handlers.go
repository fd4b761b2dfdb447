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

package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"

	"github.com/lkolbly/wows-replays-sub000/broker"
	"github.com/lkolbly/wows-replays-sub000/packet"
)

type server struct {
	broker  *broker.Broker
	index   *replayIndex
	metrics *metrics
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Uploads come from the game client tooling, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// replayMeta is the upload announcement: who is playing and on which
// client version.
type replayMeta struct {
	Username string `json:"username"`
	Version  string `json:"version"`
}

// controlPacket is a text message on the upload socket. The encoding is
// externally tagged: either {"ReplayMeta":{...}} or the bare string
// "GameOver".
type controlPacket struct {
	ReplayMeta *replayMeta `json:"ReplayMeta"`
}

func parseControl(msg []byte) (*controlPacket, bool, error) {
	if string(bytes.TrimSpace(msg)) == `"GameOver"` {
		return nil, true, nil
	}
	var ctl controlPacket
	if err := json.Unmarshal(msg, &ctl); err != nil {
		return nil, false, err
	}
	if ctl.ReplayMeta == nil {
		return nil, false, fmt.Errorf("unrecognized control message %q", msg)
	}
	return &ctl, false, nil
}

// buildFromVersion pulls the build number out of a comma-separated client
// version like "0,10,3,3747819".
func buildFromVersion(version string) (uint32, error) {
	parts := strings.Split(version, ",")
	if len(parts) != 4 {
		return 0, fmt.Errorf("malformed version %q", version)
	}
	build, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed build in %q: %w", version, err)
	}
	return uint32(build), nil
}

// upload is the per-connection state of one active uploader.
type upload struct {
	publisher *broker.Publisher
	parser    *packet.Parser
	meta      *replayMeta
	started   time.Time
	bytes     int
	packets   int
	malformed int
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("upload upgrade failed")
		return
	}
	defer conn.Close()

	up := &upload{publisher: s.broker.Publish()}
	defer up.publisher.Close()
	s.metrics.uploadsActive.Inc()
	defer s.metrics.uploadsActive.Dec()

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Err(err).Msg("uploader disconnected")
			}
			return
		}
		switch kind {
		case websocket.TextMessage:
			if err := s.handleControl(up, msg); err != nil {
				log.Warn().Err(err).Msg("bad control message")
			}
		case websocket.BinaryMessage:
			if err := s.handleFragment(up, msg); err != nil {
				log.Warn().Err(err).Msg("bad fragment")
			}
		default:
			log.Warn().Int("kind", kind).Msg("unrecognized upload message")
		}
	}
}

func (s *server) handleControl(up *upload, msg []byte) error {
	ctl, gameOver, err := parseControl(msg)
	if err != nil {
		return err
	}
	if gameOver {
		if up.meta == nil {
			return errors.New("game over before replay meta")
		}
		log.Info().Str("player", up.meta.Username).Int("bytes", up.bytes).Int("packets", up.packets).Msg("game over")
		if err := s.index.record(up.meta.Username, up.meta.Version, up.started, up.bytes, up.packets, up.malformed); err != nil {
			log.Warn().Err(err).Msg("recording finished replay")
		}
		s.metrics.uploadsFinished.Inc()
		return nil
	}

	if up.meta != nil {
		return fmt.Errorf("duplicate replay meta from %q", ctl.ReplayMeta.Username)
	}
	if err := up.publisher.SetChannel(ctl.ReplayMeta.Username); err != nil {
		return fmt.Errorf("claiming channel %q: %w", ctl.ReplayMeta.Username, err)
	}
	build, err := buildFromVersion(ctl.ReplayMeta.Version)
	if err != nil {
		// Still relay the stream, just don't decode it.
		log.Warn().Err(err).Msg("cannot decode this upload")
		build = 0
	}
	up.meta = ctl.ReplayMeta
	up.parser = packet.NewLegacyParser(build)
	up.started = time.Now()
	log.Info().Str("player", up.meta.Username).Str("version", up.meta.Version).Msg("upload started")
	return nil
}

func (s *server) handleFragment(up *upload, msg []byte) error {
	if up.meta == nil {
		return errors.New("fragment before replay meta")
	}
	data, err := unpackFragment(msg)
	if err != nil {
		return err
	}
	up.publisher.Upload(data)
	up.bytes += len(data)
	s.metrics.fragments.Inc()
	s.metrics.bytesRelayed.Add(float64(len(data)))

	// Decode incrementally so the battle can be followed from the logs.
	up.parser.Feed(data)
	for {
		pkt, err := up.parser.Next()
		if errors.Is(err, packet.ErrNeedMoreData) {
			return nil
		}
		if err != nil {
			// Wrong dispatch table; keep relaying, stop decoding.
			up.parser = packet.NewLegacyParser(0)
			return err
		}
		up.packets++
		s.metrics.packetsDecoded.Inc()
		if pkt.ParseError != nil {
			up.malformed++
			s.metrics.decodeErrors.Inc()
			continue
		}
		if chat, ok := pkt.Payload.(*packet.ChatPacket); ok {
			log.Info().
				Str("player", up.meta.Username).
				Uint32("sender", chat.SenderID).
				Str("audience", chat.Audience).
				Str("message", chat.Message).
				Msg("chat")
		}
	}
}

// unpackFragment undoes the wire framing: little-endian uncompressed size,
// then an lz4 block. Size zero means the fragment is stored raw.
func unpackFragment(msg []byte) ([]byte, error) {
	if len(msg) < 4 {
		return nil, fmt.Errorf("fragment of %d bytes is too short", len(msg))
	}
	size := binary.LittleEndian.Uint32(msg)
	if size == 0 {
		return msg[4:], nil
	}
	const maxFragment = 1 << 20
	if size > maxFragment {
		return nil, fmt.Errorf("fragment declares %d decompressed bytes", size)
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(msg[4:], out)
	if err != nil {
		return nil, fmt.Errorf("decompressing fragment: %w", err)
	}
	return out[:n], nil
}

func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("subscribe upgrade failed")
		return
	}
	defer conn.Close()

	// The first text message names the channel to watch.
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	if kind != websocket.TextMessage {
		log.Warn().Int("kind", kind).Msg("unexpected first message on subscribe connection")
		return
	}
	channel := string(msg)

	mailbox := s.broker.Subscribe(channel)
	defer mailbox.Close()
	s.metrics.subscribers.Inc()
	defer s.metrics.subscribers.Dec()
	log.Info().Str("channel", channel).Msg("subscriber joined")

	// Reads only ever yield close/error; they end the subscription.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-mailbox.C():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Info().Str("channel", channel).Msg("subscriber disconnected")
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *server) handleReplays(w http.ResponseWriter, r *http.Request) {
	rows, err := s.index.recent(r.Context(), 50)
	if err != nil {
		log.Warn().Err(err).Msg("querying replay index")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		log.Warn().Err(err).Msg("encoding replay index")
	}
}
