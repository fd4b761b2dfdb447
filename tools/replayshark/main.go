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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lkolbly/wows-replays-sub000/packet"
	"github.com/lkolbly/wows-replays-sub000/replay"
	"github.com/lkolbly/wows-replays-sub000/rpc"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "replayshark",
		Short:         "Parses and processes World of Warships replay files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		dumpCmd(),
		chatCmd(),
		summaryCmd(),
		surveyCmd(),
	)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// openReplay opens the container and builds the parser that matches it:
// schema-driven when a scripts directory is given, dispatch-table driven
// from the recording's build number otherwise. forceUnknown selects the
// wildcard table that passes every entity RPC through undecoded.
func openReplay(path, scriptsDir string, forceUnknown bool) (*replay.Replay, *packet.Parser, error) {
	rep, err := replay.FromFile(path)
	if err != nil {
		return nil, nil, err
	}
	if scriptsDir != "" {
		specs, err := rpc.ParseScripts(scriptsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("loading entity definitions: %w", err)
		}
		return rep, packet.NewParser(specs), nil
	}
	if forceUnknown {
		return rep, packet.NewLegacyParser(0), nil
	}
	build, err := rep.Meta.BuildNumber()
	if err != nil {
		return nil, nil, err
	}
	return rep, packet.NewLegacyParser(build), nil
}

// dumpRecord is the JSON shape of one dumped packet.
type dumpRecord struct {
	Clock   float32 `json:"clock"`
	Type    uint32  `json:"packet_type"`
	Offset  int     `json:"offset"`
	Payload string  `json:"payload"`
	Data    any     `json:"data,omitempty"`
	Error   string  `json:"error,omitempty"`
	RawSize int     `json:"raw_size"`
}

func payloadName(v any) string {
	if v == nil {
		return "Unknown"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.TrimSuffix(t.Name(), "Packet")
}

func dumpCmd() *cobra.Command {
	var (
		scriptsDir      string
		noParseEntity   bool
		noMeta          bool
		xxd             bool
		filterSuper     int64
		filterSub       int64
		excludeSubtypes string
		timestamps      string
		timestampOffset uint32
		speed           uint32
	)

	cmd := &cobra.Command{
		Use:   "dump REPLAY",
		Short: "Dump the packets to console",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, parser, err := openReplay(args[0], scriptsDir, noParseEntity)
			if err != nil {
				return err
			}
			if !noMeta {
				fmt.Println(string(rep.RawMeta))
			}
			marks, err := parseTimestamps(timestamps, timestampOffset)
			if err != nil {
				return err
			}
			excluded, err := parseExcludes(excludeSubtypes)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			start := time.Now()
			return parser.ParsePackets(rep.PacketData, packet.PacketProcessorFunc(func(pkt *packet.Packet) {
				for len(marks) > 0 && marks[0] < uint32(pkt.Clock) {
					fmt.Printf("{\"clock\":%v,\"timestamp\":1}\n", pkt.Clock)
					marks = marks[1:]
				}
				if !passesFilter(pkt, filterSuper, filterSub) || excluded.matches(pkt) {
					return
				}
				if speed > 0 {
					elapsed := float32(time.Since(start).Seconds()) * float32(speed)
					if pkt.Clock > elapsed {
						time.Sleep(time.Duration(float64(pkt.Clock-elapsed) * float64(time.Second)))
					}
				}
				if xxd {
					fmt.Printf("clock=%v type=0x%x\n", pkt.Clock, uint32(pkt.Type))
					fmt.Print(hex.Dump(pkt.Raw))
					if pkt.Payload != nil {
						fmt.Println("Deserialized as:")
						fmt.Printf("%+v\n", pkt.Payload)
					}
					fmt.Println()
					return
				}
				rec := dumpRecord{
					Clock:   pkt.Clock,
					Type:    uint32(pkt.Type),
					Offset:  pkt.Offset,
					Payload: payloadName(pkt.Payload),
					Data:    pkt.Payload,
					RawSize: len(pkt.Raw),
				}
				if pkt.ParseError != nil {
					rec.Error = pkt.ParseError.Error()
				}
				if err := enc.Encode(rec); err != nil {
					log.Warn().Err(err).Msg("encoding packet")
				}
			}))
		},
	}

	cmd.Flags().StringVar(&scriptsDir, "scripts", "", "Directory with entities.xml and entity definitions")
	cmd.Flags().BoolVar(&noParseEntity, "no-parse-entity", false, "Parse all entity packets as unknown")
	cmd.Flags().BoolVar(&noMeta, "no-meta", false, "Don't output the metadata")
	cmd.Flags().BoolVar(&xxd, "xxd", false, "Print out the packets as xxd-formatted binary dumps")
	cmd.Flags().Int64Var(&filterSuper, "filter-super", -1, "Filter packets to be the given entity supertype")
	cmd.Flags().Int64Var(&filterSub, "filter-sub", -1, "Filter packets to be the given entity subtype")
	cmd.Flags().StringVar(&excludeSubtypes, "exclude-subtypes", "", "Comma-delimited list of type or supertype:subtype to exclude")
	cmd.Flags().StringVar(&timestamps, "timestamps", "", "Comma-delimited list of mm:ss timestamps to highlight in the output")
	cmd.Flags().Uint32Var(&timestampOffset, "timestamp-offset", 0, "Number of seconds to subtract from the timestamps")
	cmd.Flags().Uint32Var(&speed, "speed", 0, "Play back the file at the given speed multiplier")

	return cmd
}

func parseTimestamps(s string, offset uint32) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var marks []uint32
	for _, part := range strings.Split(s, ",") {
		mmss := strings.Split(part, ":")
		if len(mmss) != 2 {
			return nil, fmt.Errorf("malformed timestamp %q, want mm:ss", part)
		}
		m, err := strconv.ParseUint(mmss[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed timestamp %q: %w", part, err)
		}
		sec, err := strconv.ParseUint(mmss[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed timestamp %q: %w", part, err)
		}
		total := uint32(m*60 + sec)
		if total < offset {
			return nil, fmt.Errorf("timestamp %q is before the offset", part)
		}
		marks = append(marks, total-offset)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i] < marks[j] })
	return marks, nil
}

// packetIdent is one --exclude-subtypes entry: a bare packet type, or a
// supertype:subtype pair matching entity RPCs.
type packetIdent struct {
	packetType uint32
	subtype    uint32
	hasSubtype bool
}

type excludeSet []packetIdent

func parseExcludes(s string) (excludeSet, error) {
	if s == "" {
		return nil, nil
	}
	var set excludeSet
	for _, part := range strings.Split(s, ",") {
		if sup, sub, ok := strings.Cut(part, ":"); ok {
			supertype, err := strconv.ParseUint(sup, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("malformed supertype in %q: %w", part, err)
			}
			subtype, err := strconv.ParseUint(sub, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("malformed subtype in %q: %w", part, err)
			}
			set = append(set, packetIdent{packetType: uint32(supertype), subtype: uint32(subtype), hasSubtype: true})
			continue
		}
		packetType, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed packet type %q: %w", part, err)
		}
		set = append(set, packetIdent{packetType: uint32(packetType)})
	}
	return set, nil
}

func (set excludeSet) matches(pkt *packet.Packet) bool {
	for _, id := range set {
		if id.hasSubtype {
			if rpcPkt, ok := pkt.Payload.(*packet.EntityRPCPacket); ok &&
				rpcPkt.Supertype == id.packetType && rpcPkt.Subtype == id.subtype {
				return true
			}
			continue
		}
		if uint32(pkt.Type) == id.packetType {
			return true
		}
	}
	return false
}

// passesFilter applies --filter-super/--filter-sub. The filters only ever
// match undecoded entity RPCs; when either is set everything else is
// dropped.
func passesFilter(pkt *packet.Packet, filterSuper, filterSub int64) bool {
	if filterSuper < 0 && filterSub < 0 {
		return true
	}
	rpcPkt, ok := pkt.Payload.(*packet.EntityRPCPacket)
	if !ok {
		return false
	}
	if filterSuper >= 0 && int64(rpcPkt.Supertype) != filterSuper {
		return false
	}
	if filterSub >= 0 && int64(rpcPkt.Subtype) != filterSub {
		return false
	}
	return true
}

func chatCmd() *cobra.Command {
	var scriptsDir string

	cmd := &cobra.Command{
		Use:   "chat REPLAY",
		Short: "Print the chat log of the given game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, parser, err := openReplay(args[0], scriptsDir, false)
			if err != nil {
				return err
			}
			return parser.ParsePackets(rep.PacketData, packet.PacketProcessorFunc(func(pkt *packet.Packet) {
				switch p := pkt.Payload.(type) {
				case *packet.ChatPacket:
					fmt.Printf("%s: %d: %s %s\n", gameTime(pkt.Clock), p.SenderID, p.Audience, p.Message)
				case *packet.VoiceLinePacket:
					audience := "team"
					if p.IsGlobal {
						audience = "global"
					}
					fmt.Printf("%s: %d: voiceline %s %s\n", gameTime(pkt.Clock), p.Sender, audience, voiceLineText(p))
				}
			}))
		},
	}

	cmd.Flags().StringVar(&scriptsDir, "scripts", "", "Directory with entities.xml and entity definitions")

	return cmd
}

func gameTime(clock float32) string {
	total := int(clock)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func voiceLineText(p *packet.VoiceLinePacket) string {
	switch p.Kind {
	case packet.VoiceLineAttentionToSquare:
		// Grid letters run A..J, numbers 1..10.
		return fmt.Sprintf("%s (%c%d)", p.Kind, 'A'+rune(p.Square[0]), p.Square[1]+1)
	case packet.VoiceLineConcentrateFire, packet.VoiceLineRetreat:
		if p.Target != 0 {
			return fmt.Sprintf("%s (target %d)", p.Kind, p.Target)
		}
		return p.Kind.String()
	default:
		return p.Kind.String()
	}
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary REPLAY",
		Short: "Generate summary statistics of the game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, parser, err := openReplay(args[0], "", false)
			if err != nil {
				return err
			}
			meta := &rep.Meta
			fmt.Printf("Username: %s\n", meta.PlayerName)
			fmt.Printf("Date/time: %s\n", meta.DateTime)
			fmt.Printf("Map: %s\n", meta.MapDisplayName)
			fmt.Printf("Vehicle: %s\n", meta.PlayerVehicle)
			fmt.Printf("Game mode: %s %s\n", meta.Name, meta.GameLogic)
			fmt.Printf("Game version: %s\n", meta.ClientVersionFromExe)
			fmt.Println()

			banners := map[packet.Banner]int{}
			var damageReceived float32
			var destroyed []*packet.ShipDestroyedPacket
			err = parser.ParsePackets(rep.PacketData, packet.PacketProcessorFunc(func(pkt *packet.Packet) {
				switch p := pkt.Payload.(type) {
				case *packet.BannerPacket:
					banners[p.Banner]++
				case *packet.DamageReceivedPacket:
					for _, d := range p.Damage {
						damageReceived += d.Amount
					}
				case *packet.ShipDestroyedPacket:
					destroyed = append(destroyed, p)
				}
			}))
			if err != nil {
				return err
			}
			if len(banners) > 0 {
				ordered := make([]packet.Banner, 0, len(banners))
				for b := range banners {
					ordered = append(ordered, b)
				}
				sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
				fmt.Println("Banners:")
				for _, b := range ordered {
					fmt.Printf("  %s: %d\n", b, banners[b])
				}
			}
			if damageReceived > 0 {
				fmt.Printf("Damage received: %.0f\n", damageReceived)
			}
			for _, d := range destroyed {
				fmt.Printf("Ship %d destroyed by %d (%s)\n", d.Victim, d.Killer, d.Cause)
			}
			return nil
		},
	}
	return cmd
}

func surveyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "survey REPLAYS...",
		Short: "Runs the parser against a directory of replays to validate it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var total, successes, versionFailures, otherFailures int
			for _, root := range args {
				err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
					if err != nil {
						return err
					}
					if d.IsDir() {
						return nil
					}
					total++
					if err := surveyOne(path); err != nil {
						var unsupported *packet.UnsupportedVersionError
						if errors.As(err, &unsupported) {
							versionFailures++
							fmt.Printf("%s: unsupported version %d\n", d.Name(), unsupported.Version)
						} else {
							otherFailures++
							fmt.Printf("%s: %v\n", d.Name(), err)
						}
						return nil
					}
					successes++
					return nil
				})
				if err != nil {
					return err
				}
			}
			fmt.Println()
			fmt.Printf("Found %d replay files\n", total)
			if total > 0 {
				fmt.Printf("- %d (%.0f%%) were parsed\n", successes, 100*float64(successes)/float64(total))
				fmt.Printf("- %d (%.0f%%) had parse errors\n", otherFailures, 100*float64(otherFailures)/float64(total))
				fmt.Printf("- %d (%.0f%%) are an unrecognized version\n", versionFailures, 100*float64(versionFailures)/float64(total))
			}
			return nil
		},
	}
	return cmd
}

func surveyOne(path string) error {
	rep, parser, err := openReplay(path, "", false)
	if err != nil {
		return err
	}
	var malformed, count int
	if err := parser.ParsePackets(rep.PacketData, packet.PacketProcessorFunc(func(pkt *packet.Packet) {
		count++
		if pkt.ParseError != nil {
			malformed++
		}
	})); err != nil {
		return err
	}
	if malformed > 0 {
		return fmt.Errorf("failed to parse %d of %d packets", malformed, count)
	}
	return nil
}
