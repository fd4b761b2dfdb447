package replay

import (
	"fmt"
	"strconv"
	"strings"
)

// VehicleInfo is one entry of the meta's vehicle roster.
type VehicleInfo struct {
	ShipID   uint64 `json:"shipId"`
	Relation uint32 `json:"relation"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
}

// Meta is the JSON header of a recording. Field names follow the client's
// own spelling.
type Meta struct {
	MatchGroup           string              `json:"matchGroup"`
	GameMode             uint32              `json:"gameMode"`
	GameType             string              `json:"gameType"`
	ClientVersionFromExe string              `json:"clientVersionFromExe"`
	ScenarioUICategoryID uint32              `json:"scenarioUiCategoryId"`
	MapDisplayName       string              `json:"mapDisplayName"`
	MapID                uint32              `json:"mapId"`
	ClientVersionFromXML string              `json:"clientVersionFromXml"`
	WeatherParams        map[string][]string `json:"weatherParams"`
	Duration             uint32              `json:"duration"`
	GameLogic            string              `json:"gameLogic"`
	Name                 string              `json:"name"`
	Scenario             string              `json:"scenario"`
	PlayerID             uint32              `json:"playerID"`
	Vehicles             []VehicleInfo       `json:"vehicles"`
	PlayersPerTeam       uint32              `json:"playersPerTeam"`
	DateTime             string              `json:"dateTime"`
	MapName              string              `json:"mapName"`
	PlayerName           string              `json:"playerName"`
	ScenarioConfigID     uint32              `json:"scenarioConfigId"`
	TeamsCount           uint32              `json:"teamsCount"`
	Logic                string              `json:"logic"`
	PlayerVehicle        string              `json:"playerVehicle"`
	BattleDuration       uint32              `json:"battleDuration"`
}

// Version is the dotted client version, without the build number.
func (m *Meta) Version() (string, error) {
	parts := strings.Split(m.ClientVersionFromExe, ",")
	if len(parts) != 4 {
		return "", fmt.Errorf("malformed client version %q", m.ClientVersionFromExe)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts[:3], "."), nil
}

// BuildNumber extracts the client build from the exe version string, e.g.
// "0,9,4,2571457" yields 2571457. The build selects the entity RPC dispatch
// table for recordings without entity definitions.
func (m *Meta) BuildNumber() (uint32, error) {
	parts := strings.Split(m.ClientVersionFromExe, ",")
	if len(parts) != 4 {
		return 0, fmt.Errorf("malformed client version %q", m.ClientVersionFromExe)
	}
	build, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed build number in %q: %w", m.ClientVersionFromExe, err)
	}
	return uint32(build), nil
}
