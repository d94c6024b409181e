package score

import (
	"errors"
	"fmt"
	"strings"
)

// GameType selects singles or doubles serve rotation.
type GameType string

const (
	Singles GameType = "singles"
	Doubles GameType = "doubles"
)

const DefaultVictoryRule uint = 11

var (
	ErrUnsupportedGameType = errors.New("unsupported game type")
	ErrInvalidScoreFormat  = errors.New("invalid score format")
	ErrInvalidState        = errors.New("invalid engine state")
)

// ParseGameType accepts "singles"/"doubles" and the short forms "s"/"d".
func ParseGameType(s string) (GameType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "singles", "single", "s":
		return Singles, nil
	case "doubles", "double", "d":
		return Doubles, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGameType, s)
	}
}

func (g GameType) valid() bool { return g == Singles || g == Doubles }

// Players holds the roster per fixed team. Team1 is team index 0.
type Players struct {
	Team1 []string `json:"team1"`
	Team2 []string `json:"team2"`
}

func (p Players) team(idx int) []string {
	if idx == 0 {
		return p.Team1
	}
	return p.Team2
}

func (p Players) clone() Players {
	return Players{
		Team1: append([]string(nil), p.Team1...),
		Team2: append([]string(nil), p.Team2...),
	}
}

// ServerInfo is derived from engine state on every call.
type ServerInfo struct {
	ServingTeam  int    `json:"serving_team"`
	ServerNumber int    `json:"server_number"`
	PlayerName   string `json:"player_name"`
}

// Snapshot is a full capture of the mutable engine state.
type Snapshot struct {
	Team0Score        uint `json:"team0_score"`
	Team1Score        uint `json:"team1_score"`
	ServingTeam       int  `json:"serving_team"`
	ServerNumber      int  `json:"server_number"`
	FirstServePending bool `json:"first_serve_pending"`
}

// State is the serializable form of an Engine.
type State struct {
	GameType    GameType `json:"game_type"`
	VictoryRule uint     `json:"victory_rule"`
	Players     Players  `json:"player_names"`
	Snapshot
}
