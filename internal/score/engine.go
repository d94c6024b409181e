package score

import (
	"fmt"
	"strconv"
	"strings"
)

// Engine applies pickleball side-out scoring rules. It performs no I/O and keeps
// no history; callers needing undo take snapshots.
//
// Engine is not safe for concurrent use.
type Engine struct {
	gameType    GameType
	victoryRule uint
	players     Players

	scores            [2]uint
	servingTeam       int
	serverNumber      int
	firstServePending bool
}

// New creates an engine at 0-0 with team index 0 serving. Doubles games open
// on server 2 because the first serving side only gets one server before the
// first side-out.
func New(gameType GameType, victoryRule uint, players Players) (*Engine, error) {
	if !gameType.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGameType, gameType)
	}
	if victoryRule == 0 {
		victoryRule = DefaultVictoryRule
	}
	e := &Engine{
		gameType:     gameType,
		victoryRule:  victoryRule,
		players:      players.clone(),
		serverNumber: 1,
	}
	if gameType == Doubles {
		e.serverNumber = 2
		e.firstServePending = true
	}
	return e, nil
}

func (e *Engine) GameType() GameType { return e.gameType }
func (e *Engine) VictoryRule() uint  { return e.victoryRule }
func (e *Engine) Players() Players   { return e.players.clone() }

// Scores returns the fixed-team scores (team index 0, team index 1).
func (e *Engine) Scores() (uint, uint) { return e.scores[0], e.scores[1] }

func (e *Engine) ServingTeam() int  { return e.servingTeam }
func (e *Engine) ServerNumber() int { return e.serverNumber }

// ServerWins awards a point to the serving team.
func (e *Engine) ServerWins() {
	e.scores[e.servingTeam]++
	e.firstServePending = false
}

// ReceiverWins applies side-out logic; the score never changes.
func (e *Engine) ReceiverWins() {
	switch {
	case e.gameType == Singles:
		e.sideOut()
	case e.firstServePending:
		e.sideOut()
	case e.serverNumber == 1:
		e.serverNumber = 2
	default:
		e.sideOut()
	}
}

// ForceSideOut hands the serve to the other team regardless of server number.
func (e *Engine) ForceSideOut() {
	e.sideOut()
}

func (e *Engine) sideOut() {
	e.servingTeam = 1 - e.servingTeam
	e.serverNumber = 1
	e.firstServePending = false
}

// SetScore overwrites the score from a perspective string. The first number is
// the currently serving team's score. Doubles strings also set the server number.
func (e *Engine) SetScore(s string) error {
	serving, receiving, server, err := parseScore(e.gameType, s)
	if err != nil {
		return err
	}
	e.scores[e.servingTeam] = serving
	e.scores[1-e.servingTeam] = receiving
	e.serverNumber = server
	e.firstServePending = false
	return nil
}

// ScoreString formats the score with the serving team first.
func (e *Engine) ScoreString() string {
	return formatScore(e.gameType, e.scores[e.servingTeam], e.scores[1-e.servingTeam], e.serverNumber)
}

func (e *Engine) ServerInfo() ServerInfo {
	info := ServerInfo{ServingTeam: e.servingTeam, ServerNumber: e.serverNumber}
	roster := e.players.team(e.servingTeam)
	if idx := e.serverNumber - 1; idx >= 0 && idx < len(roster) {
		info.PlayerName = roster[idx]
	} else if len(roster) > 0 {
		info.PlayerName = roster[0]
	}
	return info
}

// GameOver reports whether a team has reached the victory rule with a two
// point lead. winner is the fixed team index, or -1 while the game is live.
func (e *Engine) GameOver() (winner int, over bool) {
	for team := 0; team < 2; team++ {
		own, other := e.scores[team], e.scores[1-team]
		if own >= e.victoryRule && own >= other+2 {
			return team, true
		}
	}
	return -1, false
}

func (e *Engine) SaveSnapshot() Snapshot {
	return Snapshot{
		Team0Score:        e.scores[0],
		Team1Score:        e.scores[1],
		ServingTeam:       e.servingTeam,
		ServerNumber:      e.serverNumber,
		FirstServePending: e.firstServePending,
	}
}

func (e *Engine) RestoreSnapshot(s Snapshot) {
	e.scores = [2]uint{s.Team0Score, s.Team1Score}
	e.servingTeam = s.ServingTeam
	e.serverNumber = s.ServerNumber
	e.firstServePending = s.FirstServePending
}

func (e *Engine) State() State {
	return State{
		GameType:    e.gameType,
		VictoryRule: e.victoryRule,
		Players:     e.players.clone(),
		Snapshot:    e.SaveSnapshot(),
	}
}

// FromState rebuilds an engine, rejecting states the rules can never reach.
func FromState(st State) (*Engine, error) {
	e, err := New(st.GameType, st.VictoryRule, st.Players)
	if err != nil {
		return nil, err
	}
	if err := e.ValidateSnapshot(st.Snapshot); err != nil {
		return nil, err
	}
	e.RestoreSnapshot(st.Snapshot)
	return e, nil
}

// ValidateSnapshot rejects snapshots this engine's rules can never produce.
// Restoring one would leave the engine unusable.
func (e *Engine) ValidateSnapshot(s Snapshot) error {
	if s.ServingTeam != 0 && s.ServingTeam != 1 {
		return fmt.Errorf("%w: serving team %d", ErrInvalidState, s.ServingTeam)
	}
	if s.ServerNumber != 1 && s.ServerNumber != 2 {
		return fmt.Errorf("%w: server number %d", ErrInvalidState, s.ServerNumber)
	}
	if e.gameType == Singles && (s.ServerNumber != 1 || s.FirstServePending) {
		return fmt.Errorf("%w: singles uses a single server", ErrInvalidState)
	}
	return nil
}

// SnapshotScoreString formats s the way ScoreString would after restoring it.
func (e *Engine) SnapshotScoreString(s Snapshot) string {
	scores := [2]uint{s.Team0Score, s.Team1Score}
	serving := s.ServingTeam & 1
	return formatScore(e.gameType, scores[serving], scores[1-serving], s.ServerNumber)
}

func formatScore(gameType GameType, serving, receiving uint, server int) string {
	if gameType == Doubles {
		return fmt.Sprintf("%d-%d-%d", serving, receiving, server)
	}
	return fmt.Sprintf("%d-%d", serving, receiving)
}

func parseScore(gameType GameType, s string) (serving, receiving uint, server int, err error) {
	raw := strings.TrimSpace(s)
	parts := strings.Split(raw, "-")
	want := 2
	if gameType == Doubles {
		want = 3
	}
	if len(parts) != want {
		return 0, 0, 0, fmt.Errorf("%w: %q (want %s)", ErrInvalidScoreFormat, s, formatHint(gameType))
	}
	nums := make([]uint64, len(parts))
	for i, p := range parts {
		if p == "" || strings.TrimSpace(p) != p {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidScoreFormat, s)
		}
		n, perr := strconv.ParseUint(p, 10, 32)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidScoreFormat, s)
		}
		nums[i] = n
	}
	server = 1
	if gameType == Doubles {
		if nums[2] != 1 && nums[2] != 2 {
			return 0, 0, 0, fmt.Errorf("%w: server number in %q must be 1 or 2", ErrInvalidScoreFormat, s)
		}
		server = int(nums[2])
	}
	return uint(nums[0]), uint(nums[1]), server, nil
}

func formatHint(gameType GameType) string {
	if gameType == Doubles {
		return "serving-receiving-server"
	}
	return "serving-receiving"
}
