package rallylog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/score"
)

var (
	ErrRallyAlreadyInProgress = errors.New("rally already in progress")
	ErrNoRallyInProgress      = errors.New("no rally in progress")
	ErrNothingToUndo          = errors.New("nothing to undo")
	ErrInvalidFrameRange      = errors.New("rally end frame precedes start frame")
	ErrInvalidWinner          = errors.New("invalid rally winner")
	ErrInvalidLog             = errors.New("inconsistent rally log")
)

// Winner names the side that won a rally, from the serving perspective.
type Winner string

const (
	WinnerServer   Winner = "server"
	WinnerReceiver Winner = "receiver"
)

func ParseWinner(s string) (Winner, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "s":
		return WinnerServer, nil
	case "receiver", "r":
		return WinnerReceiver, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWinner, s)
	}
}

// Rally is one completed exchange. Rallies are never edited in place.
type Rally struct {
	StartFrame   uint   `json:"start_frame"`
	EndFrame     uint   `json:"end_frame"`
	ScoreAtStart string `json:"score_at_start"`
	Winner       Winner `json:"winner"`
}

// ActionKind tags the Action variants.
type ActionKind string

const (
	KindRallyStart   ActionKind = "rally_start"
	KindServerWins   ActionKind = "server_wins"
	KindReceiverWins ActionKind = "receiver_wins"
	KindScoreSet     ActionKind = "score_set"
	KindForceSideOut ActionKind = "force_side_out"
	KindComment      ActionKind = "comment"
	KindIntervention ActionKind = "intervention"
)

func (k ActionKind) valid() bool {
	switch k {
	case KindRallyStart, KindServerWins, KindReceiverWins, KindScoreSet,
		KindForceSideOut, KindComment, KindIntervention:
		return true
	}
	return false
}

// CompletesRally reports whether the action closed a rally and so owns an
// entry in the rally list.
func (k ActionKind) CompletesRally() bool {
	return k == KindServerWins || k == KindReceiverWins
}

// Action is one journal entry. Before is the engine state captured just
// before the action was applied. Frame is set for rally start/end, Score for
// score_set and Text for comment/intervention.
type Action struct {
	Kind      ActionKind     `json:"type"`
	Before    score.Snapshot `json:"before"`
	Frame     uint           `json:"frame,omitempty"`
	Score     string         `json:"score,omitempty"`
	Text      string         `json:"text,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
