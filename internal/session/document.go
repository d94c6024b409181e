package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/rallylog"
	"github.com/park285/pickleball-rallyscore/internal/score"
)

// DocumentVersion is written into every saved document. Older versions are
// read as-is; newer ones are rejected.
const DocumentVersion = 1

// Document is the persisted shape of a session. CurrentScore holds
// team0_score, team1_score and server_number in that order.
type Document struct {
	Version           int               `json:"version"`
	SessionID         string            `json:"session_id"`
	VideoPath         string            `json:"video_path"`
	GameType          score.GameType    `json:"game_type"`
	VictoryRule       uint              `json:"victory_rule"`
	PlayerNames       score.Players     `json:"player_names"`
	CurrentScore      [3]uint           `json:"current_score"`
	ServingTeam       int               `json:"serving_team"`
	FirstServePending bool              `json:"first_serve_pending"`
	Rallies           []rallylog.Rally  `json:"rallies"`
	Actions           []rallylog.Action `json:"actions"`
	LastPosition      float64           `json:"last_position"`
	CreatedAt         time.Time         `json:"created_at"`
	ModifiedAt        time.Time         `json:"modified_at"`
}

func (s *Session) ToDocument() *Document {
	st := s.log.Engine().State()
	rallies := s.log.Rallies()
	if rallies == nil {
		rallies = []rallylog.Rally{}
	}
	actions := s.log.Actions()
	if actions == nil {
		actions = []rallylog.Action{}
	}
	return &Document{
		Version:           DocumentVersion,
		SessionID:         s.id,
		VideoPath:         s.videoPath,
		GameType:          st.GameType,
		VictoryRule:       st.VictoryRule,
		PlayerNames:       st.Players,
		CurrentScore:      [3]uint{st.Team0Score, st.Team1Score, uint(st.ServerNumber)},
		ServingTeam:       st.ServingTeam,
		FirstServePending: st.FirstServePending,
		Rallies:           rallies,
		Actions:           actions,
		LastPosition:      s.lastPosition,
		CreatedAt:         s.createdAt,
		ModifiedAt:        s.modifiedAt,
	}
}

// FromDocument rebuilds a session, validating the roster, engine state, every
// stored snapshot and the rally/action lockstep.
func FromDocument(doc *Document, opts ...Option) (*Session, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil session document")
	}
	if doc.Version < 1 || doc.Version > DocumentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	if strings.TrimSpace(doc.VideoPath) == "" {
		return nil, ErrVideoPathRequired
	}
	players, err := normalizePlayers(doc.GameType, doc.PlayerNames)
	if err != nil {
		return nil, err
	}
	engine, err := score.FromState(score.State{
		GameType:    doc.GameType,
		VictoryRule: doc.VictoryRule,
		Players:     players,
		Snapshot: score.Snapshot{
			Team0Score:        doc.CurrentScore[0],
			Team1Score:        doc.CurrentScore[1],
			ServerNumber:      int(doc.CurrentScore[2]),
			ServingTeam:       doc.ServingTeam,
			FirstServePending: doc.FirstServePending,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("restore engine: %w", err)
	}

	s := newSession(opts)
	s.id = doc.SessionID
	s.videoPath = doc.VideoPath
	s.lastPosition = doc.LastPosition
	s.createdAt = doc.CreatedAt
	s.modifiedAt = doc.ModifiedAt
	log, err := rallylog.Restore(engine, doc.Rallies, doc.Actions, s.logOptions()...)
	if err != nil {
		return nil, fmt.Errorf("restore rally log: %w", err)
	}
	s.log = log
	return s, nil
}

func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func UnmarshalDocument(raw []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	return &d, nil
}
