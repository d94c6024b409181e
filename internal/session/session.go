package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/pickleball-rallyscore/internal/rallylog"
	"github.com/park285/pickleball-rallyscore/internal/score"
	"go.uber.org/zap"
)

var (
	ErrInvalidPlayers     = errors.New("invalid player roster")
	ErrVideoPathRequired  = errors.New("video path is required")
	ErrUnsupportedVersion = errors.New("unsupported session document version")
)

// Params describes a new scoring session.
type Params struct {
	VideoPath   string
	GameType    score.GameType
	VictoryRule uint
	Players     score.Players
}

// Session aggregates match metadata, the score engine and the rally log for
// one video. All mutation goes through the log; Session only stamps
// modification times. Not safe for concurrent use.
type Session struct {
	id           string
	videoPath    string
	log          *rallylog.Log
	lastPosition float64
	createdAt    time.Time
	modifiedAt   time.Time

	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func New(p Params, opts ...Option) (*Session, error) {
	videoPath := strings.TrimSpace(p.VideoPath)
	if videoPath == "" {
		return nil, ErrVideoPathRequired
	}
	players, err := normalizePlayers(p.GameType, p.Players)
	if err != nil {
		return nil, err
	}
	engine, err := score.New(p.GameType, p.VictoryRule, players)
	if err != nil {
		return nil, err
	}
	s := newSession(opts)
	s.id = uuid.NewString()
	s.videoPath = videoPath
	s.log = rallylog.New(engine, s.logOptions()...)
	s.createdAt = s.now()
	s.modifiedAt = s.createdAt
	s.logger.Info("session_create",
		zap.String("session_id", s.id),
		zap.String("video_path", s.videoPath),
		zap.String("game_type", string(engine.GameType())),
		zap.Uint("victory_rule", engine.VictoryRule()),
	)
	return s, nil
}

func newSession(opts []Option) *Session {
	s := &Session{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) logOptions() []rallylog.Option {
	return []rallylog.Option{
		rallylog.WithClock(s.now),
		rallylog.WithLogger(s.logger.With(zap.String("session_id", s.id))),
	}
}

// normalizePlayers fills an empty roster with placeholder names and rejects
// rosters whose size does not fit the game type.
func normalizePlayers(gt score.GameType, p score.Players) (score.Players, error) {
	size := 1
	if gt == score.Doubles {
		size = 2
	}
	fill := func(team int, names []string) ([]string, error) {
		out := make([]string, 0, size)
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
		if len(out) == 0 {
			for i := 1; i <= size; i++ {
				out = append(out, fmt.Sprintf("Team %d Player %d", team, i))
			}
		}
		if len(out) != size {
			return nil, fmt.Errorf("%w: team %d has %d names, %s needs %d", ErrInvalidPlayers, team, len(out), gt, size)
		}
		return out, nil
	}
	t1, err := fill(1, p.Team1)
	if err != nil {
		return score.Players{}, err
	}
	t2, err := fill(2, p.Team2)
	if err != nil {
		return score.Players{}, err
	}
	return score.Players{Team1: t1, Team2: t2}, nil
}

func (s *Session) touch() { s.modifiedAt = s.now() }

func (s *Session) StartRally(frame uint) error {
	if err := s.log.StartRally(frame); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) EndRally(frame uint, winner rallylog.Winner) (rallylog.Rally, error) {
	r, err := s.log.EndRally(frame, winner)
	if err != nil {
		return rallylog.Rally{}, err
	}
	s.touch()
	if team, over := s.log.Engine().GameOver(); over {
		s.logger.Info("game_over",
			zap.String("session_id", s.id),
			zap.Int("winner_team", team),
			zap.String("score", s.log.ScoreString()),
			zap.Int("rallies", s.log.RallyCount()),
		)
	}
	return r, nil
}

func (s *Session) SetScore(v string) error {
	if err := s.log.SetScore(v); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) ForceSideOut() {
	s.log.ForceSideOut()
	s.touch()
}

func (s *Session) AddComment(text string) {
	s.log.AddComment(text)
	s.touch()
}

func (s *Session) AddIntervention(description string) {
	s.log.AddIntervention(description)
	s.touch()
}

func (s *Session) Undo() (rallylog.Action, error) {
	a, err := s.log.Undo()
	if err != nil {
		return rallylog.Action{}, err
	}
	s.touch()
	return a, nil
}

// SetLastPosition records the playback position in seconds.
func (s *Session) SetLastPosition(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	s.lastPosition = seconds
	s.touch()
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) VideoPath() string            { return s.videoPath }
func (s *Session) LastPosition() float64        { return s.lastPosition }
func (s *Session) CreatedAt() time.Time         { return s.createdAt }
func (s *Session) LastModified() time.Time      { return s.modifiedAt }
func (s *Session) RallyCount() int              { return s.log.RallyCount() }
func (s *Session) CurrentScoreString() string   { return s.log.ScoreString() }
func (s *Session) CanUndo() bool                { return s.log.CanUndo() }
func (s *Session) RallyActive() bool            { return s.log.RallyActive() }
func (s *Session) Rallies() []rallylog.Rally    { return s.log.Rallies() }
func (s *Session) Actions() []rallylog.Action   { return s.log.Actions() }
func (s *Session) ServerInfo() score.ServerInfo { return s.log.Engine().ServerInfo() }
func (s *Session) GameType() score.GameType     { return s.log.Engine().GameType() }
func (s *Session) VictoryRule() uint            { return s.log.Engine().VictoryRule() }
func (s *Session) Players() score.Players       { return s.log.Engine().Players() }
func (s *Session) OpenRallyStart() (uint, bool) { return s.log.OpenRallyStart() }

// GameOver reports the winning fixed team index once the game is decided.
func (s *Session) GameOver() (winner int, over bool) { return s.log.Engine().GameOver() }

// Scores returns the fixed-team scores.
func (s *Session) Scores() (uint, uint) { return s.log.Engine().Scores() }
