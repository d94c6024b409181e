package rallylog

import (
	"fmt"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/score"
	"go.uber.org/zap"
)

// Log journals every mutation of a score engine so it can be undone exactly.
// Each action stores the engine snapshot taken before it ran; undo pops the
// action and restores that snapshot. Rally-completing actions and the rally
// list advance in lockstep.
//
// Operations either fail without touching state or apply fully. Log is not
// safe for concurrent use; a single editing session owns it.
type Log struct {
	engine  *score.Engine
	rallies []Rally
	actions []Action

	active     bool
	startFrame uint

	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Log)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the timestamp source for new actions.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// New wraps engine with an empty journal in the idle state.
func New(engine *score.Engine, opts ...Option) *Log {
	l := &Log{engine: engine, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore rebuilds a log from persisted rallies and actions. The engine must
// already hold the current state; whether a rally is open is derived from the
// action stack. Every stored snapshot must be one the engine could restore, and
// each rally must agree with the start and end actions that bracket it.
func Restore(engine *score.Engine, rallies []Rally, actions []Action, opts ...Option) (*Log, error) {
	l := New(engine, opts...)
	completed := 0
	for i, a := range actions {
		if !a.Kind.valid() {
			return nil, fmt.Errorf("%w: action %d has unknown type %q", ErrInvalidLog, i, a.Kind)
		}
		if err := engine.ValidateSnapshot(a.Before); err != nil {
			return nil, fmt.Errorf("%w: action %d: %v", ErrInvalidLog, i, err)
		}
		switch {
		case a.Kind == KindRallyStart:
			if l.active {
				return nil, fmt.Errorf("%w: action %d starts a rally while one is open", ErrInvalidLog, i)
			}
			l.active = true
			l.startFrame = a.Frame
		case a.Kind.CompletesRally():
			if !l.active {
				return nil, fmt.Errorf("%w: action %d ends a rally that was never started", ErrInvalidLog, i)
			}
			if completed >= len(rallies) {
				return nil, fmt.Errorf("%w: action %d ends rally %d, rally list has %d", ErrInvalidLog, i, completed+1, len(rallies))
			}
			if err := checkRally(engine, rallies[completed], l.startFrame, a); err != nil {
				return nil, fmt.Errorf("%w: rally %d: %v", ErrInvalidLog, completed+1, err)
			}
			l.active = false
			completed++
		}
	}
	if completed != len(rallies) {
		return nil, fmt.Errorf("%w: %d completed rallies in actions, %d in rally list", ErrInvalidLog, completed, len(rallies))
	}
	l.rallies = append([]Rally(nil), rallies...)
	l.actions = append([]Action(nil), actions...)
	return l, nil
}

func checkRally(engine *score.Engine, r Rally, startFrame uint, end Action) error {
	if r.StartFrame != startFrame {
		return fmt.Errorf("start frame %d, rally_start action has %d", r.StartFrame, startFrame)
	}
	if r.EndFrame != end.Frame {
		return fmt.Errorf("end frame %d, closing action has %d", r.EndFrame, end.Frame)
	}
	want := WinnerServer
	if end.Kind == KindReceiverWins {
		want = WinnerReceiver
	}
	if r.Winner != want {
		return fmt.Errorf("winner %q, closing action is %s", r.Winner, end.Kind)
	}
	if got := engine.SnapshotScoreString(end.Before); r.ScoreAtStart != got {
		return fmt.Errorf("score at start %q, actions reached %q", r.ScoreAtStart, got)
	}
	return nil
}

func (l *Log) Engine() *score.Engine { return l.engine }

func (l *Log) RallyActive() bool { return l.active }

// OpenRallyStart returns the start frame of the rally in progress.
func (l *Log) OpenRallyStart() (uint, bool) { return l.startFrame, l.active }

func (l *Log) Rallies() []Rally    { return append([]Rally(nil), l.rallies...) }
func (l *Log) Actions() []Action   { return append([]Action(nil), l.actions...) }
func (l *Log) RallyCount() int     { return len(l.rallies) }
func (l *Log) CanUndo() bool       { return len(l.actions) > 0 }
func (l *Log) ScoreString() string { return l.engine.ScoreString() }

func (l *Log) StartRally(frame uint) error {
	if l.active {
		return ErrRallyAlreadyInProgress
	}
	l.push(Action{Kind: KindRallyStart, Frame: frame})
	l.active = true
	l.startFrame = frame
	l.logger.Debug("rally_start", zap.Uint("frame", frame), zap.String("score", l.engine.ScoreString()))
	return nil
}

// EndRally closes the open rally and applies its outcome to the engine.
func (l *Log) EndRally(frame uint, winner Winner) (Rally, error) {
	if !l.active {
		return Rally{}, ErrNoRallyInProgress
	}
	if frame < l.startFrame {
		return Rally{}, fmt.Errorf("%w: start=%d end=%d", ErrInvalidFrameRange, l.startFrame, frame)
	}
	var kind ActionKind
	switch winner {
	case WinnerServer:
		kind = KindServerWins
	case WinnerReceiver:
		kind = KindReceiverWins
	default:
		return Rally{}, fmt.Errorf("%w: %q", ErrInvalidWinner, winner)
	}

	rally := Rally{
		StartFrame:   l.startFrame,
		EndFrame:     frame,
		ScoreAtStart: l.engine.ScoreString(),
		Winner:       winner,
	}
	l.push(Action{Kind: kind, Frame: frame})
	if kind == KindServerWins {
		l.engine.ServerWins()
	} else {
		l.engine.ReceiverWins()
	}
	l.rallies = append(l.rallies, rally)
	l.active = false
	l.startFrame = 0
	l.logger.Debug("rally_end",
		zap.Uint("start_frame", rally.StartFrame),
		zap.Uint("end_frame", rally.EndFrame),
		zap.String("winner", string(winner)),
		zap.String("score_before", rally.ScoreAtStart),
		zap.String("score_after", l.engine.ScoreString()),
	)
	return rally, nil
}

// SetScore manually overrides the score. Allowed with or without an open rally.
func (l *Log) SetScore(s string) error {
	before := l.engine.SaveSnapshot()
	if err := l.engine.SetScore(s); err != nil {
		return err
	}
	l.actions = append(l.actions, Action{Kind: KindScoreSet, Before: before, Score: s, CreatedAt: l.now()})
	l.logger.Debug("score_set", zap.String("input", s), zap.String("score", l.engine.ScoreString()))
	return nil
}

func (l *Log) ForceSideOut() {
	l.push(Action{Kind: KindForceSideOut})
	l.engine.ForceSideOut()
	l.logger.Debug("force_side_out", zap.String("score", l.engine.ScoreString()))
}

func (l *Log) AddComment(text string) {
	l.push(Action{Kind: KindComment, Text: text})
}

func (l *Log) AddIntervention(description string) {
	l.push(Action{Kind: KindIntervention, Text: description})
}

// Undo reverts the most recent action and returns it. Undoing a rally end
// drops that rally and reopens it, so the next undo removes its start.
func (l *Log) Undo() (Action, error) {
	if len(l.actions) == 0 {
		return Action{}, ErrNothingToUndo
	}
	last := l.actions[len(l.actions)-1]
	if last.Kind.CompletesRally() && len(l.rallies) == 0 {
		return Action{}, fmt.Errorf("%w: rally list is empty", ErrInvalidLog)
	}
	l.actions = l.actions[:len(l.actions)-1]

	switch {
	case last.Kind == KindRallyStart:
		l.active = false
		l.startFrame = 0
	case last.Kind.CompletesRally():
		rally := l.rallies[len(l.rallies)-1]
		l.rallies = l.rallies[:len(l.rallies)-1]
		l.active = true
		l.startFrame = rally.StartFrame
	}
	l.engine.RestoreSnapshot(last.Before)
	l.logger.Debug("undo", zap.String("action", string(last.Kind)), zap.String("score", l.engine.ScoreString()))
	return last, nil
}

func (l *Log) push(a Action) {
	a.Before = l.engine.SaveSnapshot()
	a.CreatedAt = l.now()
	l.actions = append(l.actions, a)
}
