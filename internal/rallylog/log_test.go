package rallylog

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/score"
)

func newTestLog(t *testing.T, gt score.GameType) *Log {
	t.Helper()
	players := score.Players{Team1: []string{"Ann"}, Team2: []string{"Ben"}}
	if gt == score.Doubles {
		players = score.Players{Team1: []string{"Ann", "Amy"}, Team2: []string{"Ben", "Bob"}}
	}
	e, err := score.New(gt, 11, players)
	if err != nil {
		t.Fatalf("score.New: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return New(e, WithClock(func() time.Time { return fixed }))
}

func playRally(t *testing.T, l *Log, start, end uint, w Winner) Rally {
	t.Helper()
	if err := l.StartRally(start); err != nil {
		t.Fatalf("StartRally(%d): %v", start, err)
	}
	r, err := l.EndRally(end, w)
	if err != nil {
		t.Fatalf("EndRally(%d): %v", end, err)
	}
	return r
}

func TestRallyRecordsScoreBeforeOutcome(t *testing.T) {
	l := newTestLog(t, score.Singles)
	r1 := playRally(t, l, 10, 50, WinnerServer)
	r2 := playRally(t, l, 60, 90, WinnerServer)
	r3 := playRally(t, l, 100, 140, WinnerReceiver)
	if r1.ScoreAtStart != "0-0" || r2.ScoreAtStart != "1-0" || r3.ScoreAtStart != "2-0" {
		t.Fatalf("unexpected score_at_start: %q %q %q", r1.ScoreAtStart, r2.ScoreAtStart, r3.ScoreAtStart)
	}
	if got := l.ScoreString(); got != "0-2" {
		t.Fatalf("score = %q, want 0-2", got)
	}
	if l.RallyCount() != 3 || len(l.Actions()) != 6 {
		t.Fatalf("rallies=%d actions=%d", l.RallyCount(), len(l.Actions()))
	}
	if r3.StartFrame != 100 || r3.EndFrame != 140 || r3.Winner != WinnerReceiver {
		t.Fatalf("unexpected rally: %+v", r3)
	}
}

func TestStateGuards(t *testing.T) {
	l := newTestLog(t, score.Singles)
	if _, err := l.EndRally(5, WinnerServer); !errors.Is(err, ErrNoRallyInProgress) {
		t.Fatalf("expected ErrNoRallyInProgress, got %v", err)
	}
	if _, err := l.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	if err := l.StartRally(5); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	if err := l.StartRally(6); !errors.Is(err, ErrRallyAlreadyInProgress) {
		t.Fatalf("expected ErrRallyAlreadyInProgress, got %v", err)
	}
	if _, err := l.EndRally(4, WinnerServer); !errors.Is(err, ErrInvalidFrameRange) {
		t.Fatalf("expected ErrInvalidFrameRange, got %v", err)
	}
	if _, err := l.EndRally(9, Winner("nobody")); !errors.Is(err, ErrInvalidWinner) {
		t.Fatalf("expected ErrInvalidWinner, got %v", err)
	}
	if len(l.Actions()) != 1 || !l.RallyActive() || l.ScoreString() != "0-0" {
		t.Fatalf("rejected operations changed state: actions=%d active=%v score=%s", len(l.Actions()), l.RallyActive(), l.ScoreString())
	}
}

func TestEndRallySameFrame(t *testing.T) {
	l := newTestLog(t, score.Singles)
	r := playRally(t, l, 7, 7, WinnerServer)
	if r.StartFrame != 7 || r.EndFrame != 7 {
		t.Fatalf("unexpected rally %+v", r)
	}
}

func TestUndoRestoresScoreAndRally(t *testing.T) {
	l := newTestLog(t, score.Doubles)
	playRally(t, l, 0, 30, WinnerReceiver)
	playRally(t, l, 40, 80, WinnerServer)
	before := l.ScoreString()
	playRally(t, l, 90, 120, WinnerReceiver)

	a, err := l.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if a.Kind != KindReceiverWins {
		t.Fatalf("undid %q, want receiver_wins", a.Kind)
	}
	if got := l.ScoreString(); got != before {
		t.Fatalf("score after undo = %q, want %q", got, before)
	}
	if l.RallyCount() != 2 {
		t.Fatalf("rally count = %d, want 2", l.RallyCount())
	}
	start, open := l.OpenRallyStart()
	if !open || start != 90 {
		t.Fatalf("expected reopened rally at 90, got %d open=%v", start, open)
	}
	if _, err := l.EndRally(125, WinnerServer); err != nil {
		t.Fatalf("re-ending reopened rally: %v", err)
	}
	if got := l.Rallies()[2]; got.StartFrame != 90 || got.EndFrame != 125 || got.ScoreAtStart != before {
		t.Fatalf("unexpected corrected rally: %+v", got)
	}
}

func TestUndoRallyStart(t *testing.T) {
	l := newTestLog(t, score.Singles)
	if err := l.StartRally(12); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	a, err := l.Undo()
	if err != nil || a.Kind != KindRallyStart {
		t.Fatalf("Undo = %+v, %v", a, err)
	}
	if l.RallyActive() || l.CanUndo() {
		t.Fatalf("expected idle empty log")
	}
	if err := l.StartRally(20); err != nil {
		t.Fatalf("StartRally after undo: %v", err)
	}
}

func TestManualActionsAndUndo(t *testing.T) {
	l := newTestLog(t, score.Doubles)
	if err := l.SetScore("5-3-2"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	l.ForceSideOut()
	if got := l.ScoreString(); got != "3-5-1" {
		t.Fatalf("score = %q, want 3-5-1", got)
	}
	l.AddComment("great dink")
	l.AddIntervention("ball out of court")
	if l.RallyCount() != 0 || l.RallyActive() {
		t.Fatalf("manual actions must not touch rallies")
	}

	for _, want := range []ActionKind{KindIntervention, KindComment} {
		a, err := l.Undo()
		if err != nil || a.Kind != want {
			t.Fatalf("Undo = %q, %v; want %q", a.Kind, err, want)
		}
		if got := l.ScoreString(); got != "3-5-1" {
			t.Fatalf("audit undo changed score to %q", got)
		}
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo side-out: %v", err)
	}
	if got := l.ScoreString(); got != "5-3-2" {
		t.Fatalf("score = %q, want 5-3-2", got)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo score set: %v", err)
	}
	if got := l.ScoreString(); got != "0-0-2" {
		t.Fatalf("score = %q, want 0-0-2", got)
	}
}

func TestSetScoreInvalidLeavesLogUntouched(t *testing.T) {
	l := newTestLog(t, score.Singles)
	if err := l.SetScore("1-2-3"); !errors.Is(err, score.ErrInvalidScoreFormat) {
		t.Fatalf("expected ErrInvalidScoreFormat, got %v", err)
	}
	if l.CanUndo() {
		t.Fatalf("failed SetScore must not be journaled")
	}
}

func TestManualActionDuringRally(t *testing.T) {
	l := newTestLog(t, score.Singles)
	if err := l.StartRally(10); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	if err := l.SetScore("4-4"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if !l.RallyActive() {
		t.Fatalf("SetScore closed the rally")
	}
	r, err := l.EndRally(20, WinnerServer)
	if err != nil {
		t.Fatalf("EndRally: %v", err)
	}
	if r.ScoreAtStart != "4-4" {
		t.Fatalf("score_at_start = %q, want 4-4", r.ScoreAtStart)
	}
}

func TestRepeatedUndoUnwindsSession(t *testing.T) {
	l := newTestLog(t, score.Doubles)
	initial := l.Engine().SaveSnapshot()
	playRally(t, l, 0, 10, WinnerReceiver)
	playRally(t, l, 20, 30, WinnerServer)
	l.AddComment("timeout")
	if err := l.SetScore("7-7-1"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if err := l.StartRally(40); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	l.ForceSideOut()
	if _, err := l.EndRally(55, WinnerReceiver); err != nil {
		t.Fatalf("EndRally: %v", err)
	}

	n := 0
	for l.CanUndo() {
		if _, err := l.Undo(); err != nil {
			t.Fatalf("Undo #%d: %v", n, err)
		}
		n++
	}
	if n != 9 {
		t.Fatalf("undid %d actions, want 9", n)
	}
	if l.Engine().SaveSnapshot() != initial {
		t.Fatalf("engine not back to initial state: %+v", l.Engine().SaveSnapshot())
	}
	if l.RallyCount() != 0 || l.RallyActive() {
		t.Fatalf("log not back to idle: rallies=%d active=%v", l.RallyCount(), l.RallyActive())
	}
}

func TestRestore(t *testing.T) {
	l := newTestLog(t, score.Singles)
	playRally(t, l, 0, 10, WinnerServer)
	if err := l.StartRally(15); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	l.AddComment("let")

	e, err := score.FromState(l.Engine().State())
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	restored, err := Restore(e, l.Rallies(), l.Actions())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	start, open := restored.OpenRallyStart()
	if !open || start != 15 {
		t.Fatalf("open rally = %d,%v; want 15,true", start, open)
	}
	if _, err := restored.EndRally(30, WinnerServer); err != nil {
		t.Fatalf("EndRally on restored log: %v", err)
	}
	if restored.ScoreString() != "2-0" {
		t.Fatalf("score = %q", restored.ScoreString())
	}
}

func TestRestoreRejectsMismatch(t *testing.T) {
	e, _ := score.New(score.Singles, 11, score.Players{})
	zero := e.SaveSnapshot()
	actions := []Action{{Kind: KindRallyStart, Before: zero}, {Kind: KindServerWins, Before: zero}}
	if _, err := Restore(e, nil, actions); !errors.Is(err, ErrInvalidLog) {
		t.Fatalf("expected ErrInvalidLog, got %v", err)
	}
	if _, err := Restore(e, nil, []Action{{Kind: "teleport", Before: zero}}); !errors.Is(err, ErrInvalidLog) {
		t.Fatalf("expected ErrInvalidLog for unknown kind, got %v", err)
	}
	if _, err := Restore(e, []Rally{{}}, []Action{{Kind: KindServerWins, Before: zero}}); !errors.Is(err, ErrInvalidLog) {
		t.Fatalf("expected ErrInvalidLog for end without start, got %v", err)
	}

	bad := zero
	bad.ServingTeam, bad.ServerNumber = 5, 0
	if _, err := Restore(e, nil, []Action{{Kind: KindForceSideOut, Before: bad}}); !errors.Is(err, ErrInvalidLog) {
		t.Fatalf("expected ErrInvalidLog for unreachable snapshot, got %v", err)
	}
}

func TestRestoreChecksRallyAgainstActions(t *testing.T) {
	l := newTestLog(t, score.Singles)
	playRally(t, l, 10, 40, WinnerServer)
	playRally(t, l, 50, 80, WinnerReceiver)

	cases := map[string]func(r []Rally){
		"start frame": func(r []Rally) { r[1].StartFrame = 51 },
		"end frame":   func(r []Rally) { r[0].EndFrame = 41 },
		"winner":      func(r []Rally) { r[1].Winner = WinnerServer },
		"score":       func(r []Rally) { r[1].ScoreAtStart = "0-0" },
	}
	for name, mutate := range cases {
		rallies := l.Rallies()
		mutate(rallies)
		e, err := score.FromState(l.Engine().State())
		if err != nil {
			t.Fatalf("FromState: %v", err)
		}
		if _, err := Restore(e, rallies, l.Actions()); !errors.Is(err, ErrInvalidLog) {
			t.Errorf("%s: expected ErrInvalidLog, got %v", name, err)
		}
	}
}

func TestParseWinner(t *testing.T) {
	if w, err := ParseWinner("R"); err != nil || w != WinnerReceiver {
		t.Fatalf("ParseWinner(R) = %q, %v", w, err)
	}
	if _, err := ParseWinner("ref"); !errors.Is(err, ErrInvalidWinner) {
		t.Fatalf("expected ErrInvalidWinner, got %v", err)
	}
}
