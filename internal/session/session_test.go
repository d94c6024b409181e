package session

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/rallylog"
	"github.com/park285/pickleball-rallyscore/internal/score"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestSession(t *testing.T, gt score.GameType) (*Session, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)}
	players := score.Players{Team1: []string{"Ann"}, Team2: []string{"Ben"}}
	if gt == score.Doubles {
		players = score.Players{Team1: []string{"Ann", "Amy"}, Team2: []string{"Ben", "Bob"}}
	}
	s, err := New(Params{VideoPath: "/videos/final.mp4", GameType: gt, VictoryRule: 11, Players: players}, WithClock(clock.now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Params{GameType: score.Singles}); !errors.Is(err, ErrVideoPathRequired) {
		t.Fatalf("expected ErrVideoPathRequired, got %v", err)
	}
	_, err := New(Params{VideoPath: "a.mp4", GameType: score.Singles, Players: score.Players{Team1: []string{"A", "B"}}})
	if !errors.Is(err, ErrInvalidPlayers) {
		t.Fatalf("expected ErrInvalidPlayers, got %v", err)
	}
	if _, err := New(Params{VideoPath: "a.mp4", GameType: "rally"}); !errors.Is(err, score.ErrUnsupportedGameType) {
		t.Fatalf("expected ErrUnsupportedGameType, got %v", err)
	}
	s, err := New(Params{VideoPath: "a.mp4", GameType: score.Doubles})
	if err != nil {
		t.Fatalf("New with empty roster: %v", err)
	}
	if p := s.Players(); len(p.Team1) != 2 || len(p.Team2) != 2 || p.Team2[1] != "Team 2 Player 2" {
		t.Fatalf("unexpected default roster: %+v", p)
	}
	if s.ID() == "" || s.CurrentScoreString() != "0-0-2" {
		t.Fatalf("unexpected new session: id=%q score=%q", s.ID(), s.CurrentScoreString())
	}
}

func TestMutationsTouchModified(t *testing.T) {
	s, _ := newTestSession(t, score.Singles)
	created := s.LastModified()
	if err := s.StartRally(100); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	if !s.LastModified().After(created) {
		t.Fatalf("modified_at not advanced")
	}
	mod := s.LastModified()
	if err := s.StartRally(101); err == nil {
		t.Fatalf("expected error on second StartRally")
	}
	if !s.LastModified().Equal(mod) {
		t.Fatalf("failed operation touched modified_at")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s, _ := newTestSession(t, score.Doubles)
	mustRally := func(start, end uint, w rallylog.Winner) {
		t.Helper()
		if err := s.StartRally(start); err != nil {
			t.Fatalf("StartRally: %v", err)
		}
		if _, err := s.EndRally(end, w); err != nil {
			t.Fatalf("EndRally: %v", err)
		}
	}
	mustRally(0, 40, rallylog.WinnerReceiver)
	mustRally(50, 90, rallylog.WinnerServer)
	s.AddComment("nice lob")
	if err := s.SetScore("4-2-1"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	s.ForceSideOut()
	s.AddIntervention("ref overrule")
	if err := s.StartRally(120); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	s.SetLastPosition(4.25)

	doc := s.ToDocument()
	if doc.Version != DocumentVersion || doc.CurrentScore[2] != 1 {
		t.Fatalf("unexpected document header: %+v", doc)
	}
	raw, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := UnmarshalDocument(raw)
	if err != nil {
		t.Fatalf("UnmarshalDocument: %v", err)
	}
	restored, err := FromDocument(decoded)
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if !reflect.DeepEqual(restored.ToDocument(), doc) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", restored.ToDocument(), doc)
	}
	if restored.CurrentScoreString() != s.CurrentScoreString() || !restored.RallyActive() {
		t.Fatalf("restored state differs: %q active=%v", restored.CurrentScoreString(), restored.RallyActive())
	}

	// the restored session keeps undoing through the reloaded journal
	for restored.CanUndo() {
		if _, err := restored.Undo(); err != nil {
			t.Fatalf("Undo: %v", err)
		}
	}
	if restored.CurrentScoreString() != "0-0-2" || restored.RallyCount() != 0 {
		t.Fatalf("unwound state = %q rallies=%d", restored.CurrentScoreString(), restored.RallyCount())
	}
}

func TestFromDocumentRejects(t *testing.T) {
	s, _ := newTestSession(t, score.Singles)
	doc := s.ToDocument()
	doc.Version = DocumentVersion + 1
	if _, err := FromDocument(doc); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	doc = s.ToDocument()
	doc.CurrentScore[2] = 2
	if _, err := FromDocument(doc); !errors.Is(err, score.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	doc = s.ToDocument()
	doc.Rallies = []rallylog.Rally{{StartFrame: 1, EndFrame: 2, ScoreAtStart: "0-0", Winner: rallylog.WinnerServer}}
	if _, err := FromDocument(doc); !errors.Is(err, rallylog.ErrInvalidLog) {
		t.Fatalf("expected ErrInvalidLog, got %v", err)
	}
}

func TestFromDocumentRejectsRoster(t *testing.T) {
	s, _ := newTestSession(t, score.Doubles)
	for _, names := range []score.Players{
		{Team1: []string{"Ann"}, Team2: []string{"Ben"}},
		{Team1: []string{"Ann", "Amy", "Ada"}, Team2: []string{"Ben", "Bob"}},
	} {
		doc := s.ToDocument()
		doc.PlayerNames = names
		if _, err := FromDocument(doc); !errors.Is(err, ErrInvalidPlayers) {
			t.Errorf("roster %+v: expected ErrInvalidPlayers, got %v", names, err)
		}
	}
}

func TestFromDocumentRejectsBadSnapshot(t *testing.T) {
	s, _ := newTestSession(t, score.Singles)
	s.ForceSideOut()
	doc := s.ToDocument()
	doc.Actions[0].Before.ServingTeam = 5
	doc.Actions[0].Before.ServerNumber = 0
	if _, err := FromDocument(doc); !errors.Is(err, rallylog.ErrInvalidLog) {
		t.Fatalf("expected ErrInvalidLog, got %v", err)
	}
}

func TestGameOverAccessor(t *testing.T) {
	s, _ := newTestSession(t, score.Singles)
	if err := s.SetScore("10-4"); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if err := s.StartRally(1); err != nil {
		t.Fatalf("StartRally: %v", err)
	}
	if _, err := s.EndRally(2, rallylog.WinnerServer); err != nil {
		t.Fatalf("EndRally: %v", err)
	}
	winner, over := s.GameOver()
	if !over || winner != 0 {
		t.Fatalf("GameOver = (%d,%v)", winner, over)
	}
	if info := s.ServerInfo(); info.PlayerName != "Ann" {
		t.Fatalf("server = %+v", info)
	}
}
