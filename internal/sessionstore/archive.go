package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/pickleball-rallyscore/internal/session"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS pickleball_games (
	session_id TEXT PRIMARY KEY,
	video_path TEXT NOT NULL,
	game_type TEXT NOT NULL,
	victory_rule INTEGER NOT NULL,
	player_names JSONB NOT NULL,
	team1_score INTEGER NOT NULL,
	team2_score INTEGER NOT NULL,
	winner_team INTEGER NOT NULL,
	rallies JSONB NOT NULL,
	score_sheet TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL
)`

// Archive records finished games in Postgres. It is optional; a nil *Archive
// accepts every call and does nothing.
type Archive struct {
	db *sql.DB
}

func OpenArchive(ctx context.Context, databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pickleball_games: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SaveResult upserts the final state of a decided game.
func (a *Archive) SaveResult(ctx context.Context, s *session.Session) error {
	if a == nil || a.db == nil || s == nil {
		return nil
	}
	winner, over := s.GameOver()
	if !over {
		return fmt.Errorf("session %s: game is not over", s.ID())
	}
	doc := s.ToDocument()
	ralliesRaw, err := json.Marshal(doc.Rallies)
	if err != nil {
		return fmt.Errorf("marshal rallies: %w", err)
	}
	playersRaw, err := json.Marshal(doc.PlayerNames)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	team0, team1 := s.Scores()

	const q = `INSERT INTO pickleball_games (
        session_id, video_path, game_type, victory_rule, player_names,
        team1_score, team2_score, winner_team, rallies, score_sheet,
        started_at, ended_at
      ) VALUES (
        $1,$2,$3,$4,$5::jsonb,$6,$7,$8,$9::jsonb,$10,$11,$12
      ) ON CONFLICT (session_id) DO UPDATE SET
        video_path=EXCLUDED.video_path,
        game_type=EXCLUDED.game_type,
        victory_rule=EXCLUDED.victory_rule,
        player_names=EXCLUDED.player_names,
        team1_score=EXCLUDED.team1_score,
        team2_score=EXCLUDED.team2_score,
        winner_team=EXCLUDED.winner_team,
        rallies=EXCLUDED.rallies,
        score_sheet=EXCLUDED.score_sheet,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at`

	_, err = a.db.ExecContext(ctx, q,
		doc.SessionID, doc.VideoPath, string(doc.GameType), doc.VictoryRule, string(playersRaw),
		team0, team1, winner+1, string(ralliesRaw), BuildScoreSheet(doc, winner),
		doc.CreatedAt, doc.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", doc.SessionID, err)
	}
	return nil
}

// BuildScoreSheet renders a plain-text record of the game: a header block,
// then one line per rally with its frames, the score called before the serve
// and who won it. winner is the fixed team index, or -1 if undecided.
func BuildScoreSheet(doc *session.Document, winner int) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	date := doc.ModifiedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString(fmt.Sprintf("[Video \"%s\"]\n", sanitize(doc.VideoPath)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[Game \"%s to %d\"]\n", doc.GameType, doc.VictoryRule))
	b.WriteString(fmt.Sprintf("[Team1 \"%s\"]\n", sanitize(strings.Join(doc.PlayerNames.Team1, " / "))))
	b.WriteString(fmt.Sprintf("[Team2 \"%s\"]\n", sanitize(strings.Join(doc.PlayerNames.Team2, " / "))))
	result := "*"
	if winner == 0 || winner == 1 {
		result = fmt.Sprintf("%d-%d", doc.CurrentScore[0], doc.CurrentScore[1])
		b.WriteString(fmt.Sprintf("[Winner \"Team%d\"]\n", winner+1))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i, r := range doc.Rallies {
		b.WriteString(fmt.Sprintf("%d. %d-%d %s %s\n", i+1, r.StartFrame, r.EndFrame, r.ScoreAtStart, r.Winner))
	}
	return b.String()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
