package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/session"
	_ "modernc.org/sqlite"
)

type migration struct {
	Version int
	UpSQL   string
}

var sqliteMigrations = []migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS sessions (
	video_key TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	video_path TEXT NOT NULL,
	game_type TEXT NOT NULL CHECK(game_type IN ('singles','doubles')),
	rally_count INTEGER NOT NULL DEFAULT 0,
	document TEXT NOT NULL,
	modified_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_modified ON sessions(modified_at);
`,
	},
}

// SQLiteStore keeps sessions in a local database file, one row per video.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	for _, m := range sqliteMigrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, doc *session.Document) error {
	if err := validate(doc); err != nil {
		return err
	}
	raw, err := doc.Marshal()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions(video_key, session_id, video_path, game_type, rally_count, document, modified_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(video_key) DO UPDATE SET
	session_id=excluded.session_id,
	video_path=excluded.video_path,
	game_type=excluded.game_type,
	rally_count=excluded.rally_count,
	document=excluded.document,
	modified_at=excluded.modified_at`,
		VideoKey(doc.VideoPath),
		doc.SessionID,
		doc.VideoPath,
		string(doc.GameType),
		len(doc.Rallies),
		string(raw),
		ts(doc.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", doc.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, videoPath string) (*session.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE video_key = ?`, VideoKey(videoPath)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return session.UnmarshalDocument([]byte(raw))
}

func (s *SQLiteStore) Delete(ctx context.Context, videoPath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE video_key = ?`, VideoKey(videoPath)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM sessions ORDER BY modified_at DESC, video_path ASC`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		doc, err := session.UnmarshalDocument([]byte(raw))
		if err != nil {
			continue
		}
		out = append(out, summarize(doc))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ts(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}
