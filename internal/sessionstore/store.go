package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/session"
)

var ErrInvalidDocument = errors.New("invalid session document")

// Store persists one session document per video. Load returns (nil, nil)
// when no session exists for the video.
type Store interface {
	Save(ctx context.Context, doc *session.Document) error
	Load(ctx context.Context, videoPath string) (*session.Document, error)
	Delete(ctx context.Context, videoPath string) error
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// Summary is the listing view of a stored session.
type Summary struct {
	SessionID  string    `json:"session_id"`
	VideoPath  string    `json:"video_path"`
	GameType   string    `json:"game_type"`
	Score      string    `json:"score"`
	RallyCount int       `json:"rally_count"`
	ModifiedAt time.Time `json:"modified_at"`
}

func summarize(doc *session.Document) Summary {
	sum := Summary{
		SessionID:  doc.SessionID,
		VideoPath:  doc.VideoPath,
		GameType:   string(doc.GameType),
		RallyCount: len(doc.Rallies),
		ModifiedAt: doc.ModifiedAt,
	}
	if s, err := session.FromDocument(doc); err == nil {
		sum.Score = s.CurrentScoreString()
	}
	return sum
}

// VideoKey derives the storage key for a video path. Paths are cleaned so
// "./a.mp4" and "a.mp4" resolve to the same session.
func VideoKey(videoPath string) string {
	p := strings.TrimSpace(videoPath)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(p)))
	return hex.EncodeToString(sum[:])
}

func validate(doc *session.Document) error {
	if doc == nil {
		return ErrInvalidDocument
	}
	if strings.TrimSpace(doc.VideoPath) == "" || strings.TrimSpace(doc.SessionID) == "" {
		return ErrInvalidDocument
	}
	return nil
}
