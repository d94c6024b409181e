package sessionstore

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/pickleball-rallyscore/internal/session"
)

// memstore keeps encoded documents in process. Used when no backend is
// configured and in tests.
type memstore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory() Store {
	return &memstore{docs: make(map[string][]byte)}
}

func (m *memstore) Save(ctx context.Context, doc *session.Document) error {
	if err := validate(doc); err != nil {
		return err
	}
	raw, err := doc.Marshal()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[VideoKey(doc.VideoPath)] = raw
	m.mu.Unlock()
	return nil
}

func (m *memstore) Load(ctx context.Context, videoPath string) (*session.Document, error) {
	m.mu.RLock()
	raw, ok := m.docs[VideoKey(videoPath)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return session.UnmarshalDocument(raw)
}

func (m *memstore) Delete(ctx context.Context, videoPath string) error {
	m.mu.Lock()
	delete(m.docs, VideoKey(videoPath))
	m.mu.Unlock()
	return nil
}

func (m *memstore) List(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.docs))
	for _, raw := range m.docs {
		doc, err := session.UnmarshalDocument(raw)
		if err != nil {
			continue
		}
		out = append(out, summarize(doc))
	}
	sortSummaries(out)
	return out, nil
}

func (m *memstore) Close() error { return nil }

// sortSummaries orders by modified_at desc, then video path.
func sortSummaries(items []Summary) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ModifiedAt.Equal(items[j].ModifiedAt) {
			return items[i].ModifiedAt.After(items[j].ModifiedAt)
		}
		return items[i].VideoPath < items[j].VideoPath
	})
}
