package sessionstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/pickleball-rallyscore/internal/session"
	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// RedisStore keeps each session document as JSON under sess:<video key>,
// plus an index set of known keys for listing.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// OpenRedis dials redisURL and verifies the connection.
func OpenRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, ttl), nil
}

func (s *RedisStore) keyDoc(key string) string { return "sess:" + key }
func (s *RedisStore) keyIndex() string         { return "sess:index" }

func (s *RedisStore) Save(ctx context.Context, doc *session.Document) error {
	if err := validate(doc); err != nil {
		return err
	}
	raw, err := doc.Marshal()
	if err != nil {
		return err
	}
	key := VideoKey(doc.VideoPath)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyDoc(key), raw, s.ttl)
	pipe.SAdd(ctx, s.keyIndex(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session %s: %w", doc.SessionID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, videoPath string) (*session.Document, error) {
	raw, err := s.rdb.Get(ctx, s.keyDoc(VideoKey(videoPath))).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session.UnmarshalDocument(raw)
}

func (s *RedisStore) Delete(ctx context.Context, videoPath string) error {
	key := VideoKey(videoPath)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyDoc(key))
	pipe.SRem(ctx, s.keyIndex(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// List skips and prunes index entries whose document has expired.
func (s *RedisStore) List(ctx context.Context) ([]Summary, error) {
	keys, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, k := range keys {
		raw, err := s.rdb.Get(ctx, s.keyDoc(k)).Bytes()
		if err == redis.Nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), k).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		doc, err := session.UnmarshalDocument(raw)
		if err != nil {
			continue
		}
		out = append(out, summarize(doc))
	}
	sortSummaries(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: host + ":" + port, Password: pass, DB: db}, nil
}
