package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kapu/chess-arena-go/internal/session"
)

const keyIndex = "room:index"

// RedisStore keeps one JSON snapshot per room plus an index set for
// enumeration. Snapshots carry a TTL so crashed rooms age out even if the
// delete never ran.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects and pings. ttl <= 0 disables expiry.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// NewRedisStoreClient wraps an existing client; used by tests.
func NewRedisStoreClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(roomID string) string { return "room:session:" + strings.TrimSpace(roomID) }

func (s *RedisStore) Load(ctx context.Context, roomID string) (*session.Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", roomID, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(sess.RoomID), raw, s.ttl).Err(); err != nil {
		return err
	}
	return s.rdb.SAdd(ctx, keyIndex, sess.RoomID).Err()
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, s.key(roomID)).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, keyIndex, roomID).Err()
}

// RoomIDs lists indexed rooms, dropping entries whose snapshot expired.
func (s *RedisStore) RoomIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, keyIndex).Result()
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.SRem(ctx, keyIndex, id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
