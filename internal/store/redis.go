package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkvault/internal/models"
)

var _ SessionStore = (*RedisSessionStore)(nil)

// RedisSessionStore keeps sessions in Redis keyed by token hash, with the
// key TTL matching the session's absolute expiry. Redis evicts expired
// sessions natively, so the reaper's session sweep is a no-op here.
type RedisSessionStore struct {
	client *redis.Client
	clock  Clock
}

func NewRedisSessionStore(options *redis.Options, clock Clock) (*RedisSessionStore, error) {
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisSessionStore{client: client, clock: clock}, nil
}

func (r *RedisSessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}

	ttl := session.ExpiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return ErrConflict
	}
	return r.client.Set(ctx, sessionKey(session.TokenHash), data, ttl).Err()
}

func (r *RedisSessionStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSession(data)
}

func (r *RedisSessionStore) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	removed, err := r.client.Del(ctx, sessionKey(tokenHash)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions relies on Redis key TTLs; there is nothing to sweep.
func (r *RedisSessionStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}

func sessionKey(tokenHash string) string {
	return "session:" + tokenHash
}

func encodeSession(session *models.Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var session models.Session
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}
