package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/labstack/gommon/log"
	redis "github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
)

const sessionPrefix = "sitesafe:session:"

// SessionCache keeps recently seen sessions in Redis so authenticated requests
// skip the sessions table.
type SessionCache struct {
	inner *redis.Client
}

// NewSessionCache connects and pings. Callers treat an error as "run without cache".
func NewSessionCache(ctx context.Context, addr, password string, db int) (*SessionCache, error) {
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &SessionCache{inner: client}, nil
}

func (c *SessionCache) GetSession(ctx context.Context, tokenHash string) (*auth.Session, bool) {
	raw, err := c.inner.Get(ctx, sessionPrefix+tokenHash).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("session cache get: %v", err)
		}
		return nil, false
	}
	var s auth.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	s.TokenHash = tokenHash
	return &s, true
}

func (c *SessionCache) SetSession(ctx context.Context, tokenHash string, s *auth.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.inner.Set(ctx, sessionPrefix+tokenHash, raw, ttl).Err()
}

func (c *SessionCache) DeleteSession(ctx context.Context, tokenHash string) error {
	return c.inner.Del(ctx, sessionPrefix+tokenHash).Err()
}

// Ping used by the readiness probe.
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx).Err()
}

func (c *SessionCache) Close() error {
	return c.inner.Close()
}
