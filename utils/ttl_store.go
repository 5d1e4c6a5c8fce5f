package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type ttlEntry struct {
	value     string
	expiresAt time.Time
}

// ttlStore keeps short-lived keys in Redis, or in process memory (single
// instance only) when Redis is disabled.
type ttlStore struct {
	prefix string
	mu     sync.Mutex
	mem    map[string]ttlEntry
}

func newTTLStore(prefix string) *ttlStore {
	return &ttlStore{prefix: prefix, mem: map[string]ttlEntry{}}
}

func (s *ttlStore) put(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Set(ctx, s.prefix+key, value, ttl).Err()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	s.mem[key] = ttlEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// take returns and removes the value, so each key is usable once.
func (s *ttlStore) take(key string) (string, bool) {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v, err := rc.GetDel(ctx, s.prefix+key).Result()
		if err == nil {
			return v, true
		}
		if errors.Is(err, redis.Nil) {
			return "", false
		}
		// GETDEL needs Redis 6.2; fall back to an atomic script
		script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
		res, err := rc.Eval(ctx, script, []string{s.prefix + key}).Result()
		if err != nil || res == nil {
			return "", false
		}
		str, _ := res.(string)
		return str, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.mem[key]
	if !ok {
		return "", false
	}
	delete(s.mem, key)
	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (s *ttlStore) has(key string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, s.prefix+key).Result()
		// fail open on Redis errors to avoid locking everyone out
		return err == nil && n > 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.mem[key]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.mem, key)
		return false
	}
	return true
}

func (s *ttlStore) evictLocked() {
	now := time.Now()
	for k, e := range s.mem {
		if now.After(e.expiresAt) {
			delete(s.mem, k)
		}
	}
}

var (
	oauthStates   = newTTLStore("oauth:state:")
	revokedTokens = newTTLStore("jwt:revoked:")
)

// SaveState stores an OAuth state token, and where to send the user afterwards.
func SaveState(state, redirectURL string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	oauthStates.put(state, redirectURL, ttl)
}

// ConsumeState validates and removes a state token, returning its redirect URL.
func ConsumeState(state string) (string, bool) {
	if state == "" {
		return "", false
	}
	return oauthStates.take(state)
}

// RevokeToken rejects an access token until it would have expired anyway.
func RevokeToken(token string, expiresAt time.Time) {
	revokedTokens.put(token, "1", time.Until(expiresAt))
}

// IsTokenRevoked reports whether token was revoked by a logout.
func IsTokenRevoked(token string) bool {
	return revokedTokens.has(token)
}
