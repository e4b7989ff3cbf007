package security

import (
	"context"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// AntiForgeryStore binds anti-forgery tokens to browser sessions.
type AntiForgeryStore interface {
	// Issue returns the token bound to sessionID, creating one if needed.
	Issue(ctx context.Context, sessionID string) (string, error)
	// Validate reports whether token is the live token bound to sessionID.
	Validate(ctx context.Context, sessionID, token string) bool
}

// CacheAntiForgeryStore keeps tokens in an in-process bigcache. Each entry is
// an 8-byte big-endian expiry (unix nanos) followed by the token bytes, so
// expiry is enforced on read regardless of when bigcache evicts.
type CacheAntiForgeryStore struct {
	cache  *bigcache.BigCache
	tokens *TokenManager
	ttl    time.Duration
	now    func() time.Time
}

// StoreOption customizes a CacheAntiForgeryStore.
type StoreOption func(*CacheAntiForgeryStore)

// WithStoreClock overrides the clock used for expiry checks.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *CacheAntiForgeryStore) {
		s.now = now
	}
}

// NewCacheAntiForgeryStore creates a store whose tokens live for ttl.
func NewCacheAntiForgeryStore(ctx context.Context, ttl time.Duration, opts ...StoreOption) (*CacheAntiForgeryStore, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("anti-forgery ttl must be positive, got %s", ttl)
	}

	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create anti-forgery cache: %w", err)
	}

	s := &CacheAntiForgeryStore{
		cache:  cache,
		tokens: NewTokenManager(),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *CacheAntiForgeryStore) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("anti-forgery session id is empty")
	}

	if token, ok := s.lookup(sessionID); ok {
		return token, nil
	}

	token, err := s.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("failed to generate anti-forgery token: %w", err)
	}

	entry := make([]byte, 8+len(token))
	binary.BigEndian.PutUint64(entry, uint64(s.now().Add(s.ttl).UnixNano()))
	copy(entry[8:], token)

	if err := s.cache.Set(sessionID, entry); err != nil {
		return "", fmt.Errorf("failed to store anti-forgery token: %w", err)
	}
	return token, nil
}

func (s *CacheAntiForgeryStore) Validate(ctx context.Context, sessionID, token string) bool {
	if sessionID == "" || token == "" {
		return false
	}
	stored, ok := s.lookup(sessionID)
	if !ok {
		return false
	}
	return hmac.Equal([]byte(stored), []byte(token))
}

// Close releases the cache.
func (s *CacheAntiForgeryStore) Close() error {
	return s.cache.Close()
}

func (s *CacheAntiForgeryStore) lookup(sessionID string) (string, bool) {
	entry, err := s.cache.Get(sessionID)
	if err != nil || len(entry) <= 8 {
		return "", false
	}

	expiresAt := time.Unix(0, int64(binary.BigEndian.Uint64(entry[:8])))
	if !s.now().Before(expiresAt) {
		_ = s.cache.Delete(sessionID)
		return "", false
	}
	return string(entry[8:]), true
}
