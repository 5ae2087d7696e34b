package cache

import (
	"context"
	"errors"
	"time"

	"scrapengine/internal/core/compress"
)

// ErrRemoteMiss is returned by a RemoteStore when the key is absent.
var ErrRemoteMiss = errors.New("remote cache miss")

// RemoteStore is the shared remote tier behind the manager: a key-value
// store with TTL semantics. The production implementation lives in
// internal/platform/redis; tests use an in-memory fake.
type RemoteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every entry under this manager's key namespace.
	Clear(ctx context.Context, prefix string) error
	// Connected probes connectivity; false degrades the manager to
	// memory-tier-only mode without failing requests.
	Connected(ctx context.Context) bool
}

// envelope is the remote tier's wire record. CreatedAt and TTL travel with
// the payload so a backfilled memory entry mirrors the remote entry's
// expiry exactly: the memory tier is never fresher than its source.
type envelope struct {
	Algorithm compress.Algorithm `json:"algo"`
	Data      []byte             `json:"data"`
	CreatedAt time.Time          `json:"created_at"`
	TTLMillis int64              `json:"ttl_ms"`
}
