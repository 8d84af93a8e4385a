// persistence/store.go
package persistence

import (
	"context"
	"errors"
	"time"
)

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)

// Store is the shared key-value store behind every match. All values
// expire; a zero ttl keeps the key without expiry.
type Store interface {
	// Get returns ErrRecordNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces key with value only while it still holds old.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete removes key only while it still holds old.
	CompareAndDelete(ctx context.Context, key string, old []byte) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// MGet returns one entry per key, nil for a missing key.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}
