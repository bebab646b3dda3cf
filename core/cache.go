package core

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values by key.
type Cache interface {
	// Get loads the value stored at key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
