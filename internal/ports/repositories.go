package ports

import (
	"context"
	"time"
)

// Cache is a string-keyed cache with optional expiration. The training
// pipeline keys step outputs by input hash so reruns can skip work.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
