// Package storage provides the durable key-value blob store behind the
// preference layer. Backends share a minimal byte-oriented interface so the
// core never knows whether it is writing to memory, disk, or Redis.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Service defines blob store operations.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
