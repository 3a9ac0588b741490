package storage

import "context"

// Noop is the store used when no durable storage exists on the host (the
// server-side rendering case). Reads miss, writes vanish, nothing errors.
type Noop struct{}

// NewNoop creates a no-op store.
func NewNoop() Noop { return Noop{} }

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (Noop) Set(context.Context, string, []byte) error { return nil }

func (Noop) Delete(context.Context, string) error { return nil }
