// Package storage provides the key/value stores that stand in for the browser's
// durable and session-scoped storage.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the key is absent.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable indicates the store refused the operation (quota, privacy mode, outage).
	ErrUnavailable = errors.New("storage unavailable")
)

// Store is a string key/value store. Writes are idempotent and last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Lookup reads a key and folds every failure into "absent".
func Lookup(ctx context.Context, store Store, key string) (string, bool) {
	if store == nil {
		return "", false
	}

	value, err := store.Get(ctx, key)
	if err != nil {
		return "", false
	}

	return value, true
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
