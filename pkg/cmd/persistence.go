package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/seentics/tracker/pkg/storage"
)

// DurableKeyPrefix namespaces the tracker's keys in a shared Redis.
const DurableKeyPrefix = "seentics:"

// NewDurableStore opens the store that stands in for the visitor's local
// storage: Redis when a redis:// URL is given, memory otherwise. The returned
// close func is never nil.
func NewDurableStore(ctx context.Context, logger *slog.Logger, redisURL string) (storage.Store, func() error, error) {
	if !isRedisURL(redisURL) {
		logger.DebugContext(ctx, "using in-memory durable store")

		return storage.NewMemory(), func() error { return nil }, nil
	}

	store, err := storage.NewRedisFromURL(ctx, redisURL, storage.WithPrefix(DurableKeyPrefix))
	if err != nil {
		return nil, nil, err
	}

	logger.DebugContext(ctx, "using redis durable store")

	return store, store.Close, nil
}

func isRedisURL(url string) bool {
	return strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://")
}
