package redis

import (
	"context"
	"io"
)

// Shutdown returns a function that gracefully closes the Redis client.
// The returned function has the func(context.Context) error shape of a
// shutdown hook.
//
// Example:
//
//	closeRedis := redis.Shutdown(client)
//	// ... on shutdown:
//	_ = closeRedis(ctx)
func Shutdown(client io.Closer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Close()
	}
}
