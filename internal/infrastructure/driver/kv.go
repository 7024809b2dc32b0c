package driver

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound key does not exist or has expired
var ErrKeyNotFound = errors.New("key not found")

// KeyValueDB define a key-value storage interface
type KeyValueDB interface {
	SetEX(ctx context.Context, key string, value string, expiration time.Duration) error
	// SetNX sets key only if it does not exist yet, reporting whether it did
	SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// Incr increments the counter stored at key, expiration is only applied when the key is created
	Incr(ctx context.Context, key string, expiration time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
}

// Subscription a live channel subscription, Close must be called to release it
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// PubSub publish/subscribe on named channels
type PubSub interface {
	Publish(ctx context.Context, channel string, message string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
