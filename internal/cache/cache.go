package cache

import (
	"context"
	"errors"
)

// KeyValueStore is the device-style persistent store the cart manager
// saves into: opaque values addressed by string keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrKeyNotFound = errors.New("key not found")
