package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache reads through a fast in-process layer before falling back
// to Redis. Writes go to both layers.
type LayeredCache struct {
	local  Service
	remote Service
}

// NewLayeredCache combines a local and a remote cache.
func NewLayeredCache(local, remote Service) *LayeredCache {
	return &LayeredCache{local: local, remote: remote}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.local.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.remote.Set(ctx, key, value, expiration)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	err := lc.local.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}

	// Backfill the local layer. Best effort, expiration tracking stays
	// with the remote copy.
	_ = lc.local.Set(ctx, key, dest, time.Minute)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	if err := lc.local.Delete(ctx, keys...); err != nil {
		return err
	}
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := lc.local.Exists(ctx, key)
	if err == nil && ok {
		return true, nil
	}
	return lc.remote.Exists(ctx, key)
}

func (lc *LayeredCache) Close() error {
	lerr := lc.local.Close()
	rerr := lc.remote.Close()
	if lerr != nil {
		return lerr
	}
	return rerr
}
