package cache

import (
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache: miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error
}

// IsMiss reports whether err means the key was not found, for any backend
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss) || errors.Is(err, memcache.ErrCacheMiss)
}
