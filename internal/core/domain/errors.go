package domain

import "errors"

var (
	// ErrCacheMiss is returned by response caches when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
