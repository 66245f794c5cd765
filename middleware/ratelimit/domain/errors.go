package domain

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid rate limiter configuration")
	ErrEmptyKey         = errors.New("empty rate limit key")
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
