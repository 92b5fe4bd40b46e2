package rate

import "errors"

var (
	// ErrRateLimited is returned when a source address exhausts its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable indicates the counter backend is unreachable.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
