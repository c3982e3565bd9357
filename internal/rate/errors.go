package rate

import "errors"

var (
	// ErrRateLimited is returned by callers that turn a denied Decision into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when the backing Redis call fails.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
