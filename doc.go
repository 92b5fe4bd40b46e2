// Package authcore implements the authentication token lifecycle for a
// service: credential verification, HS256 access/refresh token issuance,
// single-use refresh rotation with reuse detection, per-account lockouts,
// and per-address rate limiting.
//
// Build an Engine with the Builder, supplying your account database
// adapter and a Redis client:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithAccountStore(store).
//		Build()
//
// Every operation takes a context; attach the caller's source address with
// WithClientIP to enable the address limiter. All failures map onto a
// small sentinel error set dispatched with errors.Is, and UserMessage
// collapses them into wire-safe strings.
package authcore
