// Package refresh persists one-way hashes of issued refresh tokens and
// enforces their single-use rotation semantics.
//
// The bearer token itself never reaches this package: callers hash it with
// [HashToken] (SHA-256; refresh tokens are high-entropy, so an unsalted fast
// digest is sufficient, unlike passwords) and the hash doubles as the record's
// storage key.
//
// # Rotation guarantee
//
// [Store.Revoke] is an atomic test-and-set on the revoked flag and reports
// whether THIS call performed the revocation. Two concurrent rotations of the
// same token therefore observe exactly one true result: the store, not a
// caller-side read, decides the winner.
//
// Two implementations ship: [RedisStore] (Lua compare-and-swap, shared across
// process instances) and [MemoryStore] (mutex-guarded, reference behavior for
// tests).
package refresh
