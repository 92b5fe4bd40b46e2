// Package token implements the signed bearer-token codec used for access and
// refresh credentials.
//
// Tokens are HS256 JWTs over a single shared secret carrying the subject
// account ID, a kind tag ("access" or "refresh"), a random jti, and
// issued-at/expiry claims. The kind tag prevents a token of one kind from
// being replayed where the other is required.
//
// Clock-skew leeway applies to expiry validation only; signature checks never
// tolerate leeway. The current time comes from an injected clock so expiry
// behavior is deterministic under test.
//
// # What this package must NOT do
//
//   - Persist anything. Verification is the only server-side lifecycle check
//     for access tokens.
//   - Support multiple signing algorithms or per-token secrets.
//   - Import any other authcore package.
package token
