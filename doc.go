// Package authgate provides a token and credential lifecycle engine for HTTP
// APIs: signed access/refresh tokens, a Redis-backed token registry and
// revocation list, and single-use verification codes for password reset and
// email confirmation.
//
// The package is designed for request-parallel server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([UserStore], [Mailer], [AuditSink]) and value
// types (Principal, AuditEvent, MetricsSnapshot). Token signing lives in
// token/, password hashing in password/, HTTP enforcement in middleware/, and
// all Redis coordination under internal/ — never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, cache key layouts, or encoding details in its
//     public API.
//   - Route HTTP requests or render response bodies (middleware only gates).
//   - Persist user records or deliver email itself; both go through the
//     collaborator interfaces supplied at Build time.
//
// # Correctness contract
//
// Authenticate is the admission path. It consults the revocation list exactly
// once per request, before signature verification, and fails closed: if Redis
// cannot be reached the request is denied, never allowed through. At most one
// live registry entry exists per (principal, kind); rotation issues a new token
// and supersedes the old one, it never mutates a token.
package authgate
