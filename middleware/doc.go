// Package middleware exposes the HTTP admission gate built on top of
// authgate's Engine.Authenticate.
//
// # Guard
//
// [Guard] reads the Authorization bearer token, lets exact-match public
// routes through untouched, and otherwise delegates the allow/deny decision
// to the engine: a missing token or a revoked token denies with 403, an
// invalid or expired token with 401, and a cache outage with 503 — the gate
// fails closed. On success the resolved [authgate.Principal] is attached to
// the request context and is read-only downstream.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself, touch Redis, or parse tokens — all
// decisions are delegated to Engine.Authenticate.
package middleware
