// Package token signs and verifies the compact signed tokens used by the
// authgate engine. A token carries an issuer, a subject (principal email),
// a kind (access or refresh), and an expiration instant, signed with HMAC-SHA256
// over a shared symmetric secret.
//
// # Architecture boundaries
//
// This package owns ONLY the cryptographic codec. It has no Redis access, no
// registry or revocation knowledge, and no side effects: Verify is pure. A
// token being cryptographically valid says nothing about whether it has been
// revoked — that is the engine's call to make.
package token
