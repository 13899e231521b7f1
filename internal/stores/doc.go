// Package stores holds the Redis adapters for the token registry, the
// revocation list, and the verification code store. Key layouts and error
// normalization live here; callers never see Redis types.
//
// All operations are per-key atomic. There are no cross-key transactions:
// concurrent writers to the same registry slot resolve last-writer-wins,
// and the engine tolerates that for concurrent logins.
package stores
