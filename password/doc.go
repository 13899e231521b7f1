// Package password hashes and verifies user passwords with argon2id in PHC
// string format. Hashes are self-describing, so parameters can be tightened
// over time without invalidating stored credentials.
package password
