// Package hash provides helpers for hashing and verifying secrets.
//
// Only hashes are ever stored: one-time codes go through the keyed HMAC
// hasher, account credentials through bcrypt. Verification compares the
// submitted plaintext against the stored hash in constant time.
package hash
