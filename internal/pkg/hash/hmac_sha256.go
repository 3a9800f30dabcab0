package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HMACSHA256 produces hex-encoded HMAC-SHA256 digests keyed by a shared secret.
type HMACSHA256 struct {
	key []byte
}

// NewHMACSHA256 returns a keyed hasher.
func NewHMACSHA256(secret string) *HMACSHA256 {
	return &HMACSHA256{key: []byte(secret)}
}

// Hash returns the hex digest of plaintext. The error is always nil and exists
// to satisfy the Hash interface.
func (h *HMACSHA256) Hash(plaintext string) ([]byte, error) {
	return h.digest(plaintext), nil
}

// Verify compares the stored digest against plaintext in constant time.
func (h *HMACSHA256) Verify(hashed, plaintext string) bool {
	return subtle.ConstantTimeCompare([]byte(hashed), h.digest(plaintext)) == 1
}

func (h *HMACSHA256) digest(plaintext string) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(plaintext))
	sum := mac.Sum(nil)

	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)

	return out
}
