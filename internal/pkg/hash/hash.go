package hash

// Hash is a one-way hasher with a matching verifier.
type Hash interface {
	Hash(plaintext string) ([]byte, error)
	Verify(hashed, plaintext string) bool
}
