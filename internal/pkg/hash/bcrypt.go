package hash

import "golang.org/x/crypto/bcrypt"

// Bcrypt hashes with bcrypt plus a pepper appended to the plaintext. The
// pepper lives in configuration, never next to the stored hash.
type Bcrypt struct {
	cost   int
	pepper string
}

// NewBcrypt returns a bcrypt hasher with the given work factor. Cost follows
// bcrypt.DefaultCost semantics and pepper may be empty.
func NewBcrypt(cost int, pepper string) *Bcrypt {
	return &Bcrypt{cost: cost, pepper: pepper}
}

// Hash derives a bcrypt hash from the peppered plaintext.
func (b *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword(b.season(plaintext), b.cost)
}

// Verify reports whether plaintext matches the stored hash.
func (b *Bcrypt) Verify(hashed, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), b.season(plaintext)) == nil
}

func (b *Bcrypt) season(plaintext string) []byte {
	return []byte(plaintext + b.pepper)
}
