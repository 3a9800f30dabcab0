package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSigningMethod is returned when a token was signed with anything but HS512.
	ErrInvalidSigningMethod = errors.New("invalid JWT signing method")

	// ErrSigningKeyTooShort is returned when the HS512 key carries fewer than 64 bytes.
	ErrSigningKeyTooShort = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")

	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = errors.New("JWT token has expired")

	// ErrInvalidToken is returned for tokens that parse but fail validation.
	ErrInvalidToken = errors.New("invalid token")
)

// JWT issues and verifies access tokens.
type JWT interface {
	Generate(uid int64, phone, role string) (string, error)
	Verify(tokenStr string) (Claims, error)
}

// clocker supplies the claim timestamps; generator mints jti values.
type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

// Config collects the signer inputs.
type Config struct {
	Secret     []byte        // HMAC signing key
	Issuer     string        // iss claim
	Audiences  []string      // accepted aud values
	TTLMinutes time.Duration // token lifetime
	Clock      clocker
	UUID       generator // mints the jti claim
}

// Claims couples the registered claim set with the user payload.
type Claims struct {
	jwt.RegisteredClaims

	UserID    int64  `json:"user_id,string"`
	UserPhone string `json:"user_phone"` // canonical E.164 form
	UserRole  string `json:"user_role"`  // drives authorization checks
}

type authKey struct{}

// SetAuth stores verified claims in the context.
func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, authKey{}, clm)
}

// GetAuth returns the claims stored in the context, or nil outside an
// authenticated request.
func GetAuth(ctx context.Context) *Claims {
	clm, ok := ctx.Value(authKey{}).(Claims)
	if !ok {
		return nil
	}

	return &clm
}
