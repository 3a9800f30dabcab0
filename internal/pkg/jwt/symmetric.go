package jwt

import (
	"errors"
	"strconv"
	"time"

	libJWT "github.com/golang-jwt/jwt/v5"
)

const minSecretBytes = 64

// Symmetric signs and verifies tokens with an HMAC-SHA512 secret.
type Symmetric struct {
	secret    []byte
	issuer    string
	audiences []string
	ttl       time.Duration
	clock     clocker
	uuid      generator
}

// NewHS512 builds a Symmetric signer. The secret must carry at least 64
// bytes, matching the HS512 output size.
func NewHS512(cfg Config) (*Symmetric, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, ErrSigningKeyTooShort
	}

	return &Symmetric{
		secret:    cfg.Secret,
		issuer:    cfg.Issuer,
		audiences: cfg.Audiences,
		ttl:       cfg.TTLMinutes,
		clock:     cfg.Clock,
		uuid:      cfg.UUID,
	}, nil
}

// Generate issues a signed token for the user with the full registered claim
// set stamped from the injected clock.
func (s *Symmetric) Generate(uid int64, phone, role string) (string, error) {
	if len(s.secret) < minSecretBytes {
		return "", ErrSigningKeyTooShort
	}

	claims := Claims{
		RegisteredClaims: s.registeredClaims(uid),
		UserID:           uid,
		UserPhone:        phone,
		UserRole:         role,
	}

	return libJWT.NewWithClaims(libJWT.SigningMethodHS512, claims).SignedString(s.secret)
}

func (s *Symmetric) registeredClaims(uid int64) libJWT.RegisteredClaims {
	now := s.clock.Now()

	return libJWT.RegisteredClaims{
		ID:        s.uuid.Generate(),
		Subject:   strconv.FormatInt(uid, 10),
		Issuer:    s.issuer,
		Audience:  s.audiences,
		IssuedAt:  libJWT.NewNumericDate(now),
		NotBefore: libJWT.NewNumericDate(now),
		ExpiresAt: libJWT.NewNumericDate(now.Add(s.ttl)),
	}
}

// Verify parses tokenStr, enforcing the signing method, issuer, audience,
// and expiry.
func (s *Symmetric) Verify(tokenStr string) (Claims, error) {
	if len(s.secret) < minSecretBytes {
		return Claims{}, ErrSigningKeyTooShort
	}

	var claims Claims
	token, err := libJWT.ParseWithClaims(tokenStr, &claims, s.keyFor, s.parseOptions()...)
	if err != nil {
		if errors.Is(err, libJWT.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}

		return Claims{}, err
	}

	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}

func (s *Symmetric) parseOptions() []libJWT.ParserOption {
	return []libJWT.ParserOption{
		libJWT.WithIssuer(s.issuer),
		libJWT.WithAudience(s.audiences...),
		libJWT.WithValidMethods([]string{libJWT.SigningMethodHS512.Alg()}),
		libJWT.WithIssuedAt(),
		libJWT.WithExpirationRequired(),
	}
}

func (s *Symmetric) keyFor(t *libJWT.Token) (any, error) {
	if t.Method != libJWT.SigningMethodHS512 {
		return nil, ErrInvalidSigningMethod
	}

	return s.secret, nil
}
