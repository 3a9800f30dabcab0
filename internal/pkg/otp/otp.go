package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashkite/cashkite/internal/pkg/clock"
	"github.com/cashkite/cashkite/internal/pkg/hash"
)

var (
	// ErrCooldown is returned when a code was sent too recently.
	ErrCooldown = errors.New("otp: resend cooldown active")

	// ErrResendLimit is returned when the rolling-window resend cap is reached.
	ErrResendLimit = errors.New("otp: resend limit reached")

	// ErrDelivery wraps a Sender failure; no state is written in that case.
	ErrDelivery = errors.New("otp: code delivery failed")

	// ErrNotFound is returned when no pending code exists for the identifier.
	ErrNotFound = errors.New("otp: no pending code")

	// ErrExpired is returned when the pending code has passed its expiry.
	ErrExpired = errors.New("otp: code expired")

	// ErrMismatch is returned when the submitted code does not match.
	ErrMismatch = errors.New("otp: code mismatch")

	// ErrLockedOut is returned when too many wrong codes were submitted.
	ErrLockedOut = errors.New("otp: too many invalid attempts")
)

// Record is the persisted state for one identifier. At most one record lives
// per identifier; a new issuance overwrites it, no history is kept.
type Record struct {
	Identifier  string
	CodeHash    string
	ExpiresAt   time.Time
	RetryCount  int
	ResendCount int
	LastSentAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store persists one Record per identifier.
//
// Find returns ErrNotFound when no record exists. Issue upserts the record:
// when resetWindow is true the resend counter restarts at 1, otherwise the
// store increments it atomically (the engine never supplies ResendCount).
// IncrementRetry returns the post-increment value and must not lose
// increments under concurrent verifies of the same identifier.
type Store interface {
	Find(ctx context.Context, identifier string) (*Record, error)
	Issue(ctx context.Context, rec Record, resetWindow bool) error
	IncrementRetry(ctx context.Context, identifier string) (int, error)
	Delete(ctx context.Context, identifier string) error
}

// Sender delivers the plaintext code out of band (SMS, email). The code never
// travels any other way.
type Sender interface {
	Send(ctx context.Context, identifier, code string) error
}

// Options tunes the engine. Zero values fall back to the documented defaults.
type Options struct {
	// CodeLength is the number of digits per code. Default 6.
	CodeLength int
	// TTL is how long an issued code stays valid. Default 10 minutes.
	TTL time.Duration
	// ResendInterval is the minimum gap between issuances. Default 60 seconds.
	ResendInterval time.Duration
	// ResendWindow is the rolling window for the resend cap. Default 1 hour.
	ResendWindow time.Duration
	// MaxResends caps issuances within one window. Default 5.
	MaxResends int
	// MaxAttempts is the wrong-code lockout threshold. Default 5.
	MaxAttempts int
	// Generate overrides code generation, mainly for tests. Default Code.
	Generate func(length int) (string, error)
}

// Engine drives the issue and verify lifecycle of one-time codes.
type Engine struct {
	store  Store
	sender Sender
	hasher hash.Hash
	clock  clock.Clocker
	opt    Options
}

// NewEngine constructs an Engine around the given collaborators.
func NewEngine(store Store, sender Sender, hasher hash.Hash, clk clock.Clocker, opt Options) *Engine {
	if opt.CodeLength <= 0 {
		opt.CodeLength = 6
	}

	if opt.TTL <= 0 {
		opt.TTL = 10 * time.Minute
	}

	if opt.ResendInterval <= 0 {
		opt.ResendInterval = 60 * time.Second
	}

	if opt.ResendWindow <= 0 {
		opt.ResendWindow = time.Hour
	}

	if opt.MaxResends <= 0 {
		opt.MaxResends = 5
	}

	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = 5
	}

	if opt.Generate == nil {
		opt.Generate = Code
	}

	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		store:  store,
		sender: sender,
		hasher: hasher,
		clock:  clk,
		opt:    opt,
	}
}

// RequestCode issues a fresh code for the identifier and hands the plaintext
// to the Sender. The identifier must already be normalized by the caller; the
// code value is never returned.
func (e *Engine) RequestCode(ctx context.Context, identifier string) error {
	now := e.clock.Now()

	prior, err := e.store.Find(ctx, identifier)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if prior != nil {
		since := now.Sub(prior.LastSentAt)
		if since < e.opt.ResendInterval {
			return ErrCooldown
		}
		if since < e.opt.ResendWindow && prior.ResendCount >= e.opt.MaxResends {
			return ErrResendLimit
		}
	}

	code, err := e.opt.Generate(e.opt.CodeLength)
	if err != nil {
		return err
	}

	digest, err := e.hasher.Hash(code)
	if err != nil {
		return err
	}

	// Delivery happens before the upsert: when the channel is down no throttle
	// state is recorded and the caller may retry immediately.
	if err := e.sender.Send(ctx, identifier, code); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	rec := Record{
		Identifier: identifier,
		CodeHash:   string(digest),
		ExpiresAt:  now.Add(e.opt.TTL),
		LastSentAt: now,
	}
	resetWindow := prior == nil || now.Sub(prior.LastSentAt) > e.opt.ResendWindow

	return e.store.Issue(ctx, rec, resetWindow)
}

// VerifyCode checks a submitted code. A nil return means verified; the record
// is consumed and the same code cannot be replayed.
func (e *Engine) VerifyCode(ctx context.Context, identifier, code string) error {
	rec, err := e.store.Find(ctx, identifier)
	if err != nil {
		return err
	}

	// Expiry wins even over a correct code.
	if !e.clock.Now().Before(rec.ExpiresAt) {
		if err := e.store.Delete(ctx, identifier); err != nil {
			return err
		}
		return ErrExpired
	}

	if !e.hasher.Verify(rec.CodeHash, code) {
		attempts, err := e.store.IncrementRetry(ctx, identifier)
		if err != nil {
			return err
		}

		if attempts >= e.opt.MaxAttempts {
			if err := e.store.Delete(ctx, identifier); err != nil {
				return err
			}
			return ErrLockedOut
		}

		return ErrMismatch
	}

	if err := e.store.Delete(ctx, identifier); err != nil {
		return err
	}

	return nil
}
