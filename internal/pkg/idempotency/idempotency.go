// Package idempotency guards replayed operations behind a Redis state key.
//
// A caller wraps the operation in Exec with a request-scoped key. The first
// execution claims the key and runs; replays observe the recorded outcome and
// fail fast with one of the ErrAlready errors.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Replay outcomes surfaced by Exec.
var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrAlreadyFailed     = errors.New("operation already failed")
	ErrInvalidState      = errors.New("invalid state")
)

// State is the recorded lifecycle of one operation key.
type State string

const (
	StateNone       State = "none"        // key unclaimed, operation may proceed
	StateInProgress State = "in_progress" // another execution holds the key
	StateCompleted  State = "completed"   // a previous execution succeeded
	StateFailed     State = "failed"      // a previous execution failed
	StateError      State = "error"       // the tracker itself failed
)

func (s State) String() string {
	return string(s)
}

// Idempotency tracks operation state by key.
type Idempotency interface {
	Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error)
	MarkCompleted(ctx context.Context, key string, ttl time.Duration) error
	MarkFailed(ctx context.Context, key string, ttl time.Duration) error
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

const (
	defaultLockDuration = time.Minute
	defaultStateTTL     = time.Minute
)

// Option tunes Exec.
type Option func(*execOptions)

type execOptions struct {
	lockDuration time.Duration
	stateTTL     time.Duration
}

// WithLockDuration bounds how long an in-progress claim lives when the
// process dies mid-operation.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lockDuration = d }
}

// WithStateTTL bounds how long a completed or failed outcome is remembered.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.stateTTL = d }
}

// StateTracker is the Redis-backed implementation.
type StateTracker struct {
	client *redis.Client
	prefix string
}

// New returns a tracker writing under the idempotency: prefix.
func New(client *redis.Client) *StateTracker {
	return &StateTracker{client: client, prefix: "idempotency:"}
}

func (s *StateTracker) key(k string) string {
	return s.prefix + k
}

// Acquire claims key for a new execution. StateNone means the claim
// succeeded; any other state reports what a previous execution left behind.
func (s *StateTracker) Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error) {
	claimed, err := s.claim(ctx, key, lockDuration)
	if err != nil {
		return StateError, err
	}
	if claimed {
		return StateNone, nil
	}

	current, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// The claim expired between SetNX and Get; retry once.
		claimed, err = s.claim(ctx, key, lockDuration)
		if err != nil {
			return StateError, err
		}
		if claimed {
			return StateNone, nil
		}

		return StateError, ErrInvalidState
	}
	if err != nil {
		return StateError, err
	}

	switch State(current) {
	case StateInProgress, StateCompleted, StateFailed:
		return State(current), nil
	}

	return StateError, ErrInvalidState
}

func (s *StateTracker) claim(ctx context.Context, key string, lockDuration time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), StateInProgress.String(), lockDuration).Result()
}

// MarkCompleted records a successful outcome for key.
func (s *StateTracker) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), StateCompleted.String(), ttl).Err()
}

// MarkFailed records a failed outcome for key.
func (s *StateTracker) MarkFailed(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), StateFailed.String(), ttl).Err()
}

// Exec runs fn under the given key, recording the outcome so replays
// short-circuit with the matching ErrAlready error.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := execSettings(opts)

	state, err := s.Acquire(ctx, key, o.lockDuration)
	if err != nil {
		return err
	}

	if replay := replayError(state); replay != nil {
		return replay
	}

	runErr := fn(ctx)
	if runErr == nil {
		return s.MarkCompleted(ctx, key, o.stateTTL)
	}

	if err := s.MarkFailed(ctx, key, o.stateTTL); err != nil {
		return err
	}

	return runErr
}

func execSettings(opts []Option) execOptions {
	o := execOptions{lockDuration: defaultLockDuration, stateTTL: defaultStateTTL}
	for _, opt := range opts {
		opt(&o)
	}

	if o.lockDuration <= 0 {
		o.lockDuration = defaultLockDuration
	}

	if o.stateTTL <= 0 {
		o.stateTTL = defaultStateTTL
	}

	return o
}

// replayError maps a recorded state to the error Exec surfaces for it.
// StateNone maps to nil so the operation proceeds.
func replayError(state State) error {
	switch state {
	case StateInProgress:
		return ErrAlreadyInProgress
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		return ErrAlreadyFailed
	default:
		return nil
	}
}
