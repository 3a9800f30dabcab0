package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cashkite/cashkite/internal/pkg/hash"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]Record)}
}

func (s *fakeStore) Find(_ context.Context, identifier string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *fakeStore) Issue(_ context.Context, rec Record, resetWindow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.recs[rec.Identifier]
	if resetWindow || !ok {
		rec.ResendCount = 1
		rec.CreatedAt = rec.LastSentAt
	} else {
		rec.ResendCount = prev.ResendCount + 1
		rec.CreatedAt = prev.CreatedAt
	}
	rec.RetryCount = 0
	rec.UpdatedAt = rec.LastSentAt

	s.recs[rec.Identifier] = rec
	return nil
}

func (s *fakeStore) IncrementRetry(_ context.Context, identifier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[identifier]
	if !ok {
		return 0, ErrNotFound
	}
	rec.RetryCount++
	s.recs[identifier] = rec
	return rec.RetryCount, nil
}

func (s *fakeStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.recs, identifier)
	return nil
}

func (s *fakeStore) get(t *testing.T, identifier string) Record {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[identifier]
	if !ok {
		t.Fatalf("expected a stored record for %q", identifier)
	}
	return rec
}

type fakeSender struct {
	sent []string
	err  error
}

func (s *fakeSender) Send(_ context.Context, _, code string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, code)
	return nil
}

func fixedCode(code string) func(int) (string, error) {
	return func(int) (string, error) { return code, nil }
}

func newTestEngine(opt Options) (*Engine, *fakeStore, *fakeSender, *fakeClock) {
	store := newFakeStore()
	sender := &fakeSender{}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}

	eng := NewEngine(store, sender, hash.NewHMACSHA256("unit-test-secret"), clk, opt)
	return eng, store, sender, clk
}

func TestRequestCodeStoresHashNotPlaintext(t *testing.T) {
	// Arrange
	eng, store, sender, _ := newTestEngine(Options{Generate: fixedCode("483920")})
	ctx := context.Background()

	// Act
	if err := eng.RequestCode(ctx, "+6281234567890"); err != nil {
		t.Fatalf("request code failed: %v", err)
	}

	// Assert
	if len(sender.sent) != 1 || sender.sent[0] != "483920" {
		t.Fatalf("expected one delivery of 483920, got %v", sender.sent)
	}
	rec := store.get(t, "+6281234567890")
	if rec.CodeHash == "483920" || rec.CodeHash == "" {
		t.Fatalf("code hash must be set and must not be the plaintext, got %q", rec.CodeHash)
	}
	if rec.ResendCount != 1 || rec.RetryCount != 0 {
		t.Fatalf("fresh record should have resend=1 retry=0, got resend=%d retry=%d", rec.ResendCount, rec.RetryCount)
	}
}

func TestRequestCodeCooldown(t *testing.T) {
	// Arrange
	eng, _, _, clk := newTestEngine(Options{})
	ctx := context.Background()
	if err := eng.RequestCode(ctx, "+6281234567890"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	// Act
	clk.advance(59 * time.Second)
	err := eng.RequestCode(ctx, "+6281234567890")

	// Assert
	if !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected ErrCooldown within the resend interval, got %v", err)
	}

	// One more second puts us past the interval.
	clk.advance(2 * time.Second)
	if err := eng.RequestCode(ctx, "+6281234567890"); err != nil {
		t.Fatalf("request after cooldown failed: %v", err)
	}
}

func TestRequestCodeHourlyCapAndWindowReset(t *testing.T) {
	// Arrange
	eng, store, _, clk := newTestEngine(Options{})
	ctx := context.Background()
	const phone = "+6281234567890"

	for i := 0; i < 5; i++ {
		if err := eng.RequestCode(ctx, phone); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		clk.advance(61 * time.Second)
	}

	// Act
	err := eng.RequestCode(ctx, phone)

	// Assert
	if !errors.Is(err, ErrResendLimit) {
		t.Fatalf("expected ErrResendLimit on the 6th request, got %v", err)
	}

	// Once the window has fully elapsed since the last send, the counter
	// restarts at 1.
	clk.advance(time.Hour)
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request after window elapsed failed: %v", err)
	}
	if got := store.get(t, phone).ResendCount; got != 1 {
		t.Fatalf("expected resend count reset to 1, got %d", got)
	}
}

func TestVerifyCodeRoundTrip(t *testing.T) {
	// Arrange
	eng, _, _, _ := newTestEngine(Options{Generate: fixedCode("483920")})
	ctx := context.Background()
	const phone = "+6281234567890"
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Act
	err := eng.VerifyCode(ctx, phone, "483920")

	// Assert
	if err != nil {
		t.Fatalf("expected the correct code to verify, got %v", err)
	}

	// The record is consumed; the same code cannot be replayed.
	if err := eng.VerifyCode(ctx, phone, "483920"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replay, got %v", err)
	}
}

func TestVerifyCodeNoPendingRecord(t *testing.T) {
	// Arrange
	eng, _, _, _ := newTestEngine(Options{})

	// Act
	err := eng.VerifyCode(context.Background(), "+6281234567890", "123456")

	// Assert
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyCodeWrongCodeLockout(t *testing.T) {
	// Arrange
	eng, store, _, _ := newTestEngine(Options{Generate: fixedCode("483920")})
	ctx := context.Background()
	const phone = "+6281234567890"
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Act + Assert: four wrong attempts stay recoverable.
	for i := 1; i <= 4; i++ {
		err := eng.VerifyCode(ctx, phone, "000000")
		if !errors.Is(err, ErrMismatch) {
			t.Fatalf("attempt %d: expected ErrMismatch, got %v", i, err)
		}
		if got := store.get(t, phone).RetryCount; got != i {
			t.Fatalf("attempt %d: expected retry count %d, got %d", i, i, got)
		}
	}

	// The fifth wrong attempt locks the identifier out and deletes the record.
	if err := eng.VerifyCode(ctx, phone, "000000"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut on attempt 5, got %v", err)
	}
	if err := eng.VerifyCode(ctx, phone, "483920"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after lockout, got %v", err)
	}
}

func TestVerifyCodeExpiredBeatsCorrectCode(t *testing.T) {
	// Arrange
	eng, _, _, clk := newTestEngine(Options{Generate: fixedCode("483920")})
	ctx := context.Background()
	const phone = "+6281234567890"
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Act
	clk.advance(10*time.Minute + time.Second)
	err := eng.VerifyCode(ctx, phone, "483920")

	// Assert
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired for a correct but stale code, got %v", err)
	}

	// Expiry detection consumes the record too.
	if err := eng.VerifyCode(ctx, phone, "483920"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry delete, got %v", err)
	}
}

func TestRequestCodeReissueResetsRetries(t *testing.T) {
	// Arrange
	eng, store, _, clk := newTestEngine(Options{Generate: fixedCode("483920")})
	ctx := context.Background()
	const phone = "+6281234567890"
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := eng.VerifyCode(ctx, phone, "999999"); !errors.Is(err, ErrMismatch) {
			t.Fatalf("expected ErrMismatch, got %v", err)
		}
	}

	// Act
	clk.advance(61 * time.Second)
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("reissue failed: %v", err)
	}

	// Assert
	rec := store.get(t, phone)
	if rec.RetryCount != 0 {
		t.Fatalf("reissue must reset retry count, got %d", rec.RetryCount)
	}
	if rec.ResendCount != 2 {
		t.Fatalf("reissue within the window should increment resend count to 2, got %d", rec.ResendCount)
	}
}

func TestRequestCodeDeliveryFailureWritesNothing(t *testing.T) {
	// Arrange
	eng, store, sender, _ := newTestEngine(Options{})
	sender.err = errors.New("gateway unreachable")
	ctx := context.Background()
	const phone = "+6281234567890"

	// Act
	err := eng.RequestCode(ctx, phone)

	// Assert
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if _, err := store.Find(ctx, phone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("a failed delivery must not persist throttle state, got %v", err)
	}

	// With no state recorded the caller may retry immediately.
	sender.err = nil
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("retry after delivery failure failed: %v", err)
	}
}

func TestVerifyCodeConcurrentWrongAttempts(t *testing.T) {
	// Arrange
	eng, store, _, _ := newTestEngine(Options{Generate: fixedCode("483920"), MaxAttempts: 100})
	ctx := context.Background()
	const phone = "+6281234567890"
	if err := eng.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:errcheck // only the stored counter matters here
			eng.VerifyCode(ctx, phone, "000000")
		}()
	}
	wg.Wait()

	// Assert: no increment was lost.
	if got := store.get(t, phone).RetryCount; got != 10 {
		t.Fatalf("expected retry count 10 after 10 concurrent attempts, got %d", got)
	}
}
