package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cashkite/cashkite/internal/auth/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/otp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const testSchema = `
CREATE TABLE users (
	id                bigint PRIMARY KEY,
	phone             text NOT NULL UNIQUE,
	email             text,
	full_name         text NOT NULL,
	role              text NOT NULL,
	status            smallint NOT NULL,
	credential        text NOT NULL,
	phone_verified_at timestamptz,
	created_at        timestamptz NOT NULL DEFAULT now(),
	updated_at        timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE auth_otp_codes (
	identifier   text PRIMARY KEY,
	code_hash    text NOT NULL,
	expires_at   timestamptz NOT NULL,
	retry_count  int NOT NULL DEFAULT 0,
	resend_count int NOT NULL DEFAULT 0,
	last_sent_at timestamptz NOT NULL,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);
`

// newTestDB spins up a throwaway Postgres container. Opt in with
// CASHKITE_INTEGRATION=1; without it the test is skipped.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	if os.Getenv("CASHKITE_INTEGRATION") == "" {
		t.Skip("set CASHKITE_INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cashkite_test"),
		tcpostgres.WithUsername("cashkite"),
		tcpostgres.WithPassword("cashkite"),
		tcpostgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("run postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return NewDB(pool, instrument.NewNoop())
}

func TestUserLifecycle(t *testing.T) {
	// Arrange
	store := newTestDB(t)
	ctx := context.Background()

	newUser := entity.NewUser{
		ID:       100,
		Phone:    "+6281234567890",
		FullName: "Member 7890",
		Role:     entity.RoleMember,
		Status:   entity.UserStatusActive,
	}

	// Act
	if err := store.CreateUser(ctx, newUser, "credential-hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Assert
	user, err := store.GetUserByPhone(ctx, "+6281234567890")
	if err != nil {
		t.Fatalf("GetUserByPhone: %v", err)
	}

	if user.ID != 100 || user.FullName != "Member 7890" || user.Role != entity.RoleMember {
		t.Fatalf("unexpected user: %+v", user)
	}

	if user.Email != "" {
		t.Fatalf("email = %q, want empty for a user created without one", user.Email)
	}

	if user.PhoneVerifiedAt == nil {
		t.Fatal("phone_verified_at should be stamped at creation")
	}

	// Same phone again is a conflict.
	err = store.CreateUser(ctx, entity.NewUser{
		ID:       101,
		Phone:    "+6281234567890",
		FullName: "Member 7890",
		Role:     entity.RoleMember,
		Status:   entity.UserStatusActive,
	}, "other-hash")
	if !errors.Is(err, goerror.ErrConflict) {
		t.Fatalf("duplicate phone error = %v, want conflict", err)
	}

	// Backfill fills an empty email and refuses to overwrite it afterwards.
	if err := store.BackfillUserEmail(ctx, 100, "first@example.com"); err != nil {
		t.Fatalf("BackfillUserEmail: %v", err)
	}
	if err := store.BackfillUserEmail(ctx, 100, "second@example.com"); err != nil {
		t.Fatalf("BackfillUserEmail again: %v", err)
	}

	user, err = store.GetUserByID(ctx, 100)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user.Email != "first@example.com" {
		t.Fatalf("email = %q, want the first backfilled address", user.Email)
	}

	if _, err := store.GetUserByPhone(ctx, "+0000000000"); !errors.Is(err, goerror.ErrNotFound) {
		t.Fatalf("unknown phone error = %v, want not found", err)
	}
}

func TestMarkPhoneVerifiedIsIdempotent(t *testing.T) {
	// Arrange
	store := newTestDB(t)
	ctx := context.Background()

	if _, err := store.conn.Exec(ctx, `
		INSERT INTO users (id, phone, full_name, role, status, credential)
		VALUES (200, '+6289999999999', 'Seeded Staff', 'staff', 1, 'seeded-hash')
	`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	// Act
	if err := store.MarkPhoneVerified(ctx, 200); err != nil {
		t.Fatalf("MarkPhoneVerified: %v", err)
	}

	user, err := store.GetUserByID(ctx, 200)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	first := user.PhoneVerifiedAt
	if first == nil {
		t.Fatal("phone_verified_at should be set after the first stamp")
	}

	if err := store.MarkPhoneVerified(ctx, 200); err != nil {
		t.Fatalf("MarkPhoneVerified again: %v", err)
	}

	// Assert
	user, err = store.GetUserByID(ctx, 200)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user.PhoneVerifiedAt == nil || !user.PhoneVerifiedAt.Equal(*first) {
		t.Fatalf("phone_verified_at moved from %v to %v", first, user.PhoneVerifiedAt)
	}
}

func TestCodeStoreLifecycle(t *testing.T) {
	// Arrange
	store := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if _, err := store.Find(ctx, "+6281234567890"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("Find on empty store = %v, want otp.ErrNotFound", err)
	}

	rec := otp.Record{
		Identifier: "+6281234567890",
		CodeHash:   "hash-1",
		ExpiresAt:  now.Add(10 * time.Minute),
		LastSentAt: now,
	}

	// Act: first issuance opens the window.
	if err := store.Issue(ctx, rec, true); err != nil {
		t.Fatalf("Issue reset: %v", err)
	}

	got, err := store.Find(ctx, "+6281234567890")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.ResendCount != 1 || got.RetryCount != 0 || got.CodeHash != "hash-1" {
		t.Fatalf("after reset issue: %+v", got)
	}

	// A resend within the window advances the counter and replaces the hash.
	rec.CodeHash = "hash-2"
	rec.LastSentAt = now.Add(time.Minute)
	if err := store.Issue(ctx, rec, false); err != nil {
		t.Fatalf("Issue continue: %v", err)
	}

	got, err = store.Find(ctx, "+6281234567890")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.ResendCount != 2 || got.CodeHash != "hash-2" {
		t.Fatalf("after continue issue: %+v", got)
	}

	// Wrong attempts count atomically.
	for want := 1; want <= 3; want++ {
		count, err := store.IncrementRetry(ctx, "+6281234567890")
		if err != nil {
			t.Fatalf("IncrementRetry: %v", err)
		}
		if count != want {
			t.Fatalf("retry count = %d, want %d", count, want)
		}
	}

	// A fresh issuance resets the attempt counter.
	rec.CodeHash = "hash-3"
	if err := store.Issue(ctx, rec, false); err != nil {
		t.Fatalf("Issue after retries: %v", err)
	}
	got, err = store.Find(ctx, "+6281234567890")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.RetryCount != 0 || got.ResendCount != 3 {
		t.Fatalf("after reissue: %+v", got)
	}

	// Assert: delete consumes the record.
	if err := store.Delete(ctx, "+6281234567890"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Find(ctx, "+6281234567890"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("Find after delete = %v, want otp.ErrNotFound", err)
	}
	if _, err := store.IncrementRetry(ctx, "+6281234567890"); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("IncrementRetry after delete = %v, want otp.ErrNotFound", err)
	}
}

func TestDeleteExpiredCodes(t *testing.T) {
	// Arrange
	store := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := otp.Record{
		Identifier: "+6281111111111",
		CodeHash:   "stale",
		ExpiresAt:  now.Add(-2 * time.Hour),
		LastSentAt: now.Add(-2*time.Hour - 10*time.Minute),
	}
	fresh := otp.Record{
		Identifier: "+6282222222222",
		CodeHash:   "fresh",
		ExpiresAt:  now.Add(10 * time.Minute),
		LastSentAt: now,
	}

	if err := store.Issue(ctx, stale, true); err != nil {
		t.Fatalf("Issue stale: %v", err)
	}
	if err := store.Issue(ctx, fresh, true); err != nil {
		t.Fatalf("Issue fresh: %v", err)
	}

	// Act
	deleted, err := store.DeleteExpiredCodes(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpiredCodes: %v", err)
	}

	// Assert
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	if _, err := store.Find(ctx, stale.Identifier); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("stale record should be gone, got %v", err)
	}

	if _, err := store.Find(ctx, fresh.Identifier); err != nil {
		t.Fatalf("fresh record should survive, got %v", err)
	}
}
