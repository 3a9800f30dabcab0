package db

import (
	"context"
	"errors"
	"time"

	"github.com/cashkite/cashkite/internal/pkg/otp"
	"github.com/jackc/pgx/v5"
)

// The auth_otp_codes table backs the login code workflow, one row per phone
// number. DB-side arithmetic keeps the counters safe under concurrent logins
// for the same phone.

const sqlFindCode = `
SELECT identifier, code_hash, expires_at, retry_count, resend_count, last_sent_at, created_at, updated_at
FROM auth_otp_codes
WHERE identifier = $1
`

// Reset branch: a fresh throttle window, the resend counter restarts at 1.
const sqlIssueCodeReset = `
INSERT INTO auth_otp_codes (identifier, code_hash, expires_at, retry_count, resend_count, last_sent_at, created_at, updated_at)
VALUES ($1, $2, $3, 0, 1, $4, now(), now())
ON CONFLICT (identifier) DO UPDATE SET
	code_hash    = EXCLUDED.code_hash,
	expires_at   = EXCLUDED.expires_at,
	retry_count  = 0,
	resend_count = 1,
	last_sent_at = EXCLUDED.last_sent_at,
	updated_at   = now()
`

// Continue branch: same window, the resend counter advances atomically.
const sqlIssueCodeContinue = `
INSERT INTO auth_otp_codes (identifier, code_hash, expires_at, retry_count, resend_count, last_sent_at, created_at, updated_at)
VALUES ($1, $2, $3, 0, 1, $4, now(), now())
ON CONFLICT (identifier) DO UPDATE SET
	code_hash    = EXCLUDED.code_hash,
	expires_at   = EXCLUDED.expires_at,
	retry_count  = 0,
	resend_count = auth_otp_codes.resend_count + 1,
	last_sent_at = EXCLUDED.last_sent_at,
	updated_at   = now()
`

const sqlIncrementCodeRetry = `
UPDATE auth_otp_codes
SET retry_count = retry_count + 1, updated_at = now()
WHERE identifier = $1
RETURNING retry_count
`

const sqlDeleteCode = `
DELETE FROM auth_otp_codes WHERE identifier = $1
`

const sqlDeleteExpiredCodes = `
DELETE FROM auth_otp_codes WHERE expires_at < $1
`

func (s *DB) Find(ctx context.Context, identifier string) (rec *otp.Record, err error) {
	ctx, span := s.startSpan(ctx, "FindCode")
	defer func() { s.endSpan(span, err) }()

	var out otp.Record
	err = s.conn.QueryRow(ctx, sqlFindCode, identifier).Scan(
		&out.Identifier,
		&out.CodeHash,
		&out.ExpiresAt,
		&out.RetryCount,
		&out.ResendCount,
		&out.LastSentAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (s *DB) Issue(ctx context.Context, rec otp.Record, resetWindow bool) (err error) {
	ctx, span := s.startSpan(ctx, "IssueCode")
	defer func() { s.endSpan(span, err) }()

	query := sqlIssueCodeContinue
	if resetWindow {
		query = sqlIssueCodeReset
	}

	_, err = s.conn.Exec(ctx, query, rec.Identifier, rec.CodeHash, rec.ExpiresAt, rec.LastSentAt)
	return err
}

func (s *DB) IncrementRetry(ctx context.Context, identifier string) (count int, err error) {
	ctx, span := s.startSpan(ctx, "IncrementCodeRetry")
	defer func() { s.endSpan(span, err) }()

	err = s.conn.QueryRow(ctx, sqlIncrementCodeRetry, identifier).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, otp.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (s *DB) Delete(ctx context.Context, identifier string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteCode")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, sqlDeleteCode, identifier)
	return err
}

// DeleteExpiredCodes removes rows whose expiry is before the given cutoff and
// reports how many were dropped. The sweeper calls this with a cutoff old
// enough that no resend throttle can still reference the row.
func (s *DB) DeleteExpiredCodes(ctx context.Context, before time.Time) (deleted int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpiredCodes")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, sqlDeleteExpiredCodes, before)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
