package db

import (
	"context"

	"github.com/cashkite/cashkite/internal/auth/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const sqlSelectUser = `
SELECT id, phone, COALESCE(email, ''), full_name, role, status, phone_verified_at, created_at, updated_at
FROM users
`

const sqlCreateUser = `
INSERT INTO users (id, phone, email, full_name, role, status, credential, phone_verified_at, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, now(), now(), now())
`

const sqlMarkPhoneVerified = `
UPDATE users
SET phone_verified_at = now(), updated_at = now()
WHERE id = $1 AND phone_verified_at IS NULL
`

const sqlBackfillUserEmail = `
UPDATE users
SET email = $2, updated_at = now()
WHERE id = $1 AND (email IS NULL OR email = '')
`

func (s *DB) scanUser(row pgx.Row) (*entity.User, error) {
	var (
		user       entity.User
		verifiedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&user.ID,
		&user.Phone,
		&user.Email,
		&user.FullName,
		&user.Role,
		&user.Status,
		&verifiedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	if verifiedAt.Valid {
		t := verifiedAt.Time
		user.PhoneVerifiedAt = &t
	}

	return &user, nil
}

func (s *DB) GetUserByPhone(ctx context.Context, phone string) (user *entity.User, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByPhone")
	defer func() { s.endSpan(span, err) }()

	user, err = s.scanUser(s.conn.QueryRow(ctx, sqlSelectUser+"WHERE phone = $1", phone))
	return user, err
}

func (s *DB) GetUserByID(ctx context.Context, id int64) (user *entity.User, err error) {
	ctx, span := s.startSpan(ctx, "GetUserByID")
	defer func() { s.endSpan(span, err) }()

	user, err = s.scanUser(s.conn.QueryRow(ctx, sqlSelectUser+"WHERE id = $1", id))
	return user, err
}

// CreateUser inserts the account created on first verified login. The phone
// is verified by construction, so the row starts with the stamp set.
func (s *DB) CreateUser(ctx context.Context, user entity.NewUser, credential string) (err error) {
	ctx, span := s.startSpan(ctx, "CreateUser")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, sqlCreateUser,
		user.ID,
		user.Phone,
		user.Email,
		user.FullName,
		user.Role,
		user.Status,
		credential,
	)
	return s.mapError(err)
}

// MarkPhoneVerified stamps the verification time once. Rows already stamped
// are left untouched, so repeated logins are no-ops here.
func (s *DB) MarkPhoneVerified(ctx context.Context, id int64) (err error) {
	ctx, span := s.startSpan(ctx, "MarkPhoneVerified")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, sqlMarkPhoneVerified, id)
	return s.mapError(err)
}

// BackfillUserEmail fills the email only while the account has none; it never
// overwrites an address the user already confirmed.
func (s *DB) BackfillUserEmail(ctx context.Context, id int64, email string) (err error) {
	ctx, span := s.startSpan(ctx, "BackfillUserEmail")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, sqlBackfillUserEmail, id, email)
	return s.mapError(err)
}
