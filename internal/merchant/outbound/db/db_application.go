package db

import (
	"context"
	"fmt"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// A partial unique index on email over undecided rows keeps at most one live
// application per email; violations surface as goerror.ErrConflict.

const sqlSelectApplication = `
SELECT id, business_name, email, phone, category, city, status, email_verified_at, COALESCE(review_note, ''), decided_at, created_at, updated_at
FROM merchant_applications
`

const sqlCreateApplication = `
INSERT INTO merchant_applications (id, business_name, email, phone, category, city, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
`

const sqlMarkApplicationSubmitted = `
UPDATE merchant_applications
SET status = $2, email_verified_at = now(), updated_at = now()
WHERE id = $1 AND status = $3
`

const sqlRejectApplication = `
UPDATE merchant_applications
SET status = $2, review_note = NULLIF($3, ''), decided_at = now(), updated_at = now()
WHERE id = $1 AND status = $4
`

func (s *DB) scanApplication(row pgx.Row) (*entity.Application, error) {
	var (
		app        entity.Application
		verifiedAt pgtype.Timestamptz
		decidedAt  pgtype.Timestamptz
	)

	err := row.Scan(
		&app.ID,
		&app.BusinessName,
		&app.Email,
		&app.Phone,
		&app.Category,
		&app.City,
		&app.Status,
		&verifiedAt,
		&app.ReviewNote,
		&decidedAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, s.mapError(err)
	}

	if verifiedAt.Valid {
		app.EmailVerifiedAt = &verifiedAt.Time
	}
	if decidedAt.Valid {
		app.DecidedAt = &decidedAt.Time
	}

	return &app, nil
}

func (s *DB) GetLiveApplicationByEmail(ctx context.Context, email string) (app *entity.Application, err error) {
	ctx, span := s.startSpan(ctx, "GetLiveApplicationByEmail")
	defer func() { s.endSpan(span, err) }()

	live := []int16{
		int16(entity.ApplicationStatusPendingVerification),
		int16(entity.ApplicationStatusSubmitted),
	}

	app, err = s.scanApplication(s.conn.QueryRow(ctx, sqlSelectApplication+"WHERE email = $1 AND status = ANY($2)", email, live))
	return app, err
}

func (s *DB) GetApplicationByID(ctx context.Context, id int64) (app *entity.Application, err error) {
	ctx, span := s.startSpan(ctx, "GetApplicationByID")
	defer func() { s.endSpan(span, err) }()

	app, err = s.scanApplication(s.conn.QueryRow(ctx, sqlSelectApplication+"WHERE id = $1", id))
	return app, err
}

func (s *DB) GetApplicationList(ctx context.Context, filter entity.ApplicationListFilterData) (apps []entity.Application, total int64, err error) {
	ctx, span := s.startSpan(ctx, "GetApplicationList")
	defer func() { s.endSpan(span, err) }()

	where := "WHERE 1=1"
	args := make([]any, 0, 5)

	if filter.IsFilterByStatus {
		args = append(args, filter.Statuses)
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	if err = s.conn.QueryRow(ctx, "SELECT count(*) FROM merchant_applications "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Size)
	paging := fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	args = append(args, filter.Page)
	paging += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.conn.Query(ctx, sqlSelectApplication+where+paging, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	apps = make([]entity.Application, 0)
	for rows.Next() {
		app, sErr := s.scanApplication(rows)
		if sErr != nil {
			err = sErr
			return nil, 0, err
		}
		apps = append(apps, *app)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return apps, total, nil
}

func (s *DB) CreateApplication(ctx context.Context, app entity.NewApplication) (err error) {
	ctx, span := s.startSpan(ctx, "CreateApplication")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, sqlCreateApplication,
		app.ID,
		app.BusinessName,
		app.Email,
		app.Phone,
		app.Category,
		app.City,
		app.Status,
	)

	return s.mapError(err)
}

// MarkApplicationSubmitted stamps the verification instant and moves the
// application out of the pending state. goerror.ErrNotFound means the row is
// no longer pending.
func (s *DB) MarkApplicationSubmitted(ctx context.Context, id int64) (err error) {
	ctx, span := s.startSpan(ctx, "MarkApplicationSubmitted")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, sqlMarkApplicationSubmitted,
		id,
		entity.ApplicationStatusSubmitted,
		entity.ApplicationStatusPendingVerification,
	)
	if err != nil {
		return s.mapError(err)
	}

	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}

	return nil
}

func (s *DB) RejectApplication(ctx context.Context, id int64, note string) (err error) {
	ctx, span := s.startSpan(ctx, "RejectApplication")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, sqlRejectApplication,
		id,
		entity.ApplicationStatusRejected,
		note,
		entity.ApplicationStatusSubmitted,
	)
	if err != nil {
		return s.mapError(err)
	}

	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}

	return nil
}
