package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/jackc/pgx/v5"
)

const sqlApproveApplication = `
UPDATE merchant_applications
SET status = $2, review_note = NULLIF($3, ''), decided_at = now(), updated_at = now()
WHERE id = $1 AND status = $4
`

const sqlCreateProfile = `
INSERT INTO merchant_profiles (id, application_id, business_name, email, phone, category, city, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
`

// ApproveApplication flips the application to approved and creates the live
// merchant profile in one transaction. goerror.ErrNotFound means the row left
// the submitted state before the update landed.
func (s *DB) ApproveApplication(ctx context.Context, id int64, note string, profile entity.Profile) (err error) {
	ctx, span := s.startSpan(ctx, "ApproveApplication")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	tag, err := tx.Exec(ctx, sqlApproveApplication,
		id,
		entity.ApplicationStatusApproved,
		note,
		entity.ApplicationStatusSubmitted,
	)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}

	if _, err := tx.Exec(ctx, sqlCreateProfile,
		profile.ID,
		profile.ApplicationID,
		profile.BusinessName,
		profile.Email,
		profile.Phone,
		profile.Category,
		profile.City,
		profile.Status,
	); err != nil {
		return s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}
