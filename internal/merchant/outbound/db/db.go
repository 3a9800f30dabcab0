package db

import (
	"context"
	"errors"

	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// uniqueViolation is the Postgres error code for a duplicate key.
const uniqueViolation = "23505"

// DB runs the merchant queries against a pgx pool and traces each call.
type DB struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, ins: ins}
}

// mapError folds pgx failures into the domain error set. Missing rows
// become goerror.ErrNotFound and duplicate keys become
// goerror.ErrConflict; anything else passes through unchanged.
func (s *DB) mapError(err error) error {
	var pgErr *pgconn.PgError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return goerror.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return goerror.ErrConflict
	default:
		return err
	}
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("merchant.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !expectedMiss(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// expectedMiss reports whether err is a lookup outcome the caller
// handles itself rather than a database failure worth flagging.
func expectedMiss(err error) bool {
	return errors.Is(err, goerror.ErrNotFound) || errors.Is(err, goerror.ErrConflict)
}
