package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/otp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "merchant:otp:"

// Cache persists verification codes as one Redis hash per email, mirroring
// the columns of the Postgres-backed store. The key TTL must cover the resend
// window plus the code TTL so throttle state outlives the code itself.
type Cache struct {
	conn   *redis.Client
	keyTTL time.Duration
	ins    instrument.Instrumentation
}

func NewCache(conn *redis.Client, keyTTL time.Duration, ins instrument.Instrumentation) *Cache {
	return &Cache{
		conn:   conn,
		keyTTL: keyTTL,
		ins:    ins,
	}
}

func (s *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("merchant.outbound.cache").Start(ctx, name)
}

func (s *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, otp.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Cache) Find(ctx context.Context, identifier string) (rec *otp.Record, err error) {
	ctx, span := s.startSpan(ctx, "FindCode")
	defer func() { s.endSpan(span, err) }()

	vals, err := s.conn.HGetAll(ctx, keyPrefix+identifier).Result()
	if err != nil {
		return nil, err
	}

	// A hash without code_hash is leftover counter state from an increment
	// that raced a delete; it expires on its own and counts as absent.
	if len(vals) == 0 || vals["code_hash"] == "" {
		return nil, otp.ErrNotFound
	}

	return &otp.Record{
		Identifier:  identifier,
		CodeHash:    vals["code_hash"],
		ExpiresAt:   parseUnix(vals["expires_at"]),
		RetryCount:  parseInt(vals["retry_count"]),
		ResendCount: parseInt(vals["resend_count"]),
		LastSentAt:  parseUnix(vals["last_sent_at"]),
		CreatedAt:   parseUnix(vals["created_at"]),
		UpdatedAt:   parseUnix(vals["updated_at"]),
	}, nil
}

func (s *Cache) Issue(ctx context.Context, rec otp.Record, resetWindow bool) (err error) {
	ctx, span := s.startSpan(ctx, "IssueCode")
	defer func() { s.endSpan(span, err) }()

	key := keyPrefix + rec.Identifier
	sentAt := rec.LastSentAt.Unix()

	pipe := s.conn.TxPipeline()

	if resetWindow {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"code_hash":    rec.CodeHash,
			"expires_at":   rec.ExpiresAt.Unix(),
			"retry_count":  0,
			"resend_count": 1,
			"last_sent_at": sentAt,
			"created_at":   sentAt,
			"updated_at":   sentAt,
		})
	} else {
		pipe.HSet(ctx, key, map[string]any{
			"code_hash":    rec.CodeHash,
			"expires_at":   rec.ExpiresAt.Unix(),
			"retry_count":  0,
			"last_sent_at": sentAt,
			"updated_at":   sentAt,
		})
		pipe.HIncrBy(ctx, key, "resend_count", 1)
		pipe.HSetNX(ctx, key, "created_at", sentAt)
	}

	pipe.Expire(ctx, key, s.keyTTL)

	_, err = pipe.Exec(ctx)
	return err
}

func (s *Cache) IncrementRetry(ctx context.Context, identifier string) (count int, err error) {
	ctx, span := s.startSpan(ctx, "IncrementCodeRetry")
	defer func() { s.endSpan(span, err) }()

	key := keyPrefix + identifier

	pipe := s.conn.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "retry_count", 1)
	pipe.Expire(ctx, key, s.keyTTL)

	if _, err = pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return int(incr.Val()), nil
}

func (s *Cache) Delete(ctx context.Context, identifier string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteCode")
	defer func() { s.endSpan(span, err) }()

	return s.conn.Del(ctx, keyPrefix+identifier).Err()
}

func parseInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func parseUnix(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
