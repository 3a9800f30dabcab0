package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/cashkite/cashkite/internal/auth/inbound"
	"github.com/cashkite/cashkite/internal/auth/outbound/db"
	"github.com/cashkite/cashkite/internal/auth/outbound/mq"
	"github.com/cashkite/cashkite/internal/auth/usecase"
	"github.com/cashkite/cashkite/internal/pkg/clock"
	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/goroutine"
	"github.com/cashkite/cashkite/internal/pkg/hash"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/jwt"
	"github.com/cashkite/cashkite/internal/pkg/messaging"
	"github.com/cashkite/cashkite/internal/pkg/otp"
	"github.com/cashkite/cashkite/internal/pkg/router"
	"github.com/cashkite/cashkite/internal/pkg/uid"
	"github.com/cashkite/cashkite/internal/pkg/validator"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Dependency struct {
	Ctx        context.Context
	DBConn     *pgxpool.Pool              `validate:"required"`
	Goroutine  *goroutine.Runner          `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Messaging  messaging.Messaging        `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	OID        uid.StringID               `validate:"required"`
	HMAC       hash.Hash                  `validate:"required"`
	Bcrypt     hash.Hash                  `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	JWT        jwt.JWT                    `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	dbAuth := db.NewDB(dep.DBConn, dep.Instrument)
	smsSender := mq.NewMessaging(dep.Messaging, dep.Instrument)

	engine := otp.NewEngine(dbAuth, smsSender, dep.HMAC, dep.Clock, otp.Options{
		CodeLength:     dep.Config.GetInt("modules.auth.otp_code_length"),
		TTL:            dep.Config.GetMinute("modules.auth.otp_ttl_minutes"),
		ResendInterval: dep.Config.GetSecond("modules.auth.otp_resend_interval_seconds"),
		ResendWindow:   dep.Config.GetHour("modules.auth.otp_resend_window_hours"),
		MaxResends:     dep.Config.GetInt("modules.auth.otp_max_resends"),
		MaxAttempts:    dep.Config.GetInt("modules.auth.otp_max_attempts"),
	})

	uc := usecase.New(usecase.Dependency{
		RepoDB:     dbAuth,
		OTP:        engine,
		Validator:  dep.Validator,
		UID:        dep.UID,
		OID:        dep.OID,
		Bcrypt:     dep.Bcrypt,
		Clock:      dep.Clock,
		JWT:        dep.JWT,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	if dep.Ctx != nil {
		registerCodeSweeper(dep.Ctx, dep.Config, dep.Goroutine, dbAuth, dep.Clock)
	}

	return nil
}

// registerCodeSweeper starts the cleanup loop for login codes. Verified and
// locked-out codes are deleted inline; codes that simply expire stay behind,
// and the sweeper drops them once they are too old to anchor a resend window.
func registerCodeSweeper(ctx context.Context, cfg config.Config, routine *goroutine.Runner, store *db.DB, clk clock.Clocker) {
	interval := cfg.GetMinute("modules.auth.otp_sweep_interval_minutes")
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	retain := cfg.GetHour("modules.auth.otp_resend_window_hours") + cfg.GetMinute("modules.auth.otp_ttl_minutes")
	if retain <= 0 {
		retain = time.Hour + 10*time.Minute
	}

	routine.Run(ctx, func(pCtx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pCtx.Done():
				return nil

			case <-ticker.C:
				deleted, err := store.DeleteExpiredCodes(pCtx, clk.Now().Add(-retain))
				if err != nil {
					slog.ErrorContext(pCtx, "failed to sweep expired login codes", "error", err)
					continue
				}

				if deleted > 0 {
					slog.InfoContext(pCtx, "swept expired login codes", "deleted", deleted)
				}
			}
		}
	})
}
