package merchant

import (
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/cashkite/cashkite/internal/merchant/inbound"
	"github.com/cashkite/cashkite/internal/merchant/outbound/cache"
	"github.com/cashkite/cashkite/internal/merchant/outbound/db"
	"github.com/cashkite/cashkite/internal/merchant/outbound/mailer"
	"github.com/cashkite/cashkite/internal/merchant/outbound/mq"
	"github.com/cashkite/cashkite/internal/merchant/usecase"
	"github.com/cashkite/cashkite/internal/pkg/clock"
	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/hash"
	"github.com/cashkite/cashkite/internal/pkg/idempotency"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/mail"
	"github.com/cashkite/cashkite/internal/pkg/messaging"
	"github.com/cashkite/cashkite/internal/pkg/otp"
	"github.com/cashkite/cashkite/internal/pkg/router"
	"github.com/cashkite/cashkite/internal/pkg/storage"
	"github.com/cashkite/cashkite/internal/pkg/uid"
	"github.com/cashkite/cashkite/internal/pkg/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Dependency struct {
	DBConn      *pgxpool.Pool              `validate:"required"`
	CacheConn   *redis.Client              `validate:"required"`
	Router      *router.Router             `validate:"required"`
	Messaging   messaging.Messaging        `validate:"required"`
	Mail        mail.Mail                  `validate:"required"`
	Storage     storage.Storage            `validate:"required"`
	Config      config.Config              `validate:"required"`
	Instrument  instrument.Instrumentation `validate:"required"`
	Idempotency idempotency.Idempotency    `validate:"required"`
	UID         uid.NumberID               `validate:"required"`
	UUID        uid.StringID               `validate:"required"`
	HMAC        hash.Hash                  `validate:"required"`
	Clock       clock.Clocker              `validate:"required"`
	Validator   validator.Validator        `validate:"required"`
	Enforcer    *casbin.Enforcer           `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	// Throttle state must outlive the code, otherwise an expired key would
	// reset the hourly resend cap early.
	keyTTL := dep.Config.GetHour("modules.merchant.otp_resend_window_hours") +
		dep.Config.GetMinute("modules.merchant.otp_ttl_minutes")
	if keyTTL <= 0 {
		keyTTL = time.Hour + 10*time.Minute
	}

	dbMerchant := db.NewDB(dep.DBConn, dep.Instrument)
	cacheMerchant := cache.NewCache(dep.CacheConn, keyTTL, dep.Instrument)
	mailSender := mailer.NewMailer(dep.Mail, dep.Config, dep.Instrument)
	mqMerchant := mq.NewMessaging(dep.Messaging, dep.Instrument)

	engine := otp.NewEngine(cacheMerchant, mailSender, dep.HMAC, dep.Clock, otp.Options{
		CodeLength:     dep.Config.GetInt("modules.merchant.otp_code_length"),
		TTL:            dep.Config.GetMinute("modules.merchant.otp_ttl_minutes"),
		ResendInterval: dep.Config.GetSecond("modules.merchant.otp_resend_interval_seconds"),
		ResendWindow:   dep.Config.GetHour("modules.merchant.otp_resend_window_hours"),
		MaxResends:     dep.Config.GetInt("modules.merchant.otp_max_resends"),
		MaxAttempts:    dep.Config.GetInt("modules.merchant.otp_max_attempts"),
	})

	uc := usecase.New(usecase.Dependency{
		RepoDB:        dbMerchant,
		RepoMessaging: mqMerchant,
		OTP:           engine,
		Idempotency:   dep.Idempotency,
		Validator:     dep.Validator,
		Config:        dep.Config,
		Storage:       dep.Storage,
		UID:           dep.UID,
		UUID:          dep.UUID,
		Clock:         dep.Clock,
		Instrument:    dep.Instrument,
		Enforcer:      dep.Enforcer,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}
