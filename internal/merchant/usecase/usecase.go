package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/clock"
	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/idempotency"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/jwt"
	"github.com/cashkite/cashkite/internal/pkg/storage"
	"github.com/cashkite/cashkite/internal/pkg/uid"
	"github.com/cashkite/cashkite/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type ApplicationDecidedEvent struct {
	ApplicationID int64
	MerchantID    int64
	BusinessName  string
	Email         string
	Decision      string
	Reason        string
}

type repoMessaging interface {
	PublishApplicationDecided(ctx context.Context, msg ApplicationDecidedEvent) error
}

type repoDB interface {
	GetLiveApplicationByEmail(ctx context.Context, email string) (*entity.Application, error)
	GetApplicationByID(ctx context.Context, id int64) (*entity.Application, error)
	GetApplicationList(ctx context.Context, filter entity.ApplicationListFilterData) ([]entity.Application, int64, error)

	CreateApplication(ctx context.Context, app entity.NewApplication) error
	MarkApplicationSubmitted(ctx context.Context, id int64) error
	ApproveApplication(ctx context.Context, id int64, note string, profile entity.Profile) error
	RejectApplication(ctx context.Context, id int64, note string) error
}

type otpEngine interface {
	RequestCode(ctx context.Context, identifier string) error
	VerifyCode(ctx context.Context, identifier, code string) error
}

type Usecase struct {
	repoDB        repoDB
	repoMessaging repoMessaging
	otp           otpEngine
	idemp         idempotency.Idempotency
	validator     validator.Validator
	cfg           config.Config
	storage       storage.Storage
	uid           uid.NumberID
	uuid          uid.StringID
	clock         clock.Clocker
	ins           instrument.Instrumentation
	enforcer      *casbin.Enforcer
}

type Dependency struct {
	RepoDB        repoDB
	RepoMessaging repoMessaging
	OTP           otpEngine
	Idempotency   idempotency.Idempotency
	Validator     validator.Validator
	Config        config.Config
	Storage       storage.Storage
	UID           uid.NumberID
	UUID          uid.StringID
	Clock         clock.Clocker
	Instrument    instrument.Instrumentation
	Enforcer      *casbin.Enforcer
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:        dep.RepoDB,
		repoMessaging: dep.RepoMessaging,
		otp:           dep.OTP,
		idemp:         dep.Idempotency,
		validator:     dep.Validator,
		cfg:           dep.Config,
		storage:       dep.Storage,
		uid:           dep.UID,
		uuid:          dep.UUID,
		clock:         dep.Clock,
		ins:           dep.Instrument,
		enforcer:      dep.Enforcer,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("merchant.usecase").Start(ctx, name)
}

func (s *Usecase) authenticatedAndAuthorized(ctx context.Context, obj, act string) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}

	ok, err := s.enforcer.Enforce(clm.UserRole, obj, act)
	if err != nil {
		slog.ErrorContext(ctx, "failed to check authorization", "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !ok {
		return nil, goerror.NewBusiness("account not allowed", goerror.CodeForbidden)
	}

	return clm, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
