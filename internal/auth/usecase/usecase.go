package usecase

import (
	"context"
	"log/slog"

	"github.com/cashkite/cashkite/internal/auth/entity"
	"github.com/cashkite/cashkite/internal/pkg/clock"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/hash"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/jwt"
	"github.com/cashkite/cashkite/internal/pkg/uid"
	"github.com/cashkite/cashkite/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	GetUserByPhone(ctx context.Context, phone string) (*entity.User, error)
	GetUserByID(ctx context.Context, id int64) (*entity.User, error)

	CreateUser(ctx context.Context, user entity.NewUser, credential string) error
	MarkPhoneVerified(ctx context.Context, id int64) error
	BackfillUserEmail(ctx context.Context, id int64, email string) error
}

type otpEngine interface {
	RequestCode(ctx context.Context, identifier string) error
	VerifyCode(ctx context.Context, identifier, code string) error
}

type Usecase struct {
	repoDB    repoDB
	otp       otpEngine
	validator validator.Validator
	uid       uid.NumberID
	oid       uid.StringID
	bcrypt    hash.Hash
	clock     clock.Clocker
	jwt       jwt.JWT
	ins       instrument.Instrumentation
}

type Dependency struct {
	RepoDB     repoDB
	OTP        otpEngine
	Validator  validator.Validator
	UID        uid.NumberID
	OID        uid.StringID
	Bcrypt     hash.Hash
	Clock      clock.Clocker
	JWT        jwt.JWT
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:    dep.RepoDB,
		otp:       dep.OTP,
		validator: dep.Validator,
		uid:       dep.UID,
		oid:       dep.OID,
		bcrypt:    dep.Bcrypt,
		clock:     dep.Clock,
		jwt:       dep.JWT,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("auth.usecase").Start(ctx, name)
}

func (s *Usecase) ensureUserStatusAllowed(ctx context.Context, userID int64, status entity.UserStatus) error {
	switch status.Ensure() {
	case entity.UserStatusBanned:
		slog.WarnContext(ctx, "user account is banned", "user_id", userID)
		return goerror.NewBusiness("account is banned", goerror.CodeForbidden)

	case entity.UserStatusInactive:
		slog.WarnContext(ctx, "user account is closed", "user_id", userID)
		return goerror.NewBusiness("account is closed", goerror.CodeForbidden)

	case entity.UserStatusUnknown:
		slog.WarnContext(ctx, "user account status is unrecognized", "user_id", userID)
		return goerror.NewBusiness("account status is unrecognized", goerror.CodeForbidden)

	default:
		return nil
	}
}
