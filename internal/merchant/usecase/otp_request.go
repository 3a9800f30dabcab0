package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/otp"
)

type EmailOTPRequestInput struct {
	Email string `validate:"required,email"`
}

func (s *Usecase) EmailOTPRequest(ctx context.Context, in EmailOTPRequestInput) error {
	ctx, span := s.startSpan(ctx, "EmailOTPRequest")
	defer span.End()

	in.Email = normalizeEmail(in.Email)

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	app, err := s.repoDB.GetLiveApplicationByEmail(ctx, in.Email)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no live application for email", "email", in.Email)
		return goerror.NewBusiness("no application found for this email", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get application by email", "email", in.Email, "error", err)
		return goerror.NewServer(err)
	}

	if app.Status == entity.ApplicationStatusSubmitted {
		return goerror.NewBusiness("the application email is already verified", goerror.CodeConflict)
	}

	if err := s.otp.RequestCode(ctx, in.Email); err != nil {
		switch {
		case errors.Is(err, otp.ErrCooldown):
			slog.WarnContext(ctx, "code requested during cooldown", "email", in.Email)
			return goerror.NewBusiness("please wait a minute before requesting another code", goerror.CodeTooManyRequest)

		case errors.Is(err, otp.ErrResendLimit):
			slog.WarnContext(ctx, "code resend limit reached", "email", in.Email)
			return goerror.NewBusiness("too many codes requested, try again later", goerror.CodeTooManyRequest)

		case errors.Is(err, otp.ErrDelivery):
			slog.ErrorContext(ctx, "failed to deliver verification email", "email", in.Email, "error", err)
			return goerror.NewBusiness("we could not send the code right now, try again shortly", goerror.CodeUnavailable)

		default:
			slog.ErrorContext(ctx, "failed to issue verification code", "email", in.Email, "error", err)
			return goerror.NewServer(err)
		}
	}

	return nil
}
