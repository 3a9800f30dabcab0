package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/otp"
)

type (
	EmailOTPVerifyInput struct {
		Email string `validate:"required,email"`
		Code  string `validate:"required,numeric"`
	}

	EmailOTPVerifyOutput struct {
		ApplicationID int64
		Status        entity.ApplicationStatus
	}
)

func (s *Usecase) EmailOTPVerify(ctx context.Context, in EmailOTPVerifyInput) (*EmailOTPVerifyOutput, error) {
	ctx, span := s.startSpan(ctx, "EmailOTPVerify")
	defer span.End()

	in.Email = normalizeEmail(in.Email)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	app, err := s.repoDB.GetLiveApplicationByEmail(ctx, in.Email)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "no live application for email", "email", in.Email)
		return nil, goerror.NewBusiness("no application found for this email", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get application by email", "email", in.Email, "error", err)
		return nil, goerror.NewServer(err)
	}

	if app.Status == entity.ApplicationStatusSubmitted {
		return nil, goerror.NewBusiness("the application email is already verified", goerror.CodeConflict)
	}

	if err := s.otp.VerifyCode(ctx, in.Email, in.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNotFound):
			return nil, goerror.NewBusiness("no verification code is pending for this email", goerror.CodeNotFound)

		case errors.Is(err, otp.ErrExpired):
			return nil, goerror.NewBusiness("the code has expired, request a new one", goerror.CodeInvalidInput)

		case errors.Is(err, otp.ErrMismatch):
			slog.WarnContext(ctx, "verification code mismatch", "email", in.Email)
			return nil, goerror.NewBusiness("the code is incorrect", goerror.CodeInvalidInput)

		case errors.Is(err, otp.ErrLockedOut):
			slog.WarnContext(ctx, "verification code locked out", "email", in.Email)
			return nil, goerror.NewBusiness("too many incorrect codes, request a new one", goerror.CodeTooManyRequest)

		default:
			slog.ErrorContext(ctx, "failed to verify code", "email", in.Email, "error", err)
			return nil, goerror.NewServer(err)
		}
	}

	if err := s.repoDB.MarkApplicationSubmitted(ctx, app.ID); err != nil {
		if errors.Is(err, goerror.ErrNotFound) {
			slog.WarnContext(ctx, "application left verification state mid-flight", "application_id", app.ID)
			return nil, goerror.NewBusiness("the application is no longer awaiting verification", goerror.CodeConflict)
		}

		slog.ErrorContext(ctx, "failed to repo mark application submitted", "application_id", app.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &EmailOTPVerifyOutput{
		ApplicationID: app.ID,
		Status:        entity.ApplicationStatusSubmitted,
	}, nil
}
