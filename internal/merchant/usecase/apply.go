package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/idempotency"
)

// rePhoneNoise matches the separators people type into phone numbers.
var rePhoneNoise = regexp.MustCompile(`[\s().-]`)

func normalizePhone(raw string) string {
	p := rePhoneNoise.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(p, "00") {
		p = "+" + p[2:]
	}

	return p
}

type (
	ApplyInput struct {
		BusinessName string `validate:"required,min=3,max=100"`
		Email        string `validate:"required,email"`
		Phone        string `validate:"required,phone"`
		Category     string `validate:"required,min=3,max=50,alphaspace"`
		City         string `validate:"required,min=2,max=50,alphaspace"`

		// IdempotencyKey comes from the Idempotency-Key header; empty means the
		// client opted out of replay protection.
		IdempotencyKey string `validate:"omitempty,max=100"`
	}

	ApplyOutput struct {
		ApplicationID int64
		Status        entity.ApplicationStatus
	}
)

func (s *Usecase) Apply(ctx context.Context, in ApplyInput) (*ApplyOutput, error) {
	ctx, span := s.startSpan(ctx, "Apply")
	defer span.End()

	in.Email = normalizeEmail(in.Email)
	in.Phone = normalizePhone(in.Phone)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	var out *ApplyOutput
	create := func(fCtx context.Context) error {
		app := entity.NewApplication{
			ID:           s.uid.Generate(),
			BusinessName: strings.TrimSpace(in.BusinessName),
			Email:        in.Email,
			Phone:        in.Phone,
			Category:     strings.TrimSpace(in.Category),
			City:         strings.TrimSpace(in.City),
			Status:       entity.ApplicationStatusPendingVerification,
		}

		if err := s.repoDB.CreateApplication(fCtx, app); err != nil {
			if errors.Is(err, goerror.ErrConflict) {
				slog.WarnContext(fCtx, "application already in progress for email", "email", in.Email)
				return goerror.NewBusiness("an application for this email is already in progress", goerror.CodeConflict)
			}

			slog.ErrorContext(fCtx, "failed to repo create application", "email", in.Email, "error", err)
			return goerror.NewServer(err)
		}

		out = &ApplyOutput{ApplicationID: app.ID, Status: app.Status}
		return nil
	}

	if in.IdempotencyKey == "" {
		if err := create(ctx); err != nil {
			return nil, err
		}
		return out, nil
	}

	err := s.idemp.Exec(ctx, "merchant:apply:"+in.IdempotencyKey, create)
	switch {
	case err == nil:
		return out, nil

	case errors.Is(err, idempotency.ErrAlreadyInProgress):
		return nil, goerror.NewBusiness("this application is still being processed", goerror.CodeConflict)

	case errors.Is(err, idempotency.ErrAlreadyCompleted):
		return nil, goerror.NewBusiness("this application was already submitted", goerror.CodeConflict)

	case errors.Is(err, idempotency.ErrAlreadyFailed):
		return nil, goerror.NewBusiness("a previous attempt with this key failed, use a new key", goerror.CodeConflict)
	}

	// Errors out of the create closure are already wrapped; anything else is
	// the tracker itself failing.
	var gerr *goerror.Error
	if errors.As(err, &gerr) {
		return nil, err
	}

	slog.ErrorContext(ctx, "failed to track application idempotency", "error", err)
	return nil, goerror.NewServer(err)
}
