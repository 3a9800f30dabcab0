package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/shared/constant"
)

const (
	decisionApproved = "approved"
	decisionRejected = "rejected"
)

type (
	ReviewInput struct {
		ID       int64  `validate:"required,gt=0"`
		Decision string `validate:"required,oneof=approved rejected"`
		Note     string `validate:"omitempty,max=500"`
	}

	ReviewOutput struct {
		ApplicationID int64
		MerchantID    int64
		Status        entity.ApplicationStatus
	}
)

func (s *Usecase) Review(ctx context.Context, in ReviewInput) (*ReviewOutput, error) {
	ctx, span := s.startSpan(ctx, "Review")
	defer span.End()

	clm, err := s.authenticatedAndAuthorized(ctx, constant.PermMerchantApplications, constant.PermActUpdate)
	if err != nil {
		return nil, err
	}

	in.Note = strings.TrimSpace(in.Note)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	app, err := s.repoDB.GetApplicationByID(ctx, in.ID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, goerror.NewBusiness("application not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get application", "application_id", in.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if app.IsDecided() {
		return nil, goerror.NewBusiness("the application has already been decided", goerror.CodeConflict)
	}
	if app.Status != entity.ApplicationStatusSubmitted {
		return nil, goerror.NewBusiness("the application email is not verified yet", goerror.CodeConflict)
	}

	out := &ReviewOutput{ApplicationID: app.ID}
	evt := ApplicationDecidedEvent{
		ApplicationID: app.ID,
		BusinessName:  app.BusinessName,
		Email:         app.Email,
		Decision:      in.Decision,
		Reason:        in.Note,
	}

	switch in.Decision {
	case decisionApproved:
		profile := entity.Profile{
			ID:            s.uid.Generate(),
			ApplicationID: app.ID,
			BusinessName:  app.BusinessName,
			Email:         app.Email,
			Phone:         app.Phone,
			Category:      app.Category,
			City:          app.City,
			Status:        entity.ProfileStatusActive,
		}

		if err := s.repoDB.ApproveApplication(ctx, app.ID, in.Note, profile); err != nil {
			if errors.Is(err, goerror.ErrNotFound) {
				return nil, goerror.NewBusiness("the application has already been decided", goerror.CodeConflict)
			}

			slog.ErrorContext(ctx, "failed to repo approve application", "application_id", app.ID, "user_id", clm.UserID, "error", err)
			return nil, goerror.NewServer(err)
		}

		out.MerchantID = profile.ID
		out.Status = entity.ApplicationStatusApproved
		evt.MerchantID = profile.ID

	case decisionRejected:
		if err := s.repoDB.RejectApplication(ctx, app.ID, in.Note); err != nil {
			if errors.Is(err, goerror.ErrNotFound) {
				return nil, goerror.NewBusiness("the application has already been decided", goerror.CodeConflict)
			}

			slog.ErrorContext(ctx, "failed to repo reject application", "application_id", app.ID, "user_id", clm.UserID, "error", err)
			return nil, goerror.NewServer(err)
		}

		out.Status = entity.ApplicationStatusRejected
	}

	// The decision is durable at this point; a lost event only delays the
	// notification, so it never fails the request.
	if err := s.repoMessaging.PublishApplicationDecided(ctx, evt); err != nil {
		slog.ErrorContext(ctx, "failed to publish application decided", "application_id", app.ID, "error", err)
	}

	return out, nil
}
