package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cashkite/cashkite/internal/auth/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/jwt"
)

type ProfileInput struct{}

type ProfileOutput struct {
	ID              int64
	Phone           string
	Email           string
	FullName        string
	Role            string
	Status          string
	PhoneVerified   bool
	ProfileComplete bool
}

// Profile returns the account behind the caller's access token. The row
// is re-read on every call, never served from the token claims.
func (s *Usecase) Profile(ctx context.Context, in ProfileInput) (*ProfileOutput, error) {
	ctx, span := s.startSpan(ctx, "Profile")
	defer span.End()

	user, err := s.callerAccount(ctx)
	if err != nil {
		return nil, err
	}

	return &ProfileOutput{
		ID:              user.ID,
		Phone:           user.Phone,
		Email:           user.Email,
		FullName:        user.FullName,
		Role:            user.Role,
		Status:          user.Status.String(),
		PhoneVerified:   user.PhoneVerifiedAt != nil,
		ProfileComplete: user.ProfileComplete(),
	}, nil
}

// callerAccount resolves the token claims to a live user row. Missing
// claims and a vanished row both surface as CodeUnauthorized.
func (s *Usecase) callerAccount(ctx context.Context) (*entity.User, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}

	user, err := s.repoDB.GetUserByID(ctx, clm.UserID)
	switch {
	case errors.Is(err, goerror.ErrNotFound):
		slog.WarnContext(ctx, "user account not found", "user_id", clm.UserID)
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)

	case err != nil:
		slog.ErrorContext(ctx, "failed to repo get user by id", "user_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.ensureUserStatusAllowed(ctx, user.ID, user.Status); err != nil {
		return nil, err
	}

	return user, nil
}
