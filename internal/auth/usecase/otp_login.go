package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cashkite/cashkite/internal/auth/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/otp"
)

// provisionalName derives the display name a first-time account starts with.
func provisionalName(phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}

	return "Member " + digits
}

type OTPLoginInput struct {
	Phone string `validate:"required,phone"`
	Code  string `validate:"required,numeric"`
	Email string `validate:"omitempty,email"`
}

type OTPLoginOutput struct {
	AccessToken     string
	UserID          int64
	ProfileComplete bool
}

func (s *Usecase) OTPLogin(ctx context.Context, in OTPLoginInput) (*OTPLoginOutput, error) {
	ctx, span := s.startSpan(ctx, "OTPLogin")
	defer span.End()

	in.Phone = normalizePhone(in.Phone)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if err := s.otp.VerifyCode(ctx, in.Phone, in.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrNotFound):
			slog.WarnContext(ctx, "no code pending for phone", "phone", in.Phone)
			return nil, goerror.NewBusiness("no verification code is pending for this phone number", goerror.CodeNotFound)

		case errors.Is(err, otp.ErrExpired):
			slog.WarnContext(ctx, "submitted code already expired", "phone", in.Phone)
			return nil, goerror.NewBusiness("the code has expired, request a new one", goerror.CodeInvalidInput)

		case errors.Is(err, otp.ErrMismatch):
			slog.WarnContext(ctx, "submitted code does not match", "phone", in.Phone)
			return nil, goerror.NewBusiness("the code is incorrect", goerror.CodeInvalidInput)

		case errors.Is(err, otp.ErrLockedOut):
			slog.WarnContext(ctx, "too many wrong codes submitted", "phone", in.Phone)
			return nil, goerror.NewBusiness("too many incorrect codes, request a new one", goerror.CodeTooManyRequest)

		default:
			slog.ErrorContext(ctx, "failed to verify login code", "phone", in.Phone, "error", err)
			return nil, goerror.NewServer(err)
		}
	}

	user, err := s.resolveUser(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.ensureUserStatusAllowed(ctx, user.ID, user.Status); err != nil {
		return nil, err
	}

	acToken, err := s.jwt.Generate(user.ID, user.Phone, user.Role)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access jwt token", "user_id", user.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &OTPLoginOutput{
		AccessToken:     acToken,
		UserID:          user.ID,
		ProfileComplete: user.ProfileComplete(),
	}, nil
}

// resolveUser turns a verified phone number into an account. First login
// creates one; later logins stamp the verification time and backfill the
// email when the account has none yet.
func (s *Usecase) resolveUser(ctx context.Context, in OTPLoginInput) (*entity.User, error) {
	user, err := s.repoDB.GetUserByPhone(ctx, in.Phone)
	if err == nil {
		return s.refreshUser(ctx, user, in.Email)
	}

	if !errors.Is(err, goerror.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to repo get user by phone", "phone", in.Phone, "error", err)
		return nil, goerror.NewServer(err)
	}

	// A random throwaway credential keeps the row shaped like every other
	// account while making password login impossible until one is set.
	credential, err := s.bcrypt.Hash(s.oid.Generate())
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash placeholder credential", "error", err)
		return nil, goerror.NewServer(err)
	}

	newUser := entity.NewUser{
		ID:       s.uid.Generate(),
		Phone:    in.Phone,
		Email:    in.Email,
		FullName: provisionalName(in.Phone),
		Role:     entity.RoleMember,
		Status:   entity.UserStatusActive,
	}

	err = s.repoDB.CreateUser(ctx, newUser, string(credential))
	if errors.Is(err, goerror.ErrConflict) {
		// Lost a race against a concurrent first login for the same phone.
		user, err := s.repoDB.GetUserByPhone(ctx, in.Phone)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo get user after create conflict", "phone", in.Phone, "error", err)
			return nil, goerror.NewServer(err)
		}

		return s.refreshUser(ctx, user, in.Email)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo create user", "phone", in.Phone, "error", err)
		return nil, goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "created account on first login", "user_id", newUser.ID)

	now := s.clock.Now()

	return &entity.User{
		ID:              newUser.ID,
		Phone:           newUser.Phone,
		Email:           newUser.Email,
		FullName:        newUser.FullName,
		Role:            newUser.Role,
		Status:          newUser.Status,
		PhoneVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Usecase) refreshUser(ctx context.Context, user *entity.User, email string) (*entity.User, error) {
	if user.PhoneVerifiedAt == nil {
		if err := s.repoDB.MarkPhoneVerified(ctx, user.ID); err != nil {
			slog.ErrorContext(ctx, "failed to repo mark phone verified", "user_id", user.ID, "error", err)
			return nil, goerror.NewServer(err)
		}

		now := s.clock.Now()
		user.PhoneVerifiedAt = &now
	}

	if email != "" && user.Email == "" {
		if err := s.repoDB.BackfillUserEmail(ctx, user.ID, email); err != nil {
			slog.ErrorContext(ctx, "failed to repo backfill user email", "user_id", user.ID, "error", err)
			return nil, goerror.NewServer(err)
		}

		user.Email = email
	}

	return user, nil
}
