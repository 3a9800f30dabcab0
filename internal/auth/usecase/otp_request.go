package usecase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/otp"
)

// rePhoneNoise matches the separators people type into phone numbers.
var rePhoneNoise = regexp.MustCompile(`[\s().-]`)

// normalizePhone reduces a phone number to the canonical +<digits> form. The
// same form is the code identifier, the users.phone column, and the JWT claim.
func normalizePhone(raw string) string {
	p := rePhoneNoise.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(p, "00") {
		p = "+" + p[2:]
	}

	return p
}

type OTPRequestInput struct {
	Phone string `validate:"required,phone"`
}

func (s *Usecase) OTPRequest(ctx context.Context, in OTPRequestInput) error {
	ctx, span := s.startSpan(ctx, "OTPRequest")
	defer span.End()

	in.Phone = normalizePhone(in.Phone)

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	user, err := s.repoDB.GetUserByPhone(ctx, in.Phone)
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to repo get user by phone", "phone", in.Phone, "error", err)
		return goerror.NewServer(err)
	}

	// Unknown phones proceed: the account is only created after the code is
	// verified. Known but blocked accounts get no SMS at all.
	if user != nil {
		if err := s.ensureUserStatusAllowed(ctx, user.ID, user.Status); err != nil {
			return err
		}
	}

	if err := s.otp.RequestCode(ctx, in.Phone); err != nil {
		switch {
		case errors.Is(err, otp.ErrCooldown):
			slog.WarnContext(ctx, "code requested during cooldown", "phone", in.Phone)
			return goerror.NewBusiness("please wait a minute before requesting another code", goerror.CodeTooManyRequest)

		case errors.Is(err, otp.ErrResendLimit):
			slog.WarnContext(ctx, "code resend limit reached", "phone", in.Phone)
			return goerror.NewBusiness("too many codes requested, try again later", goerror.CodeTooManyRequest)

		case errors.Is(err, otp.ErrDelivery):
			slog.ErrorContext(ctx, "failed to deliver login code", "phone", in.Phone, "error", err)
			return goerror.NewBusiness("we could not send the code right now, try again shortly", goerror.CodeUnavailable)

		default:
			slog.ErrorContext(ctx, "failed to issue login code", "phone", in.Phone, "error", err)
			return goerror.NewServer(err)
		}
	}

	return nil
}
