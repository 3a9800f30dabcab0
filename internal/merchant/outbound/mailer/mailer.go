package mailer

import (
	"context"
	"fmt"

	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/mail"
	"go.opentelemetry.io/otel/codes"
)

type Mailer struct {
	client mail.Mail
	cfg    config.Config
	ins    instrument.Instrumentation
}

func NewMailer(client mail.Mail, cfg config.Config, ins instrument.Instrumentation) *Mailer {
	return &Mailer{
		client: client,
		cfg:    cfg,
		ins:    ins,
	}
}

// Send mails the verification code to the application's contact address.
func (m *Mailer) Send(ctx context.Context, identifier, code string) error {
	ctx, span := m.ins.Tracer("merchant.outbound.mailer").Start(ctx, "SendVerificationCode")
	defer span.End()

	msg := mail.Message{
		From:    m.cfg.GetString("modules.merchant.mail_from"),
		To:      []string{identifier},
		Subject: "Your CashKite merchant verification code",
		TextBody: fmt.Sprintf(
			"Hello,\n\nYour verification code is %s. It expires in %d minutes.\n\nIf you did not apply to become a CashKite merchant, ignore this email.",
			code,
			int(m.cfg.GetMinute("modules.merchant.otp_ttl_minutes").Minutes()),
		),
	}

	if err := m.client.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
