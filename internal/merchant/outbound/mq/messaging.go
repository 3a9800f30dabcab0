package mq

import (
	"context"
	"encoding/json"

	"github.com/cashkite/cashkite/internal/merchant/usecase"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/messaging"
	"github.com/cashkite/cashkite/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// headerCorrelationID is the message header consumers use to tie an
// event back to the originating request.
const headerCorrelationID = "cID"

type Messaging struct {
	client messaging.Messaging
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

// PublishApplicationDecided announces an approval or rejection so the
// notifier can mail the applicant. Events are keyed by applicant email.
func (m *Messaging) PublishApplicationDecided(ctx context.Context, msg usecase.ApplicationDecidedEvent) error {
	ctx, span := m.ins.Tracer("merchant.outbound.mq").Start(ctx, "PublishApplicationDecided")
	defer span.End()

	payload := event.MerchantApplicationDecidedMessage{
		ApplicationID: msg.ApplicationID,
		MerchantID:    msg.MerchantID,
		BusinessName:  msg.BusinessName,
		Email:         msg.Email,
		Decision:      msg.Decision,
		Reason:        msg.Reason,
	}

	return m.publishJSON(ctx, span, event.MerchantApplicationDecidedDestination, []byte(msg.Email), payload)
}

// publishJSON marshals payload and ships it keyed by key, stamping the
// correlation id header and flagging the span on any failure.
func (m *Messaging) publishJSON(ctx context.Context, span trace.Span, destination string, key []byte, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return spanFail(span, err)
	}

	cID := instrument.GetCorrelationID(ctx)

	_, err = m.client.Publish(ctx, destination, messaging.OutgoingMessage{
		Body:    body,
		Key:     key,
		Headers: []messaging.Header{{Key: headerCorrelationID, Value: []byte(cID)}},
	})
	if err != nil {
		return spanFail(span, err)
	}

	return nil
}

func spanFail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
