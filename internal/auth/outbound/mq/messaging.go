package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/cashkite/cashkite/internal/pkg/messaging"
	"github.com/cashkite/cashkite/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// headerCorrelationID is the message header consumers use to tie an
// event back to the originating request.
const headerCorrelationID = "cID"

// smsTemplate wraps a login code in the text the SMS gateway delivers.
const smsTemplate = "%s is your CashKite verification code. Never share it with anyone."

type Messaging struct {
	client messaging.Messaging
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

// Send publishes an SMS dispatch event carrying the login code. The SMS
// gateway consumes the event out of process; this service never talks to
// the carrier directly.
func (m *Messaging) Send(ctx context.Context, identifier, code string) error {
	ctx, span := m.ins.Tracer("auth.outbound.mq").Start(ctx, "PublishSMSDispatch")
	defer span.End()

	payload := event.SMSDispatchMessage{
		Phone: identifier,
		Body:  fmt.Sprintf(smsTemplate, code),
	}

	return m.publishJSON(ctx, span, event.SMSDispatchDestination, []byte(identifier), payload)
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
