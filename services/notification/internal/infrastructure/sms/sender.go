package sms

import (
	"context"
	"fmt"

	"github.com/sakashimaa/storefront/pkg/config"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/notification/internal/domain"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, msg domain.SMS) error
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type twilioSender struct {
	api    messageCreator
	from   string
	logger *zap.Logger
	tracer trace.Tracer
}

// NewSender returns a Twilio-backed sender, or a logging one when credentials are absent.
func NewSender(cfg config.Twilio, logger *zap.Logger) Sender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return &logSender{logger: logger}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &twilioSender{
		api:    client.Api,
		from:   cfg.FromPhone,
		logger: logger,
		tracer: otel.Tracer("notification/infrastructure/sms"),
	}
}

func (s *twilioSender) Send(ctx context.Context, msg domain.SMS) error {
	ctx, span := s.tracer.Start(ctx, "twilio.Send")
	defer span.End()

	span.SetAttributes(attribute.String("to.phone", msg.To))

	if msg.To == "" {
		return domain.ErrNoRecipient
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "Error sending sms", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("failed to send sms: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	mylogger.Info(ctx, s.logger, "SMS sent successfully", zap.String("sid", sid))

	return nil
}

type logSender struct {
	logger *zap.Logger
}

func (s *logSender) Send(ctx context.Context, msg domain.SMS) error {
	if msg.To == "" {
		return domain.ErrNoRecipient
	}

	mylogger.Info(
		ctx,
		s.logger,
		"SMS simulation (Twilio not configured)",
		zap.String("to", msg.To),
		zap.String("message", msg.Body),
	)

	return nil
}
