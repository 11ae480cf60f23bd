package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/outreach"
)

const defaultSubject = "Following up on my application"

// ErrUnreachable is returned for contacts that are not email addresses.
var ErrUnreachable = errors.New("contact channel is not reachable by email")

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESConfig configures email delivery.
type SESConfig struct {
	Region  string `mapstructure:"region"`
	From    string `mapstructure:"from"`
	Subject string `mapstructure:"subject"`
	ReplyTo string `mapstructure:"reply-to"`
}

// SES sends messages as plain text email through Amazon SES.
type SES struct {
	client sesAPI
	cfg    SESConfig
	logger *zap.Logger
}

func NewSES(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SES, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newSES(ses.NewFromConfig(awsCfg), cfg, logger)
}

func newSES(client sesAPI, cfg SESConfig, logger *zap.Logger) (*SES, error) {
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("ses sender address: %w", err)
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		cfg.Subject = defaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SES{client: client, cfg: cfg, logger: logger}, nil
}

func (s *SES) Name() string { return "ses" }

func (s *SES) Deliver(ctx context.Context, msg *outreach.OutreachMessage, recruiter *outreach.Recruiter) error {
	if !recruiter.Usable() {
		return permanent(s.Name(), ErrUnreachable)
	}

	to, err := mail.ParseAddress(strings.TrimPrefix(strings.TrimSpace(recruiter.ContactChannel), "mailto:"))
	if err != nil {
		return permanent(s.Name(), fmt.Errorf("%w: %s", ErrUnreachable, recruiter.ContactChannel))
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.cfg.From),
		Destination: &types.Destination{
			ToAddresses: []string{to.Address},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(s.cfg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.RenderedText)},
			},
		},
	}
	if s.cfg.ReplyTo != "" {
		input.ReplyToAddresses = []string{s.cfg.ReplyTo}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return s.classify(err)
	}

	s.logger.Info("email sent",
		zap.String("job_id", msg.JobID),
		zap.String("to", to.Address),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)

	return nil
}

func (s *SES) classify(err error) error {
	var rejected *types.MessageRejected
	var unverified *types.MailFromDomainNotVerifiedException
	var paused *types.AccountSendingPausedException
	switch {
	case errors.As(err, &rejected), errors.As(err, &unverified), errors.As(err, &paused):
		return permanent(s.Name(), err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ServiceUnavailable", "InternalFailure", "RequestTimeout":
			return retryable(s.Name(), err)
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			return permanent(s.Name(), err)
		}
	}

	return retryable(s.Name(), err)
}
