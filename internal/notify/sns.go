// Package notify publishes run reports to an SNS topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/pipeline"
)

// SNS subjects are limited to 100 characters.
const maxSubject = 100

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSConfig struct {
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic-arn"`
	// OnlyProblems skips reports of runs without failures or sync pending jobs.
	OnlyProblems bool `mapstructure:"only-problems"`
}

type Publisher struct {
	client snsAPI
	cfg    SNSConfig
	logger *zap.Logger
}

func NewSNS(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newPublisher(sns.NewFromConfig(awsCfg), cfg, logger)
}

func newPublisher(client snsAPI, cfg SNSConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.TopicARN == "" {
		return nil, errors.New("sns topic arn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, cfg: cfg, logger: logger}, nil
}

// Notify publishes the summary of a run.
func (p *Publisher) Notify(ctx context.Context, sum *pipeline.Summary) error {
	problems := len(sum.SyncPending) + sum.States[outreach.StateFailed]
	if p.cfg.OnlyProblems && problems == 0 {
		p.logger.Debug("skipping run notification", zap.String("reason", "no problems"))
		return nil
	}

	subject := fmt.Sprintf("recruiter-outreach run %s: %d processed", sum.RunID, sum.Processed())
	if len(sum.SyncPending) > 0 {
		subject = fmt.Sprintf("recruiter-outreach run %s: %d sync pending", sum.RunID, len(sum.SyncPending))
	}
	if len(subject) > maxSubject {
		subject = subject[:maxSubject]
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.cfg.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(sum.String()),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"run_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(sum.RunID),
			},
			"sync_pending": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(len(sum.SyncPending))),
			},
			"failed": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(sum.States[outreach.StateFailed])),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}

	p.logger.Info("run summary published", zap.String("topic", p.cfg.TopicARN), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
