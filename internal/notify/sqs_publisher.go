package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher fans booking events out to an SQS queue so workers
// outside this process (SMS, analytics) can consume them.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	logger   *logging.Logger
}

// NewSQSPublisher returns nil when the queue URL is empty, matching the
// optional-collaborator convention used by the email senders.
func NewSQSPublisher(client SQSAPI, queueURL string, logger *logging.Logger) *SQSPublisher {
	if client == nil || queueURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish sends one event to the queue with the event type as a message
// attribute so consumers can filter without parsing the body.
func (p *SQSPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(eventType),
			},
		},
	}
	output, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: sqs send: %w", err)
	}
	p.logger.Debug("event published to sqs", "type", eventType, "message_id", aws.ToString(output.MessageId))
	return nil
}

var _ QueuePublisher = (*SQSPublisher)(nil)
