package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends requests as JSON messages to a payments queue. FIFO
// queues get the booking id as group id and the idempotency key as
// deduplication id.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
	fifo     bool
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

func NewSQSPublisher(client sqsAPI, queueURL string) (*SQSPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("payments: sqs client is required")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("payments: sqs queue url is required")
	}
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}, nil
}

func (p *SQSPublisher) Publish(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("payments: encode request: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(string(req.Kind))},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(req.BookingID)
		input.MessageDeduplicationId = aws.String(req.IdempotencyKey)
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("payments: failed to send SQS message: %w", err)
	}
	return nil
}
