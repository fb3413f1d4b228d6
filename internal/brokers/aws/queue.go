// Package aws provides the SQS implementation of the event queue. Events
// are sent to a FIFO queue with content-based deduplication, grouped by
// quota record so a record's events are consumed in order.
package aws

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"quotagate/internal/brokers"
	"quotagate/internal/common/awsutil"
	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
)

// SQSAPI is the subset of the SQS client the queue calls
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type Queue struct {
	client   SQSAPI
	config   *Config
	queueURL string
	fifo     bool
	logger   logging.Logger
}

// NewQueue loads AWS configuration, builds an SQS client and resolves the queue URL
func NewQueue(ctx context.Context, config *Config) (*Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := awsutil.Load(ctx, &config.AWS)
	if err != nil {
		return nil, err
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if ep := config.AWS.Endpoint(); ep != nil {
			o.BaseEndpoint = ep
		}
	})
	return NewQueueWithAPI(ctx, client, config)
}

// NewQueueWithAPI wraps an existing client and resolves the queue URL
func NewQueueWithAPI(ctx context.Context, client SQSAPI, config *Config) (*Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	q := &Queue{
		client: client,
		config: config,
		logger: logging.Component("sqs-queue"),
	}

	url := config.QueueURL
	if url == "" {
		var err error
		if url, err = q.resolveURL(ctx); err != nil {
			return nil, err
		}
	}
	q.queueURL = url
	q.fifo = strings.HasSuffix(url, ".fifo")
	q.logger = q.logger.WithFields(logging.String("queue_url", url))
	return q, nil
}

func (q *Queue) resolveURL(ctx context.Context) (string, error) {
	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.config.QueueName)})
	if err == nil {
		return aws.ToString(out.QueueUrl), nil
	}

	var missing *types.QueueDoesNotExist
	if !stderrors.As(err, &missing) || !q.config.CreateIfMissing {
		return "", errors.ConnectionError("failed to resolve SQS queue URL", err).
			WithContext("queue", q.config.QueueName)
	}

	created, err := q.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(q.config.QueueName),
		Attributes: map[string]string{
			string(types.QueueAttributeNameFifoQueue):                     "true",
			string(types.QueueAttributeNameContentBasedDeduplication):     "true",
			string(types.QueueAttributeNameMessageRetentionPeriod):        strconv.Itoa(int(q.config.RetentionSeconds)),
			string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds): "20",
			string(types.QueueAttributeNameVisibilityTimeout):             strconv.Itoa(int(q.config.VisibilityTimeout)),
		},
	})
	if err != nil {
		return "", errors.ConnectionError("failed to create SQS queue", err).
			WithContext("queue", q.config.QueueName)
	}
	q.logger.Info("Created SQS queue", logging.String("queue", q.config.QueueName))
	return aws.ToString(created.QueueUrl), nil
}

// URL returns the resolved queue URL
func (q *Queue) URL() string {
	return q.queueURL
}

func (q *Queue) Send(ctx context.Context, groupID, body string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	}
	if q.fifo {
		input.MessageGroupId = aws.String(groupID)
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return errors.PublishError("failed to send message to SQS", err).WithContext("group", groupID)
	}
	return nil
}

func (q *Queue) ReceiveBatch(ctx context.Context, max int) ([]brokers.Message, error) {
	if max <= 0 || max > maxReceive {
		max = maxReceive
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		VisibilityTimeout:   q.config.VisibilityTimeout,
		WaitTimeSeconds:     q.config.WaitTimeSeconds,
	})
	if err != nil {
		return nil, errors.ConnectionError("failed to receive SQS messages", err)
	}

	msgs := make([]brokers.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, brokers.Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	return msgs, nil
}

// DeleteBatch deletes in chunks of ten. Batch entry ids are positional
// because SQS restricts their character set.
func (q *Queue) DeleteBatch(ctx context.Context, messages []brokers.Message) ([]brokers.DeleteFailure, error) {
	var failed []brokers.DeleteFailure

	for start := 0; start < len(messages); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]

		entries := make([]types.DeleteMessageBatchRequestEntry, len(chunk))
		for i, m := range chunk {
			entries[i] = types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(strconv.Itoa(i)),
				ReceiptHandle: aws.String(m.ReceiptHandle),
			}
		}

		out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			for _, m := range chunk {
				failed = append(failed, brokers.DeleteFailure{ID: m.ID, Code: "RequestFailed", Reason: err.Error()})
			}
			continue
		}

		for _, f := range out.Failed {
			i, convErr := strconv.Atoi(aws.ToString(f.Id))
			if convErr != nil || i < 0 || i >= len(chunk) {
				continue
			}
			failed = append(failed, brokers.DeleteFailure{
				ID:     chunk[i].ID,
				Code:   aws.ToString(f.Code),
				Reason: aws.ToString(f.Message),
			})
		}
	}
	return failed, nil
}

func (q *Queue) Health(ctx context.Context) error {
	_, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return errors.ConnectionError("SQS health check failed", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return nil
}
