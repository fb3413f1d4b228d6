package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotagate/internal/brokers"
	"quotagate/internal/common/awsutil"
	apperrors "quotagate/internal/common/errors"
)

type fakeSQS struct {
	queues    map[string]string
	sent      []*sqs.SendMessageInput
	received  []*sqs.ReceiveMessageInput
	deletes   []*sqs.DeleteMessageBatchInput
	created   *sqs.CreateQueueInput
	messages  []types.Message
	failIDs   map[string]bool
	sendErr   error
	deleteErr error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String(fmt.Sprintf("m-%d", len(f.sent)))}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = append(f.received, in)
	n := int(in.MaxNumberOfMessages)
	if n > len(f.messages) {
		n = len(f.messages)
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages[:n]}, nil
}

func (f *fakeSQS) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deletes = append(f.deletes, in)
	out := &sqs.DeleteMessageBatchOutput{}
	for _, e := range in.Entries {
		if f.failIDs[aws.ToString(e.ReceiptHandle)] {
			out.Failed = append(out.Failed, types.BatchResultErrorEntry{
				Id:      e.Id,
				Code:    aws.String("ReceiptHandleIsInvalid"),
				Message: aws.String("expired"),
			})
			continue
		}
		out.Successful = append(out.Successful, types.DeleteMessageBatchResultEntry{Id: e.Id})
	}
	return out, nil
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	url, ok := f.queues[aws.ToString(in.QueueName)]
	if !ok {
		return nil, &types.QueueDoesNotExist{Message: aws.String("no such queue")}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(url)}, nil
}

func (f *fakeSQS) CreateQueue(_ context.Context, in *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	f.created = in
	url := "https://sqs.us-west-2.amazonaws.com/123/" + aws.ToString(in.QueueName)
	f.queues[aws.ToString(in.QueueName)] = url
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(url)}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{"ApproximateNumberOfMessages": "0"}}, nil
}

func testConfig() *Config {
	c := DefaultConfig()
	c.AWS = awsutil.Config{Region: "us-west-2"}
	return c
}

const fifoURL = "https://sqs.us-west-2.amazonaws.com/123/CLIENT_THROTTLING_EVENTS.fifo"

func newTestQueue(t *testing.T, fake *fakeSQS) *Queue {
	if fake.queues == nil {
		fake.queues = map[string]string{DefaultQueueName: fifoURL}
	}
	q, err := NewQueueWithAPI(context.Background(), fake, testConfig())
	require.NoError(t, err)
	return q
}

func TestConfig_Validate(t *testing.T) {
	c := &Config{AWS: awsutil.Config{Region: "us-west-2"}}
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultQueueName, c.QueueName)
	assert.Equal(t, int32(30), c.VisibilityTimeout)
	assert.Equal(t, int32(100), c.RetentionSeconds)

	assert.Error(t, (&Config{}).Validate(), "region required")
	assert.Error(t, (&Config{AWS: awsutil.Config{Region: "r"}, WaitTimeSeconds: 21}).Validate())
	assert.Error(t, (&Config{AWS: awsutil.Config{Region: "r"}, QueueName: "plain", CreateIfMissing: true}).Validate())
}

func TestNewQueue_ResolvesURL(t *testing.T) {
	t.Run("existing queue", func(t *testing.T) {
		q := newTestQueue(t, &fakeSQS{})
		assert.Equal(t, fifoURL, q.URL())
	})

	t.Run("missing queue without create", func(t *testing.T) {
		_, err := NewQueueWithAPI(context.Background(), &fakeSQS{queues: map[string]string{}}, testConfig())
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
	})

	t.Run("creates fifo queue", func(t *testing.T) {
		fake := &fakeSQS{queues: map[string]string{}}
		config := testConfig()
		config.CreateIfMissing = true

		q, err := NewQueueWithAPI(context.Background(), fake, config)
		require.NoError(t, err)
		assert.Equal(t, fifoURL, q.URL())
		require.NotNil(t, fake.created)
		assert.Equal(t, "true", fake.created.Attributes["FifoQueue"])
		assert.Equal(t, "true", fake.created.Attributes["ContentBasedDeduplication"])
		assert.Equal(t, "100", fake.created.Attributes["MessageRetentionPeriod"])
	})

	t.Run("explicit url skips lookup", func(t *testing.T) {
		config := testConfig()
		config.QueueURL = "https://sqs.us-west-2.amazonaws.com/123/standard"
		q, err := NewQueueWithAPI(context.Background(), &fakeSQS{}, config)
		require.NoError(t, err)
		assert.False(t, q.fifo)
	})
}

func TestQueue_Send(t *testing.T) {
	fake := &fakeSQS{}
	q := newTestQueue(t, fake)

	require.NoError(t, q.Send(context.Background(), "orders:POST:acme", "orders:POST,acme,2024-01-01T00:00:00.000Z,second,0.5"))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "orders:POST:acme", aws.ToString(fake.sent[0].MessageGroupId))
	assert.Nil(t, fake.sent[0].MessageDeduplicationId, "content based deduplication")

	fake.sendErr = errors.New("throttled")
	err := q.Send(context.Background(), "g", "b")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypePublish))
}

func TestQueue_ReceiveBatch(t *testing.T) {
	fake := &fakeSQS{messages: []types.Message{
		{MessageId: aws.String("1"), ReceiptHandle: aws.String("r1"), Body: aws.String("a")},
		{MessageId: aws.String("2"), ReceiptHandle: aws.String("r2"), Body: aws.String("b")},
	}}
	q := newTestQueue(t, fake)

	msgs, err := q.ReceiveBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []brokers.Message{
		{ID: "1", ReceiptHandle: "r1", Body: "a"},
		{ID: "2", ReceiptHandle: "r2", Body: "b"},
	}, msgs)
	assert.Equal(t, int32(10), fake.received[0].MaxNumberOfMessages, "capped at the SQS limit")
}

func TestQueue_DeleteBatch(t *testing.T) {
	t.Run("reports per-message failures across chunks", func(t *testing.T) {
		fake := &fakeSQS{failIDs: map[string]bool{"r3": true, "r11": true}}
		q := newTestQueue(t, fake)

		msgs := make([]brokers.Message, 12)
		for i := range msgs {
			msgs[i] = brokers.Message{ID: fmt.Sprintf("m%d", i), ReceiptHandle: fmt.Sprintf("r%d", i)}
		}

		failed, err := q.DeleteBatch(context.Background(), msgs)
		require.NoError(t, err)
		assert.Len(t, fake.deletes, 2)
		assert.Equal(t, []brokers.DeleteFailure{
			{ID: "m3", Code: "ReceiptHandleIsInvalid", Reason: "expired"},
			{ID: "m11", Code: "ReceiptHandleIsInvalid", Reason: "expired"},
		}, failed)
	})

	t.Run("request error fails the whole chunk", func(t *testing.T) {
		fake := &fakeSQS{deleteErr: errors.New("network")}
		q := newTestQueue(t, fake)

		failed, err := q.DeleteBatch(context.Background(), []brokers.Message{{ID: "a", ReceiptHandle: "ra"}})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "a", failed[0].ID)
	})
}

func TestQueue_Health(t *testing.T) {
	q := newTestQueue(t, &fakeSQS{})
	assert.NoError(t, q.Health(context.Background()))
}
