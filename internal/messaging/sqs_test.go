package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s3Notification(bucket string, keys ...string) string {
	type record struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	}

	var records []record
	for _, key := range keys {
		var rec record
		rec.EventName = "ObjectCreated:Put"
		rec.S3.Bucket.Name = bucket
		rec.S3.Object.Key = key
		records = append(records, rec)
	}

	body, err := json.Marshal(map[string]any{"Records": records})
	if err != nil {
		panic(err)
	}
	return string(body)
}

func TestSQSMakeTaskDecodesNotification(t *testing.T) {
	r := &SQSReceiver{queueURL: "https://sqs.test/queue"}

	msg := types.Message{
		Body:          aws.String(s3Notification("memos", "audio/a.m4a", "transcripts/transcribe-1.json")),
		ReceiptHandle: aws.String("receipt-1"),
	}

	task, err := r.makeTask(msg)
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, ObjectEventsQueue, task.Type())
	assert.Equal(t, "receipt-1", task.receiptHandle)

	var payload ObjectCreatedPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Len(t, payload.Records, 2)
	assert.Equal(t, ObjectRecord{Bucket: "memos", Key: "audio/a.m4a"}, payload.Records[0])
	assert.Equal(t, ObjectRecord{Bucket: "memos", Key: "transcripts/transcribe-1.json"}, payload.Records[1])
}

func TestSQSMakeTaskUnescapesObjectKeys(t *testing.T) {
	r := &SQSReceiver{}

	msg := types.Message{
		Body:          aws.String(s3Notification("memos", "audio/voice+memo%3A1.m4a")),
		ReceiptHandle: aws.String("receipt-1"),
	}

	task, err := r.makeTask(msg)
	require.NoError(t, err)
	require.NotNil(t, task)

	var payload ObjectCreatedPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "audio/voice memo:1.m4a", payload.Records[0].Key)
}

func TestSQSMakeTaskDropsTestEvent(t *testing.T) {
	r := &SQSReceiver{}

	msg := types.Message{
		Body:          aws.String(`{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"memos"}`),
		ReceiptHandle: aws.String("receipt-1"),
	}

	task, err := r.makeTask(msg)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSQSMakeTaskDropsEmptyRecordList(t *testing.T) {
	r := &SQSReceiver{}

	msg := types.Message{
		Body:          aws.String(`{"Records":[]}`),
		ReceiptHandle: aws.String("receipt-1"),
	}

	task, err := r.makeTask(msg)
	require.NoError(t, err)
	assert.Nil(t, task)
}

type failingSQSClient struct {
	receives atomic.Int32
}

func (c *failingSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	c.receives.Add(1)
	return nil, errors.New("access denied")
}

func (c *failingSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func (c *failingSQSClient) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func TestSQSPollDelaysAfterReceiveError(t *testing.T) {
	client := &failingSQSClient{}
	r := &SQSReceiver{
		client:   client,
		queueURL: "https://sqs.test/queue",
		tasks:    make(chan Task),
		stop:     make(chan struct{}),
	}

	go r.poll()

	// A persistent receive failure must back off for RetryDelay between
	// attempts rather than spinning, so only the first call lands here.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), client.receives.Load())
}

func TestSQSMakeTaskRejectsMalformedBody(t *testing.T) {
	r := &SQSReceiver{}

	msg := types.Message{
		Body:          aws.String(`not json`),
		ReceiptHandle: aws.String("receipt-1"),
	}

	_, err := r.makeTask(msg)
	assert.Error(t, err)
}
