package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSReceiver turns S3 bucket notifications delivered to an SQS queue into
// object_events tasks. This is the event source for deployments where the
// store itself announces object creation; transcript objects written by the
// transcription service arrive through this path.
type SQSReceiver struct {
	client   sqsAPI
	queueURL string
	tasks    chan Task
	stop     chan struct{}
}

var _ Receiver = (*SQSReceiver)(nil)

func NewSQSReceiver(ctx context.Context, region, queueURL string) (*SQSReceiver, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, aws_config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	r := &SQSReceiver{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: queueURL,
		tasks:    make(chan Task),
		stop:     make(chan struct{}),
	}

	go r.poll()

	return r, nil
}

func (r *SQSReceiver) poll() {
	for {
		select {
		case <-r.stop:
			close(r.tasks)
			return
		default:
		}

		out, err := r.client.ReceiveMessage(context.Background(), &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			slog.Error("failed to receive messages from sqs", "queue_url", r.queueURL, "error", err)
			time.Sleep(RetryDelay)
			continue
		}

		for _, msg := range out.Messages {
			task, err := r.makeTask(msg)
			if err != nil {
				slog.Warn("discarding undecodable sqs message", "message_id", aws.ToString(msg.MessageId), "error", err)
				r.delete(aws.ToString(msg.ReceiptHandle))
				continue
			}
			if task == nil { // test event or empty record list
				r.delete(aws.ToString(msg.ReceiptHandle))
				continue
			}
			r.tasks <- task
		}
	}
}

func (r *SQSReceiver) makeTask(msg types.Message) (*sqsTask, error) {
	body := aws.ToString(msg.Body)

	// S3 sends a probe event when a bucket notification is first configured.
	if strings.Contains(body, `"s3:TestEvent"`) {
		return nil, nil
	}

	var s3Event events.S3Event
	if err := json.Unmarshal([]byte(body), &s3Event); err != nil {
		return nil, fmt.Errorf("failed to parse s3 notification: %w", err)
	}

	var records []ObjectRecord
	for _, rec := range s3Event.Records {
		// Keys in S3 notifications are URL-encoded.
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to decode object key %q: %w", rec.S3.Object.Key, err)
		}
		records = append(records, ObjectRecord{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
		})
	}

	if len(records) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(ObjectCreatedPayload{Records: records})
	if err != nil {
		return nil, err
	}

	return &sqsTask{
		client:        r.client,
		queueURL:      r.queueURL,
		receiptHandle: aws.ToString(msg.ReceiptHandle),
		payload:       payload,
	}, nil
}

func (r *SQSReceiver) delete(receiptHandle string) {
	_, err := r.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		slog.Error("failed to delete sqs message", "error", err)
	}
}

func (r *SQSReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *SQSReceiver) Close() {
	close(r.stop)
}

type sqsTask struct {
	client        sqsAPI
	queueURL      string
	receiptHandle string
	payload       []byte
}

func (t *sqsTask) Type() string {
	return ObjectEventsQueue
}

func (t *sqsTask) Payload() []byte {
	return t.payload
}

func (t *sqsTask) Ack() error {
	_, err := t.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(t.queueURL),
		ReceiptHandle: aws.String(t.receiptHandle),
	})
	return err
}

// Nack makes the message immediately visible again; SQS redelivers the whole
// batch, which is the accepted at-least-once behavior.
func (t *sqsTask) Nack() error {
	_, err := t.client.ChangeMessageVisibility(context.Background(), &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(t.queueURL),
		ReceiptHandle:     aws.String(t.receiptHandle),
		VisibilityTimeout: 0,
	})
	return err
}

func (t *sqsTask) Reject() error {
	_, err := t.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(t.queueURL),
		ReceiptHandle: aws.String(t.receiptHandle),
	})
	return err
}
