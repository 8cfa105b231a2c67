package holding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/drblury/pulseflow/internal/redrive"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
)

// SQS request limits.
const (
	sqsMaxBatch      = 10
	sqsMaxWait       = 20 * time.Second
	sqsMaxVisibility = 12 * time.Hour
)

// SQSAPI is the subset of the SQS client the queue calls.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	ChangeMessageVisibilityBatch(ctx context.Context, in *sqs.ChangeMessageVisibilityBatchInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error)
	DeleteMessageBatch(ctx context.Context, in *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSQueue drains an SQS dead-letter queue. Ack ids are receipt handles.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

// NewSQSQueue returns a queue over queueURL.
func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

// Name is the queue URL; its last segment is the queue name.
func (q *SQSQueue) Name() string { return q.queueURL }

// Pull long-polls for up to n messages, at most ten per request. The wait
// is kept inside the context deadline so an empty queue reads as empty
// instead of a timeout.
func (q *SQSQueue) Pull(ctx context.Context, n int) ([]redrive.Delivery, error) {
	n = min(max(n, 1), sqsMaxBatch)
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(n),
		WaitTimeSeconds:       waitSeconds(ctx),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, apiError("receive", err)
	}

	deliveries := make([]redrive.Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		attrs := make(map[string]string, len(m.MessageAttributes))
		for k, v := range m.MessageAttributes {
			if v.StringValue != nil {
				attrs[k] = *v.StringValue
			}
		}
		messageID := attrs[metadata.KeyMessageID]
		if messageID == "" {
			messageID = aws.ToString(m.MessageId)
		}
		deliveries = append(deliveries, redrive.Delivery{
			AckID:      aws.ToString(m.ReceiptHandle),
			MessageID:  messageID,
			Data:       []byte(aws.ToString(m.Body)),
			Attributes: attrs,
		})
	}
	return deliveries, nil
}

func waitSeconds(ctx context.Context) int32 {
	wait := sqsMaxWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline)-time.Second)
	}
	if wait < time.Second {
		return 0
	}
	return int32(wait / time.Second)
}

// ExtendLease changes the visibility timeout in batches of ten.
func (q *SQSQueue) ExtendLease(ctx context.Context, ackIDs []string, d time.Duration) error {
	timeout := int32(math.Ceil(min(d, sqsMaxVisibility).Seconds()))
	var errs []error
	for _, chunk := range chunks(ackIDs, sqsMaxBatch) {
		entries := make([]types.ChangeMessageVisibilityBatchRequestEntry, len(chunk))
		for i, handle := range chunk {
			entries[i] = types.ChangeMessageVisibilityBatchRequestEntry{
				Id:                aws.String(strconv.Itoa(i)),
				ReceiptHandle:     aws.String(handle),
				VisibilityTimeout: timeout,
			}
		}
		out, err := q.client.ChangeMessageVisibilityBatch(ctx, &sqs.ChangeMessageVisibilityBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			errs = append(errs, apiError("change visibility", err))
			continue
		}
		errs = append(errs, batchFailures("change visibility", out.Failed))
	}
	return errors.Join(errs...)
}

// Acknowledge deletes the messages in batches of ten.
func (q *SQSQueue) Acknowledge(ctx context.Context, ackIDs []string) error {
	var errs []error
	for _, chunk := range chunks(ackIDs, sqsMaxBatch) {
		entries := make([]types.DeleteMessageBatchRequestEntry, len(chunk))
		for i, handle := range chunk {
			entries[i] = types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(strconv.Itoa(i)),
				ReceiptHandle: aws.String(handle),
			}
		}
		out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.queueURL),
			Entries:  entries,
		})
		if err != nil {
			errs = append(errs, apiError("delete", err))
			continue
		}
		errs = append(errs, batchFailures("delete", out.Failed))
	}
	return errors.Join(errs...)
}

// Check reads the approximate depth of the queue.
func (q *SQSQueue) Check(ctx context.Context) error {
	_, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return apiError("get attributes", err)
	}
	return nil
}

// apiError keeps the AWS error code in the message and the chain intact.
func apiError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("sqs %s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("sqs %s: %w", op, err)
}

func batchFailures(op string, failed []types.BatchResultErrorEntry) error {
	if len(failed) == 0 {
		return nil
	}
	codes := make([]string, len(failed))
	for i, f := range failed {
		codes[i] = aws.ToString(f.Code)
	}
	return fmt.Errorf("sqs %s: %d entries failed: %s", op, len(failed), strings.Join(codes, ", "))
}
