package holding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queueURL = "https://sqs.eu-west-3.amazonaws.com/123456789012/pulse-ingress-hold"

type fakeSQS struct {
	receiveIn  *sqs.ReceiveMessageInput
	messages   []types.Message
	receiveErr error

	visibility []*sqs.ChangeMessageVisibilityBatchInput
	deletes    []*sqs.DeleteMessageBatchInput
	failDelete bool
	attrsErr   error
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.receiveIn = in
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) ChangeMessageVisibilityBatch(_ context.Context, in *sqs.ChangeMessageVisibilityBatchInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error) {
	f.visibility = append(f.visibility, in)
	return &sqs.ChangeMessageVisibilityBatchOutput{}, nil
}

func (f *fakeSQS) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	f.deletes = append(f.deletes, in)
	out := &sqs.DeleteMessageBatchOutput{}
	if f.failDelete {
		out.Failed = []types.BatchResultErrorEntry{{Id: aws.String("0"), Code: aws.String("ReceiptHandleIsInvalid")}}
	}
	return out, nil
}

func (f *fakeSQS) GetQueueAttributes(context.Context, *sqs.GetQueueAttributesInput, ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if f.attrsErr != nil {
		return nil, f.attrsErr
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

func handles(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("rh-%d", i)
	}
	return out
}

func TestSQSQueuePull(t *testing.T) {
	client := &fakeSQS{messages: []types.Message{
		{
			MessageId:     aws.String("sqs-1"),
			ReceiptHandle: aws.String("rh-1"),
			Body:          aws.String(`{"source":"velib"}`),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"source":     {DataType: aws.String("String"), StringValue: aws.String("velib")},
				"message_id": {DataType: aws.String("String"), StringValue: aws.String("pubsub-1")},
				"blob":       {DataType: aws.String("Binary"), BinaryValue: []byte{1}},
			},
		},
		{MessageId: aws.String("sqs-2"), ReceiptHandle: aws.String("rh-2"), Body: aws.String(`{}`)},
	}}
	q := NewSQSQueue(client, queueURL)
	assert.Equal(t, queueURL, q.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got, err := q.Pull(ctx, 50)
	require.NoError(t, err)

	assert.Equal(t, int32(10), client.receiveIn.MaxNumberOfMessages)
	assert.Equal(t, []string{"All"}, client.receiveIn.MessageAttributeNames)
	assert.InDelta(t, 8, client.receiveIn.WaitTimeSeconds, 1, "long poll stays inside the deadline")

	require.Len(t, got, 2)
	assert.Equal(t, "rh-1", got[0].AckID)
	assert.Equal(t, "pubsub-1", got[0].MessageID)
	assert.Equal(t, map[string]string{"source": "velib", "message_id": "pubsub-1"}, got[0].Attributes)
	assert.Equal(t, `{"source":"velib"}`, string(got[0].Data))
	assert.Equal(t, "sqs-2", got[1].MessageID)
}

func TestSQSQueuePullWaits(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSQueue(client, queueURL)

	got, err := q.Pull(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(1), client.receiveIn.MaxNumberOfMessages)
	assert.Equal(t, int32(20), client.receiveIn.WaitTimeSeconds)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = q.Pull(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(0), client.receiveIn.WaitTimeSeconds)
}

func TestSQSQueuePullErrorKeepsCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue", Message: "gone"}
	q := NewSQSQueue(&fakeSQS{receiveErr: apiErr}, queueURL)

	_, err := q.Pull(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS.SimpleQueueService.NonExistentQueue")
	var target smithy.APIError
	assert.True(t, errors.As(err, &target))
}

func TestSQSQueueExtendLeaseChunks(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSQueue(client, queueURL)

	require.NoError(t, q.ExtendLease(context.Background(), handles(23), 61500*time.Millisecond))
	require.Len(t, client.visibility, 3)
	assert.Len(t, client.visibility[0].Entries, 10)
	assert.Len(t, client.visibility[1].Entries, 10)
	assert.Len(t, client.visibility[2].Entries, 3)

	first := client.visibility[0].Entries[0]
	assert.Equal(t, "0", aws.ToString(first.Id))
	assert.Equal(t, "rh-0", aws.ToString(first.ReceiptHandle))
	assert.Equal(t, int32(62), first.VisibilityTimeout)
	assert.Equal(t, "rh-22", aws.ToString(client.visibility[2].Entries[2].ReceiptHandle))
}

func TestSQSQueueAcknowledge(t *testing.T) {
	client := &fakeSQS{}
	q := NewSQSQueue(client, queueURL)

	require.NoError(t, q.Acknowledge(context.Background(), handles(12)))
	require.Len(t, client.deletes, 2)
	assert.Len(t, client.deletes[1].Entries, 2)
	assert.Equal(t, queueURL, aws.ToString(client.deletes[0].QueueUrl))

	require.NoError(t, q.Acknowledge(context.Background(), nil))
	assert.Len(t, client.deletes, 2)

	client.failDelete = true
	err := q.Acknowledge(context.Background(), handles(1))
	assert.ErrorContains(t, err, "ReceiptHandleIsInvalid")
}

func TestSQSQueueCheck(t *testing.T) {
	assert.NoError(t, NewSQSQueue(&fakeSQS{}, queueURL).Check(context.Background()))
	err := NewSQSQueue(&fakeSQS{attrsErr: &smithy.GenericAPIError{Code: "AccessDenied"}}, queueURL).Check(context.Background())
	assert.ErrorContains(t, err, "AccessDenied")
}
