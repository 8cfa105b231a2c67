package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
)

// SNSAPI is the part of the SNS client used to probe the service.
type SNSAPI interface {
	ListTopics(ctx context.Context, in *amazonsns.ListTopicsInput, optFns ...func(*amazonsns.Options)) (*amazonsns.ListTopicsOutput, error)
}

// SNSClientFactory allows overriding the probe client for testing.
var SNSClientFactory = func(awsCfg aws.Config, optFns ...func(*amazonsns.Options)) SNSAPI {
	return amazonsns.NewFromConfig(awsCfg, optFns...)
}

// CheckedPublisher is the SNS publisher with a reachability probe. Missing
// topics are created on publish, so the probe only lists topics.
type CheckedPublisher struct {
	message.Publisher
	client SNSAPI
}

// Check fails when SNS is unreachable or the credentials are rejected.
func (p *CheckedPublisher) Check(ctx context.Context) error {
	if _, err := p.client.ListTopics(ctx, &amazonsns.ListTopicsInput{}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("sns list topics (%s): %w", apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("sns list topics: %w", err)
	}
	return nil
}
