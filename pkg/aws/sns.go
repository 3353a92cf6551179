package aws

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// EventTypeAttribute carries the catalog event type so subscriptions can filter on it.
const EventTypeAttribute = "eventType"

// ErrNoTopic is returned when events are published without a topic ARN.
var ErrNoTopic = errors.New("catalog events topic is not configured")

// SNSPublisher publishes catalog events.
type SNSPublisher interface {
	PublishEvent(ctx context.Context, topicArn, eventType string, message []byte) error
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client snsAPI
}

func NewSNSClient(cfg sdkaws.Config) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg)}
}

// PublishEvent sends message to topicArn tagged with eventType.
func (s *SNSClient) PublishEvent(ctx context.Context, topicArn, eventType string, message []byte) error {
	if topicArn == "" {
		return ErrNoTopic
	}

	in := &sns.PublishInput{
		TopicArn: sdkaws.String(topicArn),
		Message:  sdkaws.String(string(message)),
	}
	if eventType != "" {
		in.Subject = sdkaws.String(eventType)
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			EventTypeAttribute: {DataType: sdkaws.String("String"), StringValue: sdkaws.String(eventType)},
		}
	}

	if _, err := s.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}
