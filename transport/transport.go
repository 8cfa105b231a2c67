// Package transport defines the broker abstraction the pulseflow router and
// redrive worker run on. Each backend (kafka, rabbitmq, aws, sqlite, ...) lives
// in its own sub-package and registers a Builder with the registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the slice of configuration the transports read.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// GetIOFile is the NDJSON file read by the io transport.
	GetIOFile() string

	GetSQLiteFile() string

	GetPostgresURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// DLQManager is implemented by transports that keep dead-lettered messages in
// a queryable area.
type DLQManager interface {
	GetDLQCount(topic string) (int64, error)
	PurgeDLQ(topic string) (int64, error)
}

// DLQLister is implemented by transports that can list DLQ messages.
type DLQLister interface {
	ListDLQMessages(topic string, limit, offset int) ([]DLQMessage, error)
}

// DLQLeaser hands out dead-lettered messages under a lease so they can be
// redriven. A leased message is invisible to other lessees until the lease
// expires or it is acknowledged, which deletes it.
type DLQLeaser interface {
	LeaseDLQ(ctx context.Context, topic string, max int, lease time.Duration) ([]DLQMessage, error)
	ExtendDLQLease(ctx context.Context, ids []int64, lease time.Duration) error
	AckDLQ(ctx context.Context, ids []int64) error
}

// DLQMessage represents a message in the dead letter queue.
type DLQMessage struct {
	ID            int64             `json:"id"`
	UUID          string            `json:"uuid"`
	OriginalTopic string            `json:"original_topic"`
	Payload       []byte            `json:"payload"`
	Metadata      map[string]string `json:"metadata"`
	ErrorMessage  string            `json:"error_message"`
	FailedAt      time.Time         `json:"failed_at"`
	RetryCount    int               `json:"retry_count"`
}

// QueueIntrospector reports how many messages of a topic still wait to be
// consumed. The dlq stats command reads it next to the dead-letter count.
type QueueIntrospector interface {
	GetPendingCount(topic string) (int64, error)
}
