// Package pulseflow turns raw transit telemetry into curated rows on top of
// Watermill. Each message runs through four stages: decode, normalize into
// an Envelope, map into typed rows, and write to the curated store. A failure
// in any stage becomes a DeadLetterRecord instead of halting the stream.
//
// The Service reads the transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS, HTTP,
// I/O, SQLite, PostgreSQL or Go channels) from Config, bootstraps the router
// and registers the default middleware chain. Register Pipeline.Handler on the
// ingress topic and call Start.
//
// # Transports
//
//   - channel: in-memory Go channels for testing
//   - kafka: consumer groups through watermill-kafka
//   - rabbitmq: durable AMQP queues
//   - aws: SNS topics fanned out to SQS queues with a redrive policy
//   - nats: core NATS subjects
//   - http: webhook ingress and publisher
//   - io: NDJSON files
//   - sqlite: embedded queue with a leasable dead_letter_queue table
//   - postgres: queue with SKIP LOCKED and a leasable dead_letter_queue table
//
// # Failures
//
// Stage failures are permanent: they are written to the dead-letter sink and
// not retried in place. Transports with a native dead-letter area keep the
// failed message there; the others get it through the poison queue middleware,
// which publishes to the holding topic.
//
// # Redrive
//
// RedriveWorker drains a HoldingQueue in bounded, rate-limited runs. It strips
// the dead-letter attributes, stamps replay=true with a run id, republishes to
// the ingress topic and acknowledges. Messages already carrying replay=true
// are skipped so a poisoned message cannot loop. The run summary maps to the
// exit codes ExitOK, ExitFatal and ExitDegraded.
package pulseflow
