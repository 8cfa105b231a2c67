// Package io provides a file transport over an NDJSON journal. Each line is a
// record {"uuid","topic","metadata","payload"}; a JSON payload is stored
// inline so captured feed snapshots stay readable and hand-editable.
package io

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when the config leaves the file empty.
const DefaultFilePath = "pulseflow_messages.ndjson"

// TailInterval is how long the subscriber waits at end of file before looking
// for appended lines.
var TailInterval = 50 * time.Millisecond

// Capabilities of the io transport. The journal is append-only; nacked lines
// are logged and skipped.
var Capabilities = transport.Capabilities{
	Name:             TransportName,
	SupportsOrdering: true,
	SupportsAck:      true,
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &Publisher{filePath: filePath, logger: logger}, nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Subscriber{filePath: filePath, logger: logger}, nil
}

// Register adds the io transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, Capabilities)
}

// Build creates a publisher and subscriber over the same journal file.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}
	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

type record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  json.RawMessage   `json:"payload"`
}

// encodePayload keeps valid JSON inline and stores anything else as a string.
func encodePayload(p []byte) (json.RawMessage, error) {
	if json.Valid(p) {
		return json.RawMessage(p), nil
	}
	return jsoncodec.Marshal(string(p))
}

func decodePayload(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := jsoncodec.Unmarshal(trimmed, &s); err == nil {
			return []byte(s)
		}
	}
	return trimmed
}

// Publisher appends records to the journal.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter
	mu       sync.Mutex
}

// Publish appends one line per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, msg := range messages {
		payload, err := encodePayload(msg.Payload)
		if err != nil {
			return err
		}
		line, err := jsoncodec.Marshal(record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  payload,
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Close is a no-op; the file is opened per publish.
func (p *Publisher) Close() error { return nil }

// Subscriber tails the journal and delivers the records of one topic, waiting
// for each message to be acked or nacked before reading the next.
type Subscriber struct {
	filePath string
	logger   watermill.LoggerAdapter
}

// Subscribe starts tailing from the beginning of the file.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte
	for ctx.Err() == nil {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		switch {
		case errors.Is(err, io.EOF):
			// an unterminated line is kept until the writer finishes it
			select {
			case <-ctx.Done():
				return
			case <-time.After(TailInterval):
			}
			continue
		case err != nil:
			s.logger.Error("io transport read failed", err, watermill.LogFields{"file": s.filePath})
			return
		}

		line := bytes.TrimSpace(partial)
		partial = nil
		if len(line) == 0 {
			continue
		}
		if !s.deliver(ctx, line, topic, out) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, line []byte, topic string, out chan<- *message.Message) bool {
	var rec record
	if err := jsoncodec.Unmarshal(line, &rec); err != nil {
		s.logger.Error("io transport skipped malformed line", err, watermill.LogFields{"file": s.filePath})
		return true
	}
	if rec.Topic != topic {
		return true
	}

	msg := message.NewMessage(rec.UUID, decodePayload(rec.Payload))
	for k, v := range rec.Metadata {
		msg.Metadata.Set(k, v)
	}

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Info("io transport message nacked, not redelivered", watermill.LogFields{"uuid": msg.UUID, "topic": topic})
	case <-ctx.Done():
		return false
	}
	return true
}

// Close is a no-op; subscriptions end with their context.
func (s *Subscriber) Close() error { return nil }
