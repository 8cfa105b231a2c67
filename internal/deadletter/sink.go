package deadletter

import (
	"context"
	"fmt"

	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// Sink persists dead-letter records.
type Sink interface {
	WriteDeadLetters(ctx context.Context, records []Record) error
}

// Inserter is the storage side of StoreSink; *store.Store implements it.
type Inserter interface {
	InsertDeadLetters(ctx context.Context, table string, records []Record) error
}

// StoreSink writes records to a dead-letter table.
type StoreSink struct {
	inserter Inserter
	table    string
}

// NewStoreSink builds a StoreSink for table.
func NewStoreSink(inserter Inserter, table string) *StoreSink {
	return &StoreSink{inserter: inserter, table: table}
}

// Table returns the destination table.
func (s *StoreSink) Table() string { return s.table }

func (s *StoreSink) WriteDeadLetters(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.inserter.InsertDeadLetters(ctx, s.table, records); err != nil {
		return fmt.Errorf("write %d dead letters to %s: %w", len(records), s.table, err)
	}
	return nil
}

// LogSink is the degraded mode used when no dead-letter destination is
// configured: every record is logged and then dropped.
type LogSink struct {
	logger logging.ServiceLogger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger logging.ServiceLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) WriteDeadLetters(_ context.Context, records []Record) error {
	for _, r := range records {
		fields := logging.LogFields{
			"stage":         string(r.Stage),
			"error_type":    r.ErrorType,
			"error_message": r.ErrorMessage,
			"raw_bytes":     len(r.Raw),
		}
		if r.MessageID != "" {
			fields["message_id"] = r.MessageID
		}
		if r.EventMeta != nil {
			fields["source"] = r.EventMeta.Source
			fields["event_type"] = r.EventMeta.EventType
			fields["key"] = r.EventMeta.Key
		}
		if r.Destination != "" {
			fields["destination"] = r.Destination
		}
		s.logger.Info("dead letter dropped, no destination configured", fields)
	}
	return nil
}
