// Package holding adapts the dead-letter areas of the backends to the
// redrive.HoldingQueue interface.
package holding

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/drblury/pulseflow/internal/redrive"
)

// ErrAckID is returned for ack ids the queue did not hand out.
var ErrAckID = errors.New("holding: malformed ack id")

var (
	_ redrive.HoldingQueue = (*SQLQueue)(nil)
	_ redrive.HoldingQueue = (*SQSQueue)(nil)
	_ redrive.Checker      = (*SQLQueue)(nil)
	_ redrive.Checker      = (*SQSQueue)(nil)
)

func parseIDs(ackIDs []string) ([]int64, error) {
	ids := make([]int64, 0, len(ackIDs))
	for _, s := range ackIDs {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrAckID, s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
