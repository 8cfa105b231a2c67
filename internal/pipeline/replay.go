package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/drblury/pulseflow/internal/runtime/logging"
)

const maxReplayLine = 10 << 20

// ReplaySummary counts what an offline replay did.
type ReplaySummary struct {
	Lines       int            `json:"lines"`
	Rows        int            `json:"rows"`
	Written     int            `json:"written"`
	Failed      int            `json:"failed"`
	DeadLetters int            `json:"dead_letters"`
	ByFailure   map[string]int `json:"by_failure,omitempty"`
}

// ReplayFile processes newline-delimited envelopes from r in batches. Blank
// lines are ignored. Message ids are derived from name and line number so a
// repeated replay of the same file does not duplicate rows.
func (p *Pipeline) ReplayFile(ctx context.Context, name string, r io.Reader) (ReplaySummary, error) {
	summary := ReplaySummary{ByFailure: map[string]int{}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxReplayLine)

	batchSize := p.concurrency * 4
	batch := make([]Input, 0, batchSize)
	flush := func() {
		for _, out := range p.ProcessBatch(ctx, batch) {
			summary.Rows += len(out.Rows)
			summary.Written += out.Written
			summary.DeadLetters += len(out.DeadLetters)
			if out.Err != nil {
				summary.Failed++
				summary.ByFailure[out.Failure()]++
			}
		}
		batch = batch[:0]
	}

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		summary.Lines++
		batch = append(batch, Input{
			MessageID: fmt.Sprintf("%s:%d", name, line),
			Data:      bytes.Clone(text),
		})
		if len(batch) == batchSize {
			flush()
			if err := ctx.Err(); err != nil {
				return summary, err
			}
		}
	}
	if len(batch) > 0 {
		flush()
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("read %s: %w", name, err)
	}

	p.logger.Info("replay finished", logging.LogFields{
		"file":         name,
		"lines":        summary.Lines,
		"rows":         summary.Rows,
		"written":      summary.Written,
		"failed":       summary.Failed,
		"dead_letters": summary.DeadLetters,
	})
	return summary, nil
}
