package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drblury/pulseflow/internal/deadletter"
	"github.com/drblury/pulseflow/internal/pipeline"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/internal/sink"
	"github.com/drblury/pulseflow/internal/stage"
	"github.com/drblury/pulseflow/internal/store"
)

var errStoreRequired = errors.New("pipeline.store_driver is required")

// openStore is replaced in tests.
var openStore = store.Open

// buildPipeline opens the curated store and wires the pipeline over it. The
// returned close func releases the store.
func (a *App) buildPipeline(ctx context.Context, stages *metrics.Stages) (*pipeline.Pipeline, func(), error) {
	pc := a.conf.Pipeline.WithDefaults()
	if pc.StoreDriver == "" {
		return nil, nil, errStoreRequired
	}
	st, err := openStore(pc.StoreDriver, pc.StoreDSN)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = st.Close() }
	if err := st.Ping(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("store unreachable: %w", err)
	}
	if pc.AutoMigrate {
		if err := st.EnsureSchema(ctx, pc.DeadLetterTable); err != nil {
			closeStore()
			return nil, nil, err
		}
	}

	runner := stage.NewRunner(stage.WithMetrics(stages), stage.WithMaxRawBytes(pc.MaxRawBytes))
	writer, err := sink.NewWriter(st,
		sink.WithRunner(runner),
		sink.WithMetrics(stages),
		sink.WithLogger(a.logger),
		sink.WithRetry(pc.SinkMaxAttempts, time.Duration(pc.SinkInitialInterval)*time.Millisecond),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	var deadLetters deadletter.Sink
	if pc.DeadLetterTable != "" {
		deadLetters = deadletter.NewStoreSink(st, pc.DeadLetterTable)
	}
	p, err := pipeline.New(pipeline.Dependencies{
		Runner:      runner,
		Writer:      writer,
		DeadLetters: deadLetters,
		Logger:      a.logger,
		Metrics:     stages,
		Concurrency: pc.Concurrency,
		RawLanding:  pc.RawLanding,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return p, closeStore, nil
}

func (a *App) newStages() (*metrics.Stages, error) {
	stages := metrics.NewStages(a.registerer())
	if err := stages.Register(); err != nil {
		return nil, err
	}
	return stages, nil
}
