package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/holding"
	"github.com/drblury/pulseflow/internal/redrive"
	"github.com/drblury/pulseflow/internal/runtime/config"
	"github.com/drblury/pulseflow/internal/runtime/metrics"
	"github.com/drblury/pulseflow/transport"
	awstransport "github.com/drblury/pulseflow/transport/aws"
	"github.com/drblury/pulseflow/transport/postgres"
	"github.com/drblury/pulseflow/transport/sqlite"
	"github.com/drblury/pulseflow/transport/sqlqueue"
)

var errSourceRequired = errors.New("redrive: source is required (DLQ_SUB)")

func (a *App) newRedriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "redrive",
		Short: "Move held messages back to the ingress topic once",
		Long: `redrive pulls up to max_messages from the holding queue, strips the
dead-letter attributes, stamps replay metadata and republishes each message
to the destination topic before acknowledging it.

Exit codes: 0 when every message was handled, 2 when some failed and 1
when the run could not start.`,
		Args: cobra.NoArgs,
		RunE: a.runRedrive,
	}
}

func (a *App) runRedrive(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rc := a.conf.Redrive.WithDefaults()
	if rc.Source == "" {
		return errSourceRequired
	}
	destination := rc.Destination
	if destination == "" {
		destination = a.conf.Pipeline.WithDefaults().IngressTopic
	}

	queue, closeQueue, err := a.openHoldingQueue(ctx, rc)
	if err != nil {
		return err
	}
	defer closeQueue()

	tr, err := a.registry().Build(ctx, a.conf, a.watermillLogger())
	if err != nil {
		return fmt.Errorf("build destination transport: %w", err)
	}
	defer closeTransport(tr)

	m := metrics.NewRedrive(a.registerer())
	if err := m.Register(); err != nil {
		return err
	}
	w, err := redrive.NewWorker(queue, tr.Publisher, destination, redrive.FromConfig(rc), a.logger)
	if err != nil {
		return err
	}
	w.WithMetrics(m)

	if err := w.Check(ctx); err != nil {
		return err
	}
	summary, err := w.Run(ctx)
	a.logger.Info("Replay summary", summary.Fields())
	if perr := a.printJSON(summary); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		return err
	}
	a.exitCode = summary.ExitCode()
	return nil
}

// Queue constructors, replaced in tests.
var (
	newSQLiteQueue   = sqlite.New
	newPostgresQueue = postgres.New
	loadAWSConfig    = awstransport.LoadConfig
)

// openSQLQueue opens the lease queue of the sqlite or postgres backend.
func (a *App) openSQLQueue(ctx context.Context, backend string) (*sqlqueue.Queue, error) {
	switch backend {
	case sqlite.TransportName:
		return newSQLiteQueue(ctx, sqlite.Config{FilePath: a.conf.SQLiteFile}, a.watermillLogger())
	case postgres.TransportName:
		return newPostgresQueue(ctx, postgres.Config{ConnectionString: a.conf.PostgresURL}, a.watermillLogger())
	default:
		return nil, fmt.Errorf("%w, got %q", errSQLBackend, backend)
	}
}

func (a *App) openHoldingQueue(ctx context.Context, rc config.RedriveConfig) (redrive.HoldingQueue, func(), error) {
	if rc.Backend == "sqs" {
		awsCfg, err := loadAWSConfig(ctx, a.conf, a.watermillLogger())
		if err != nil {
			return nil, nil, err
		}
		return holding.NewSQSQueue(awstransport.NewSQSClient(awsCfg), rc.Source), func() {}, nil
	}
	q, err := a.openSQLQueue(ctx, rc.Backend)
	if err != nil {
		return nil, nil, err
	}
	return holding.NewSQLQueue(q, rc.Source), func() { _ = q.Close() }, nil
}

func closeTransport(tr transport.Transport) {
	if tr.Publisher != nil {
		_ = tr.Publisher.Close()
	}
	if tr.Subscriber != nil && any(tr.Subscriber) != any(tr.Publisher) {
		_ = tr.Subscriber.Close()
	}
}
