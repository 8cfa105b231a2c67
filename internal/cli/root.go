// Package cli is the pulseflow command line: serve, redrive, replay and dlq.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/redrive"
	"github.com/drblury/pulseflow/internal/runtime/config"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/transport"
	_ "github.com/drblury/pulseflow/transport/transports" // built-in transports
)

// App holds what the commands share. The zero value writes to the process
// streams and uses the default transport registry.
type App struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Registry   *transport.Registry
	Registerer prometheus.Registerer

	configPath string
	conf       *config.Config
	logger     logging.ServiceLogger
	exitCode   int
}

// Execute runs the command line in args and returns the process exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	a.exitCode = redrive.ExitOK

	root := a.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return redrive.ExitFatal
	}
	return a.exitCode
}

// NewRootCommand builds the command tree.
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulseflow",
		Short: "Transit telemetry pipeline",
		Long: `pulseflow turns raw transit telemetry envelopes into curated rows.

Failures at any stage become dead-letter records. The redrive command
drains the holding queue back into the ingress topic.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./pulseflow.yaml)")

	root.AddCommand(
		a.newServeCommand(),
		a.newRedriveCommand(),
		a.newReplayCommand(),
		a.newDLQCommand(),
	)
	return root
}

func (a *App) loadConfig(*cobra.Command, []string) error {
	conf, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	a.conf = conf
	a.logger = logging.NewJSONLogger(a.Stderr, logging.ParseLevel(conf.LogLevel))
	a.logger.Debug("Configuration loaded", logging.LogFields{"config": conf.String()})
	return nil
}

func (a *App) registry() *transport.Registry {
	if a.Registry != nil {
		return a.Registry
	}
	return transport.DefaultRegistry
}

func (a *App) registerer() prometheus.Registerer {
	if a.Registerer != nil {
		return a.Registerer
	}
	return prometheus.DefaultRegisterer
}

func (a *App) watermillLogger() watermill.LoggerAdapter {
	return logging.NewWatermillAdapter(a.logger)
}

// printJSON writes v as one JSON line on stdout.
func (a *App) printJSON(v any) error {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.Stdout, string(data))
	return err
}

var errSQLBackend = errors.New("dlq commands need the sqlite or postgres backend")
