package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/redrive"
)

func (a *App) newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Process a newline-delimited envelope file offline",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runReplay,
	}
}

func (a *App) runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	stages, err := a.newStages()
	if err != nil {
		return err
	}
	p, closeStore, err := a.buildPipeline(ctx, stages)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := p.ReplayFile(ctx, filepath.Base(args[0]), f)
	if perr := a.printJSON(summary); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		a.exitCode = redrive.ExitDegraded
	}
	return nil
}
