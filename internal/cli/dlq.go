package cli

import (
	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/sqlqueue"
)

// DLQStats is printed by "dlq stats".
type DLQStats struct {
	Backend      string `json:"backend"`
	Topic        string `json:"topic,omitempty"`
	DeadLettered int64  `json:"dead_lettered"`
	Pending      *int64 `json:"pending,omitempty"`
}

func (a *App) newDLQCommand() *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect the dead-letter area of the sqlite or postgres backend",
	}

	stats := &cobra.Command{
		Use:   "stats [topic]",
		Short: "Print held and pending counts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runDLQStats,
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list [topic]",
		Short: "List held messages, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDLQ(cmd, func(q *sqlqueue.Queue) error {
				msgs, err := q.ListDLQMessages(firstArg(args), limit, offset)
				if err != nil {
					return err
				}
				if msgs == nil {
					msgs = []transport.DLQMessage{}
				}
				return a.printJSON(msgs)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "maximum number of messages")
	list.Flags().IntVar(&offset, "offset", 0, "number of messages to skip")

	purge := &cobra.Command{
		Use:   "purge TOPIC",
		Short: "Delete every held message of TOPIC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDLQ(cmd, func(q *sqlqueue.Queue) error {
				n, err := q.PurgeDLQ(args[0])
				if err != nil {
					return err
				}
				a.logger.Info("Purged dead letters", logging.LogFields{"topic": args[0], "deleted": n})
				return a.printJSON(map[string]any{"topic": args[0], "deleted": n})
			})
		},
	}

	dlq.AddCommand(stats, list, purge)
	return dlq
}

func (a *App) runDLQStats(cmd *cobra.Command, args []string) error {
	return a.withDLQ(cmd, func(q *sqlqueue.Queue) error {
		topic := firstArg(args)
		out := DLQStats{Backend: a.conf.Redrive.WithDefaults().Backend, Topic: topic}
		var err error
		if out.DeadLettered, err = q.GetDLQCount(topic); err != nil {
			return err
		}
		if topic != "" {
			pending, err := q.GetPendingCount(topic)
			if err != nil {
				return err
			}
			out.Pending = &pending
		}
		return a.printJSON(out)
	})
}

func (a *App) withDLQ(cmd *cobra.Command, fn func(*sqlqueue.Queue) error) error {
	q, err := a.openSQLQueue(cmd.Context(), a.conf.Redrive.WithDefaults().Backend)
	if err != nil {
		return err
	}
	defer q.Close()
	return fn(q)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
