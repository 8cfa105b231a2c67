package redrive

import "github.com/drblury/pulseflow/internal/runtime/logging"

// Stop reasons.
const (
	StopQuota       = "max_messages"
	StopEmpty       = "empty"
	StopPullTimeout = "pull_timeout"
	StopPullError   = "pull_error"
	StopCanceled    = "canceled"
)

// Exit codes of a run.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitDegraded = 2
)

// Summary counts what one run did.
type Summary struct {
	RunID        string `json:"run_id"`
	Source       string `json:"source"`
	Destination  string `json:"destination"`
	DryRun       bool   `json:"dry_run"`
	Pulled       int    `json:"pulled"`
	Republished  int    `json:"republished"`
	Acknowledged int    `json:"acked"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	StopReason   string `json:"stop_reason"`
}

// ExitCode is 0 for a clean run and 2 when any message failed.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return ExitDegraded
	}
	return ExitOK
}

// Fields renders the summary for structured logging.
func (s Summary) Fields() logging.LogFields {
	return logging.LogFields{
		"run_id":      s.RunID,
		"source":      s.Source,
		"destination": s.Destination,
		"dry_run":     s.DryRun,
		"pulled":      s.Pulled,
		"republished": s.Republished,
		"acked":       s.Acknowledged,
		"skipped":     s.Skipped,
		"failed":      s.Failed,
		"stop_reason": s.StopReason,
		"exit_code":   s.ExitCode(),
	}
}
