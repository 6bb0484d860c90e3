package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/sweep"
)

// SweepRunner is the part of sweep.Runner used by SweepJob.
type SweepRunner interface {
	Run(ctx context.Context, progress sweep.Progress) (*sweep.Frontier, error)
}

// SweepJob refreshes the frontier.
type SweepJob struct {
	runner SweepRunner
	log    zerolog.Logger
}

// NewSweepJob creates a new sweep job.
func NewSweepJob(runner SweepRunner, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		runner: runner,
		log:    log.With().Str("job", "frontier_sweep").Logger(),
	}
}

// Name returns the job name
func (j *SweepJob) Name() string {
	return "frontier_sweep"
}

// Run executes a sweep. A run already in progress is not an error.
func (j *SweepJob) Run() error {
	frontier, err := j.runner.Run(context.Background(), nil)
	if errors.Is(err, sweep.ErrRunInProgress) {
		j.log.Info().Msg("Sweep already running, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	j.log.Info().
		Str("run_id", frontier.RunID).
		Int("solved", len(frontier.Solved())).
		Msg("Frontier refreshed")
	return nil
}
