package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
)

// RegisterJobs creates the background jobs and registers them with a new
// scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		Scheduler:     scheduler.New(log),
		Sweep:         scheduler.NewSweepJob(container.Runner, log),
		CacheCleanup:  clientdata.NewCleanupJob(container.ClientDataRepo, log),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.ClientDataDB, log),
	}

	if err := jobs.Scheduler.AddJob(cfg.SweepSchedule, jobs.Sweep); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", jobs.Sweep.Name(), err)
	}
	if err := jobs.Scheduler.AddJob(cfg.CleanupSchedule, jobs.CacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", jobs.CacheCleanup.Name(), err)
	}
	if err := jobs.Scheduler.AddJob(cfg.CleanupSchedule, jobs.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", jobs.WALCheckpoint.Name(), err)
	}

	return jobs, nil
}
