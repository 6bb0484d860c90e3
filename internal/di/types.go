// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/clients/cryptocompare"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/sweep"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Database
	ClientDataDB *database.DB

	// Repositories
	ClientDataRepo *clientdata.Repository

	// Clients
	CryptoCompare *cryptocompare.Client

	// Services
	Loader *universe.Loader
	Runner *sweep.Runner
}

// JobInstances holds the scheduled jobs and the scheduler running them
type JobInstances struct {
	Scheduler     *scheduler.Scheduler
	Sweep         *scheduler.SweepJob
	CacheCleanup  *clientdata.CleanupJob
	WALCheckpoint *scheduler.WALCheckpointJob
}

// Close releases the container's resources.
func (c *Container) Close() error {
	if c.ClientDataDB == nil {
		return nil
	}
	return c.ClientDataDB.Close()
}
