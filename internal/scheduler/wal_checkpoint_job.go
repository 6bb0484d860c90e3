package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
)

// WALCheckpointJob truncates the write-ahead log of a database.
type WALCheckpointJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewWALCheckpointJob creates a new WALCheckpointJob
func NewWALCheckpointJob(db *database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		db:  db,
		log: log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run executes the checkpoint
func (j *WALCheckpointJob) Run() error {
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}
	j.log.Debug().Str("database", j.db.Name()).Msg("WAL checkpoint completed")
	return nil
}
