package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/scheduler"
)

// Job schedules. Heavy jobs run overnight; light sweeps run continuously.
const (
	walCheckpointSchedule  = "@hourly"
	presenceCensusSchedule = "*/5 * * * *"
	cacheSweepSchedule     = "*/10 * * * *"
	marketPruneSchedule    = "15 3 * * *"
	backupSchedule         = "30 3 * * *"
)

// RegisterJobs creates the scheduler and registers all maintenance jobs
func RegisterJobs(container *Container, log zerolog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{walCheckpointSchedule, scheduler.NewWALCheckpointJob(container.Databases(), log)},
		{presenceCensusSchedule, scheduler.NewPresenceCensusJob(container.PresenceTracker, container.EventManager, log)},
		{cacheSweepSchedule, scheduler.NewCacheSweepJob(container.SearchCache, log)},
		{marketPruneSchedule, scheduler.NewMarketPruneJob(container.MarketRepo, log)},
		{backupSchedule, scheduler.NewBackupJob(container.BackupService, container.EventManager, log)},
	}

	for _, entry := range jobs {
		if err := sched.AddJob(entry.schedule, entry.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", entry.job.Name(), err)
		}
	}

	return sched, nil
}
