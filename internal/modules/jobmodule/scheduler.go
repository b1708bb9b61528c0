package jobmodule

import (
	"github.com/robfig/cron/v3"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/logger"
)

// Scheduler enqueues recurring maintenance work on cron schedules.
type Scheduler struct {
	cron  *cron.Cron
	queue *Queue
	cfg   config.JobsConfig
}

// NewScheduler creates a scheduler bound to the queue.
func NewScheduler(queue *Queue, cfg config.JobsConfig) *Scheduler {
	return &Scheduler{cron: cron.New(), queue: queue, cfg: cfg}
}

// Start registers the recurring entries and launches the cron loop. The
// nightly cleanup hard-deletes expired soft-deleted entities and prunes
// terminal jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() {
		if _, err := s.queue.Enqueue(TypeCleanup, nil, EnqueueOptions{Priority: 8}); err != nil {
			logger.Error("Failed to enqueue scheduled cleanup", "error", err.Error())
		}
	})
	if err != nil {
		return err
	}

	// Terminal-job pruning runs hourly, independent of the cleanup job, so
	// the jobs table stays small even when cleanup is rescheduled.
	_, err = s.cron.AddFunc("@hourly", func() {
		pruned, err := s.queue.Prune(s.cfg.PruneAfter)
		if err != nil {
			logger.Error("Job pruning failed", "error", err.Error())
			return
		}
		if pruned > 0 {
			logger.Info("Pruned terminal jobs", "count", pruned)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Job scheduler started", "cleanup_schedule", s.cfg.CleanupSchedule)
	return nil
}

// Stop halts the cron loop.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
