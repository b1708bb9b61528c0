// Package jobmodule implements the database-backed priority job queue: a
// durable pending/processing/retrying state machine with dependency gating,
// exponential retry backoff, and a polling worker pool.
package jobmodule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
)

// Retry backoff is capped at five minutes.
const maxBackoffSeconds = 300

// Queue is the durable job queue. The database is the single point of
// coordination: any number of workers in the process may poll concurrently.
type Queue struct {
	db  *gorm.DB
	bus events.EventBus
}

// NewQueue creates a queue over the given database.
func NewQueue(db *gorm.DB, bus events.EventBus) *Queue {
	return &Queue{db: db, bus: bus}
}

// EnqueueOptions tune a new job. Zero values take the documented defaults.
type EnqueueOptions struct {
	Priority   int
	MaxRetries int
	DependsOn  []uint
	Manual     bool
}

// Enqueue creates a pending job and its dependency rows in one transaction.
func (q *Queue) Enqueue(jobType string, payload interface{}, opts EnqueueOptions) (uint, error) {
	if jobType == "" {
		return 0, apperrors.Validation("job type is required", "type")
	}
	if opts.Priority < 1 || opts.Priority > 10 {
		opts.Priority = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	payloadJSON := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, apperrors.Validation(fmt.Sprintf("unencodable payload: %v", err), "payload")
		}
		payloadJSON = string(data)
	}

	job := database.Job{
		Type:       jobType,
		Priority:   opts.Priority,
		Status:     database.JobPending,
		Payload:    payloadJSON,
		MaxRetries: opts.MaxRetries,
		Manual:     opts.Manual,
	}

	err := q.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			return err
		}
		for _, dep := range opts.DependsOn {
			if err := tx.Create(&database.JobDependency{JobID: job.ID, DependsOnJobID: dep}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Debug("Job enqueued", "job_id", job.ID, "type", jobType, "priority", job.Priority)
	return job.ID, nil
}

// pickableScope selects jobs ready for pickup: pending, or retrying with an
// elapsed backoff, with every dependency completed. A dependency row whose
// target job has been pruned no longer blocks.
func pickableScope(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.
		Where("(status = ? OR (status = ? AND next_retry_at <= ?))",
			database.JobPending, database.JobRetrying, now).
		Where(`NOT EXISTS (
			SELECT 1 FROM job_dependencies d
			JOIN jobs dep ON dep.id = d.depends_on_job_id
			WHERE d.job_id = jobs.id AND dep.status != ?)`, database.JobCompleted).
		Order("priority ASC, created_at ASC")
}

// PickNext transactionally claims the oldest highest-priority pickable job
// for the worker. Returns nil when the queue is empty.
func (q *Queue) PickNext(workerID string) (*database.Job, error) {
	var picked *database.Job

	err := q.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var job database.Job
		err := pickableScope(tx.Model(&database.Job{}), now).First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// Guard against a concurrent claim between SELECT and UPDATE.
		res := tx.Model(&database.Job{}).
			Where("id = ? AND status IN ?", job.ID, []database.JobStatus{database.JobPending, database.JobRetrying}).
			Updates(map[string]interface{}{
				"status":     database.JobProcessing,
				"started_at": now,
				"worker_id":  workerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		job.Status = database.JobProcessing
		job.StartedAt = &now
		job.WorkerID = workerID
		picked = &job
		return nil
	})
	if err != nil {
		return nil, err
	}

	if picked != nil {
		q.publish(events.EventJobStarted, picked, nil)
	}
	return picked, nil
}

// Complete marks a job done and releases its dependents.
func (q *Queue) Complete(jobID uint, result interface{}) error {
	resultJSON := ""
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			resultJSON = string(data)
		}
	}

	now := time.Now()
	res := q.db.Model(&database.Job{}).
		Where("id = ? AND status = ?", jobID, database.JobProcessing).
		Updates(map[string]interface{}{
			"status":       database.JobCompleted,
			"result":       resultJSON,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("job is not processing", map[string]interface{}{"job_id": jobID})
	}

	q.publish(events.EventJobCompleted, &database.Job{ID: jobID}, nil)
	return nil
}

// Fail records a handler error. Below max-retries the job re-enters the
// queue with exponential backoff; at exhaustion, or when permanent is set,
// it goes terminal and its dependents fail with it.
func (q *Queue) Fail(jobID uint, errStr string, permanent bool) error {
	var job database.Job
	if err := q.db.First(&job, jobID).Error; err != nil {
		return err
	}

	now := time.Now()

	if !permanent && job.RetryCount < job.MaxRetries {
		retryCount := job.RetryCount + 1
		backoff := time.Duration(math.Min(math.Pow(2, float64(retryCount)), maxBackoffSeconds)) * time.Second
		nextRetry := now.Add(backoff)

		err := q.db.Model(&job).Updates(map[string]interface{}{
			"status":        database.JobRetrying,
			"retry_count":   retryCount,
			"next_retry_at": nextRetry,
			"error":         errStr,
		}).Error
		if err != nil {
			return err
		}
		logger.Warn("Job will retry", "job_id", jobID, "type", job.Type, "retry", retryCount, "backoff", backoff.String())
		return nil
	}

	err := q.db.Model(&job).Updates(map[string]interface{}{
		"status":       database.JobFailed,
		"error":        errStr,
		"completed_at": now,
	}).Error
	if err != nil {
		return err
	}

	q.publish(events.EventJobFailed, &job, map[string]interface{}{"error": errStr})
	return q.failDependents(jobID)
}

// failDependents transitively fails every non-terminal job waiting on the
// failed one.
func (q *Queue) failDependents(jobID uint) error {
	var deps []database.JobDependency
	if err := q.db.Where("depends_on_job_id = ?", jobID).Find(&deps).Error; err != nil {
		return err
	}

	now := time.Now()
	for _, dep := range deps {
		res := q.db.Model(&database.Job{}).
			Where("id = ? AND status IN ?", dep.JobID,
				[]database.JobStatus{database.JobPending, database.JobRetrying}).
			Updates(map[string]interface{}{
				"status":       database.JobFailed,
				"error":        fmt.Sprintf("dependency job %d failed", jobID),
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			q.publish(events.EventJobFailed, &database.Job{ID: dep.JobID}, map[string]interface{}{
				"error": fmt.Sprintf("dependency job %d failed", jobID),
			})
			if err := q.failDependents(dep.JobID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cancel aborts a job that has not started. Processing jobs cannot be
// cancelled from outside; they observe their context instead.
func (q *Queue) Cancel(jobID uint) error {
	now := time.Now()
	res := q.db.Model(&database.Job{}).
		Where("id = ? AND status IN ?", jobID,
			[]database.JobStatus{database.JobPending, database.JobRetrying}).
		Updates(map[string]interface{}{
			"status":       database.JobFailed,
			"error":        "cancelled",
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("only pending or retrying jobs can be cancelled",
			map[string]interface{}{"job_id": jobID})
	}
	return q.failDependents(jobID)
}

// ProgressUpdate is transient progress reported by a running handler. It is
// broadcast, never persisted.
type ProgressUpdate struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Progress broadcasts a progress update for a running job.
func (q *Queue) Progress(jobID uint, jobType string, p ProgressUpdate) {
	if q.bus == nil {
		return
	}
	q.bus.PublishAsync(events.Event{
		Type:   events.EventJobProgress,
		Source: "jobqueue",
		Data: map[string]interface{}{
			"job_id":     jobID,
			"type":       jobType,
			"current":    p.Current,
			"total":      p.Total,
			"percentage": p.Percentage,
			"message":    p.Message,
			"detail":     p.Detail,
		},
	})
}

// Prune removes terminal jobs older than the cutoff, including their
// dependency rows.
func (q *Queue) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	var pruned int64

	err := q.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		err := tx.Model(&database.Job{}).
			Where("status IN ? AND completed_at < ?",
				[]database.JobStatus{database.JobCompleted, database.JobFailed}, cutoff).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}

		if err := tx.Where("job_id IN ? OR depends_on_job_id IN ?", ids, ids).
			Delete(&database.JobDependency{}).Error; err != nil {
			return err
		}

		res := tx.Where("id IN ?", ids).Delete(&database.Job{})
		pruned = res.RowsAffected
		return res.Error
	})
	return pruned, err
}

// List returns jobs filtered by optional status and type, newest first.
func (q *Queue) List(status database.JobStatus, jobType string, limit int) ([]database.Job, error) {
	tx := q.db.Model(&database.Job{}).Order("created_at DESC")
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	if jobType != "" {
		tx = tx.Where("type = ?", jobType)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var jobs []database.Job
	err := tx.Find(&jobs).Error
	return jobs, err
}

// Get returns one job.
func (q *Queue) Get(jobID uint) (*database.Job, error) {
	var job database.Job
	err := q.db.First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("job", fmt.Sprint(jobID))
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) publish(eventType events.EventType, job *database.Job, extra map[string]interface{}) {
	if q.bus == nil {
		return
	}
	data := map[string]interface{}{"job_id": job.ID}
	if job.Type != "" {
		data["type"] = job.Type
	}
	for k, v := range extra {
		data[k] = v
	}
	q.bus.PublishAsync(events.Event{Type: eventType, Source: "jobqueue", Data: data})
}

// ResetStale requeues processing jobs whose worker died, used at startup.
func (q *Queue) ResetStale(ctx context.Context) error {
	res := q.db.WithContext(ctx).Model(&database.Job{}).
		Where("status = ?", database.JobProcessing).
		Updates(map[string]interface{}{
			"status":     database.JobPending,
			"worker_id":  "",
			"started_at": nil,
		})
	if res.RowsAffected > 0 {
		logger.Info("Requeued stale processing jobs", "count", res.RowsAffected)
	}
	return res.Error
}
