package jobmodule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/logger"
)

// ProgressFunc lets a handler report transient progress.
type ProgressFunc func(ProgressUpdate)

// Handler executes one job. The context carries the handler deadline and
// process shutdown; handlers should observe it at their own suspension
// points. A returned error is retried unless its kind is permanent.
type Handler func(ctx context.Context, job *database.Job, progress ProgressFunc) (interface{}, error)

// handlerEntry pairs a handler with its soft deadline.
type handlerEntry struct {
	fn       Handler
	deadline time.Duration
}

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]handlerEntry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]handlerEntry)}
}

// Register binds a handler to a job type. A zero deadline takes the
// configured default.
func (r *Registry) Register(jobType string, deadline time.Duration, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handlerEntry{fn: fn, deadline: deadline}
	logger.Debug("Job handler registered", "type", jobType)
}

func (r *Registry) lookup(jobType string) (handlerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.handlers[jobType]
	return entry, ok
}

// WorkerPool polls the queue with N concurrent workers.
type WorkerPool struct {
	queue    *Queue
	registry *Registry
	cfg      config.JobsConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool; Start launches it.
func NewWorkerPool(queue *Queue, registry *Registry, cfg config.JobsConfig) *WorkerPool {
	return &WorkerPool{queue: queue, registry: registry, cfg: cfg}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}
	logger.Info("Worker pool started", "workers", p.cfg.WorkerCount, "poll_interval", p.cfg.PollInterval.String())
}

// Stop signals the workers and waits for in-flight jobs.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.Info("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.throttled() {
				continue
			}
			p.drain(ctx, workerID)
		}
	}
}

// drain picks and executes jobs until the queue is empty, so a burst does
// not wait a poll interval per job.
func (p *WorkerPool) drain(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.PickNext(workerID)
		if err != nil {
			logger.Error("Job pickup failed", "worker", workerID, "error", err.Error())
			return
		}
		if job == nil {
			return
		}

		p.execute(ctx, job)

		if p.throttled() {
			return
		}
	}
}

func (p *WorkerPool) execute(ctx context.Context, job *database.Job) {
	entry, ok := p.registry.lookup(job.Type)
	if !ok {
		_ = p.queue.Fail(job.ID, fmt.Sprintf("no handler for job type %q", job.Type), true)
		return
	}

	deadline := entry.deadline
	if deadline <= 0 {
		deadline = p.cfg.HandlerDeadline
	}
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	progress := func(u ProgressUpdate) {
		p.queue.Progress(job.ID, job.Type, u)
	}

	result, err := p.runHandler(jobCtx, entry.fn, job, progress)
	if err != nil {
		permanent := apperrors.KindOf(err) == apperrors.KindPermanent ||
			apperrors.KindOf(err) == apperrors.KindValidation
		if failErr := p.queue.Fail(job.ID, err.Error(), permanent); failErr != nil {
			logger.Error("Failed to record job failure", "job_id", job.ID, "error", failErr.Error())
		}
		return
	}

	if err := p.queue.Complete(job.ID, result); err != nil {
		logger.Error("Failed to complete job", "job_id", job.ID, "error", err.Error())
	}
}

// runHandler isolates handler panics so one bad job cannot take down the
// worker.
func (p *WorkerPool) runHandler(ctx context.Context, fn Handler, job *database.Job, progress ProgressFunc) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job handler panicked", "job_id", job.ID, "type", job.Type, "panic", fmt.Sprint(r))
			logger.Debug("Panic stack", "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, job, progress)
}

// throttled reports whether system load is above the configured ceilings.
// Throttled workers keep polling but defer pickup.
func (p *WorkerPool) throttled() bool {
	if !p.cfg.ThrottleEnabled {
		return false
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		if percents[0] > float64(p.cfg.CPUThreshold) {
			logger.Debug("Worker throttled on CPU", "usage", int(percents[0]))
			return true
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		if vm.UsedPercent > float64(p.cfg.MemoryThreshold) {
			logger.Debug("Worker throttled on memory", "usage", int(vm.UsedPercent))
			return true
		}
	}
	return false
}
