package jobmodule

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
)

// Core job types.
const (
	TypeDirectoryScan   = "directory-scan"
	TypeEnrichMetadata  = "enrich-metadata"
	TypePublish         = "publish"
	TypeDownloadTrailer = "download-trailer"
	TypeCleanup         = "cleanup"
	TypeNotifyKodi      = "notify-kodi"
	TypeWebhookReceived = "webhook-received"
)

// Module owns the queue, the handler registry, the worker pool and the
// scheduler.
type Module struct {
	queue     *Queue
	registry  *Registry
	pool      *WorkerPool
	scheduler *Scheduler
}

// NewModule assembles the job system.
func NewModule(queue *Queue, cfg config.JobsConfig) *Module {
	registry := NewRegistry()
	return &Module{
		queue:     queue,
		registry:  registry,
		pool:      NewWorkerPool(queue, registry, cfg),
		scheduler: NewScheduler(queue, cfg),
	}
}

// Register adds the module to the global registry.
func Register(queue *Queue, cfg config.JobsConfig) *Module {
	m := NewModule(queue, cfg)
	modulemanager.Register(m)
	return m
}

func (m *Module) ID() string   { return "system.jobs" }
func (m *Module) Name() string { return "Job Queue" }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.Job{}, &database.JobDependency{})
}

func (m *Module) Init() error { return nil }

// Queue returns the job queue.
func (m *Module) Queue() *Queue { return m.queue }

// Registry returns the handler registry for other modules to bind handlers.
func (m *Module) Registry() *Registry { return m.registry }

// Start requeues stale work and launches the workers and the scheduler.
func (m *Module) Start(ctx context.Context) error {
	if err := m.queue.ResetStale(ctx); err != nil {
		return err
	}
	m.pool.Start(ctx)
	return m.scheduler.Start()
}

// Stop shuts down workers and the scheduler.
func (m *Module) Stop() {
	m.scheduler.Stop()
	m.pool.Stop()
}

// RegisterRoutes exposes queue inspection and manual control.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/jobs")
	group.GET("", m.listJobs)
	group.GET("/:id", m.getJob)
	group.POST("", m.enqueueJob)
	group.POST("/:id/cancel", m.cancelJob)
}

func (m *Module) listJobs(c *gin.Context) {
	status := database.JobStatus(c.Query("status"))
	jobType := c.Query("type")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	jobs, err := m.queue.List(status, jobType, limit)
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (m *Module) getJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid job id", "id"))
		return
	}
	job, err := m.queue.Get(uint(id))
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type enqueueRequest struct {
	Type       string      `json:"type" binding:"required"`
	Payload    interface{} `json:"payload"`
	Priority   int         `json:"priority"`
	MaxRetries int         `json:"max_retries"`
	DependsOn  []uint      `json:"depends_on"`
}

func (m *Module) enqueueJob(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}

	id, err := m.queue.Enqueue(req.Type, req.Payload, EnqueueOptions{
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
		DependsOn:  req.DependsOn,
		Manual:     true,
	})
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job_id": id})
}

func (m *Module) cancelJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid job id", "id"))
		return
	}
	if err := m.queue.Cancel(uint(id)); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": id})
}
