// Package scannermodule owns library scanning: it walks library roots,
// enqueues per-directory scan jobs, filters ignored files, and watches
// filesystems for changes.
package scannermodule

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
)

// Module enqueues scans and exposes ignore-pattern management.
type Module struct {
	db      *gorm.DB
	queue   *jobmodule.Queue
	bus     events.EventBus
	matcher *IgnoreMatcher
	watcher *Watcher
}

// NewModule creates the scanner module. The watcher is attached later via
// AttachWatcher once config is known.
func NewModule(db *gorm.DB, queue *jobmodule.Queue, bus events.EventBus, matcher *IgnoreMatcher) *Module {
	return &Module{db: db, queue: queue, bus: bus, matcher: matcher}
}

// Register adds the module to the global registry.
func Register(db *gorm.DB, queue *jobmodule.Queue, bus events.EventBus, matcher *IgnoreMatcher) *Module {
	m := NewModule(db, queue, bus, matcher)
	modulemanager.Register(m)
	return m
}

func (m *Module) ID() string   { return "system.scanner" }
func (m *Module) Name() string { return "Library Scanner" }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&database.Library{},
		&database.UnknownFile{},
		&database.IgnorePattern{},
	)
}

func (m *Module) Init() error { return nil }

// Matcher returns the ignore matcher for wiring into the fact gatherer.
func (m *Module) Matcher() *IgnoreMatcher { return m.matcher }

// AttachWatcher starts filesystem watching with the given debounce window.
func (m *Module) AttachWatcher(debounce time.Duration) error {
	watcher, err := NewWatcher(m.db, m, debounce)
	if err != nil {
		return err
	}
	m.watcher = watcher
	return m.watcher.Start()
}

// Stop shuts the watcher down if one was attached.
func (m *Module) Stop() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
}

// EnqueueLibraryScan walks the library root and enqueues one directory-scan
// job per movie directory. Files sitting directly in the root are scanned as
// part of the root itself.
func (m *Module) EnqueueLibraryScan(libraryID uint) (int, error) {
	var library database.Library
	if err := m.db.First(&library, libraryID).Error; err != nil {
		return 0, apperrors.NotFound("library", strconv.FormatUint(uint64(libraryID), 10))
	}
	if !library.Enabled {
		return 0, apperrors.Validation("library is disabled", "enabled")
	}

	entries, err := os.ReadDir(library.RootPath)
	if err != nil {
		return 0, apperrors.Transient("library root unreadable", err)
	}

	enqueued := 0
	rootHasFiles := false
	for _, entry := range entries {
		if !entry.IsDir() {
			if !m.matcher.Match(entry.Name()) {
				rootHasFiles = true
			}
			continue
		}
		if m.matcher.Match(entry.Name()) {
			continue
		}
		if _, err := m.EnqueueDirectoryScan(library.ID, filepath.Join(library.RootPath, entry.Name()), "", 0, false); err != nil {
			logger.Warn("Failed to enqueue directory scan", "dir", entry.Name(), "error", err.Error())
			continue
		}
		enqueued++
	}
	if rootHasFiles {
		if _, err := m.EnqueueDirectoryScan(library.ID, library.RootPath, "", 0, false); err == nil {
			enqueued++
		}
	}

	now := time.Now()
	m.db.Model(&library).Update("last_scan_at", now)

	if m.bus != nil {
		m.bus.PublishAsync(events.Event{
			Type:   events.EventScanStatus,
			Source: "scanner",
			Data: map[string]interface{}{
				"library_id": library.ID,
				"state":      "enqueued",
				"count":      enqueued,
			},
		})
	}
	return enqueued, nil
}

// EnqueueDirectoryScan queues a single directory for classification.
func (m *Module) EnqueueDirectoryScan(libraryID uint, dirPath, hint string, tmdbID int, force bool) (uint, error) {
	return m.queue.Enqueue(jobmodule.TypeDirectoryScan, jobmodule.DirectoryScanPayload{
		LibraryID: libraryID,
		DirPath:   dirPath,
		Hint:      hint,
		TmdbID:    tmdbID,
		Force:     force,
	}, jobmodule.EnqueueOptions{Priority: 5})
}

// RegisterRoutes exposes ignore-pattern management.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/ignore-patterns")
	group.GET("", m.listPatterns)
	group.POST("", m.createPattern)
	group.DELETE("/:id", m.deletePattern)
}

func (m *Module) listPatterns(c *gin.Context) {
	var rows []database.IgnorePattern
	if err := m.db.Order("pattern").Find(&rows).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": rows})
}

func (m *Module) createPattern(c *gin.Context) {
	var req struct {
		Pattern string `json:"pattern" binding:"required"`
		Glob    bool   `json:"glob"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}
	row := database.IgnorePattern{Pattern: req.Pattern, Glob: req.Glob}
	if err := m.db.Create(&row).Error; err != nil {
		apperrors.ToGinResponse(c, apperrors.Conflict("pattern already exists", map[string]interface{}{"pattern": req.Pattern}))
		return
	}
	if err := m.matcher.Reload(m.db); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (m *Module) deletePattern(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid pattern id", "id"))
		return
	}
	result := m.db.Delete(&database.IgnorePattern{}, uint(id))
	if result.Error != nil {
		apperrors.ToGinResponse(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		apperrors.ToGinResponse(c, apperrors.NotFound("ignore pattern", c.Param("id")))
		return
	}
	if err := m.matcher.Reload(m.db); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
