// Package handlers binds the job types to their implementations. It sits
// below main and above the domain modules so the queue itself stays free of
// domain imports.
package handlers

import (
	"encoding/json"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/modules/enrichmentmodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/modules/playermodule"
	"github.com/curatarr/curatarr/internal/modules/publishmodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule/scanner"
)

// Deps is the handler dependency record, wired once at startup.
type Deps struct {
	DB        *gorm.DB
	Queue     *jobmodule.Queue
	Gatherer  *scanner.FactGatherer
	Cache     *cachemodule.Service
	Publisher *publishmodule.Publisher
	Enricher  *enrichmentmodule.Enricher
	Players   *playermodule.Module
	Scanner   *scannermodule.Module
	Settings  *database.Settings
	Bus       events.EventBus
	Cfg       *config.Config
}

// RegisterAll binds every core job type. Deadlines of zero take the
// configured default.
func RegisterAll(registry *jobmodule.Registry, deps *Deps) {
	registry.Register(jobmodule.TypeDirectoryScan, 0, deps.handleDirectoryScan)
	registry.Register(jobmodule.TypeEnrichMetadata, 0, deps.handleEnrich)
	registry.Register(jobmodule.TypePublish, 0, deps.handlePublish)
	registry.Register(jobmodule.TypeDownloadTrailer, deps.Cfg.Cache.DownloadTimeout, deps.handleDownloadTrailer)
	registry.Register(jobmodule.TypeCleanup, 0, deps.handleCleanup)
	registry.Register(jobmodule.TypeNotifyKodi, 0, deps.handleNotifyPlayers)
	registry.Register(jobmodule.TypeWebhookReceived, 0, deps.handleWebhook)
}

// decodePayload unmarshals a job payload; a broken payload is permanent.
func decodePayload(job *database.Job, v interface{}) error {
	if err := json.Unmarshal([]byte(job.Payload), v); err != nil {
		return apperrors.Permanent("undecodable job payload", err)
	}
	return nil
}
