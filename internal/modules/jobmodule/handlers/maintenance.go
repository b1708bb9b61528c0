package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
)

// cleanupResult is the payload stored on a completed cleanup job.
type cleanupResult struct {
	HardDeleted int `json:"hard_deleted"`
	GCScanned   int `json:"gc_scanned"`
	GCRemoved   int `json:"gc_removed"`
}

// handleCleanup empties the recycle bin, purges orphaned credit entities and
// reclaims unreferenced cache bytes. Scheduled nightly, also runnable on
// demand.
func (d *Deps) handleCleanup(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	repo := database.NewMovieRepository(d.DB)
	result := &cleanupResult{}

	expired, err := repo.ExpiredSoftDeleted()
	if err != nil {
		return nil, err
	}
	for i, movie := range expired {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := repo.HardDelete(movie.ID); err != nil {
			logger.Warn("Hard delete failed", "movie_id", movie.ID, "error", err.Error())
			continue
		}
		result.HardDeleted++
		progress(jobmodule.ProgressUpdate{
			Current: i + 1, Total: len(expired), Message: "emptying recycle bin",
		})
	}

	if err := database.PurgeOrphans(d.DB); err != nil {
		return result, err
	}

	gc, err := d.Cache.CollectGarbage()
	if err != nil {
		return result, err
	}
	result.GCScanned = gc.Scanned
	result.GCRemoved = gc.Removed

	database.LogActivity(d.DB, "cleanup",
		fmt.Sprintf("Cleanup pass: %d movies hard-deleted, %d cache files reclaimed",
			result.HardDeleted, result.GCRemoved), "")
	return result, nil
}

// handleNotifyPlayers fans a library-refresh request out to the players.
func (d *Deps) handleNotifyPlayers(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	var payload jobmodule.NotifyPlayersPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	result, err := d.Players.NotifyAll(ctx, payload.Directory)
	if err != nil {
		return nil, err
	}
	if len(result.Failed) > 0 && len(result.Notified) == 0 {
		return result, apperrors.Transient(
			fmt.Sprintf("no player reachable (%s)", strings.Join(result.Failed, ", ")), nil)
	}
	return result, nil
}

// radarrWebhook is the subset of the Radarr/Sonarr webhook body the scanner
// cares about.
type radarrWebhook struct {
	EventType string `json:"eventType"`
	Movie     struct {
		TmdbID     int    `json:"tmdbId"`
		FolderPath string `json:"folderPath"`
	} `json:"movie"`
	MovieFile struct {
		RelativePath string `json:"relativePath"`
	} `json:"movieFile"`
	Series struct {
		Path string `json:"path"`
	} `json:"series"`
}

// handleWebhook turns a stored upstream webhook into a directory scan. The
// ingester's file name rides along as a classifier hint.
func (d *Deps) handleWebhook(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	var payload jobmodule.WebhookPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	var event database.WebhookEvent
	if err := d.DB.First(&event, payload.WebhookEventID).Error; err != nil {
		return nil, apperrors.Permanent("webhook event vanished", err)
	}

	var body radarrWebhook
	if err := json.Unmarshal([]byte(event.Payload), &body); err != nil {
		return nil, apperrors.Permanent("undecodable webhook body", err)
	}

	dir := body.Movie.FolderPath
	if dir == "" {
		dir = body.Series.Path
	}
	if dir == "" {
		d.markWebhookProcessed(&event)
		return map[string]interface{}{"skipped": "no path in webhook"}, nil
	}

	library, err := d.libraryForPath(dir)
	if err != nil {
		return nil, err
	}

	hint := ""
	if body.MovieFile.RelativePath != "" {
		hint = filepath.Base(body.MovieFile.RelativePath)
	}

	jobID, err := d.Scanner.EnqueueDirectoryScan(library.ID, dir, hint, body.Movie.TmdbID, false)
	if err != nil {
		return nil, err
	}

	d.markWebhookProcessed(&event)
	logger.Info("Webhook triggered scan", "source", event.Source, "dir", dir, "scan_job", jobID)
	return map[string]interface{}{"scan_job_id": jobID}, nil
}

func (d *Deps) markWebhookProcessed(event *database.WebhookEvent) {
	if err := d.DB.Model(event).Update("processed", true).Error; err != nil {
		logger.Warn("Failed to mark webhook processed", "id", event.ID, "error", err.Error())
	}
}

// libraryForPath finds the enabled library whose root contains the path.
func (d *Deps) libraryForPath(path string) (*database.Library, error) {
	var libraries []database.Library
	if err := d.DB.Where("enabled = ?", true).Find(&libraries).Error; err != nil {
		return nil, err
	}
	for i := range libraries {
		root := libraries[i].RootPath
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return &libraries[i], nil
		}
	}
	return nil, apperrors.Permanent(fmt.Sprintf("no library covers path %s", path), nil)
}
