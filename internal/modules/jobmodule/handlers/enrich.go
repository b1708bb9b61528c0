package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/fieldlock"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/utils"
)

// handleEnrich runs the enrichment pipeline for one movie.
func (d *Deps) handleEnrich(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	var payload jobmodule.EnrichPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	movie, err := database.NewMovieRepository(d.DB).Get(payload.MovieID)
	if err != nil {
		return nil, apperrors.Permanent("movie vanished before enrichment", err)
	}

	progress(jobmodule.ProgressUpdate{Message: "enriching", Detail: movie.FileName})
	result, err := d.Enricher.Enrich(ctx, movie, payload.Force)
	if err != nil {
		return result, err
	}

	logger.Info("Movie enriched", "movie_id", movie.ID,
		"fields", len(result.MetadataFields), "assets", len(result.AssetsDownloaded))
	return result, nil
}

// handlePublish writes the curated assets next to the movie and then asks the
// players to refresh the directory.
func (d *Deps) handlePublish(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	var payload jobmodule.PublishPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	movie, err := database.NewMovieRepository(d.DB).Get(payload.MovieID)
	if err != nil {
		return nil, apperrors.Permanent("movie vanished before publish", err)
	}

	progress(jobmodule.ProgressUpdate{Message: "publishing", Detail: movie.FileName})
	result, err := d.Publisher.PublishMovie(movie, fieldlock.OriginAutomation, payload.Force)
	if err != nil {
		return result, err
	}

	if _, err := d.Queue.Enqueue(jobmodule.TypeNotifyKodi,
		jobmodule.NotifyPlayersPayload{Directory: filepath.Dir(movie.FilePath)},
		jobmodule.EnqueueOptions{Priority: 7}); err != nil {
		logger.Warn("Failed to enqueue player notification", "movie_id", movie.ID, "error", err.Error())
	}

	database.LogActivity(d.DB, "publish", "Published movie assets", movie.FilePath)
	return result, nil
}

// trailerResult is the payload stored on a completed download-trailer job.
type trailerResult struct {
	CacheRowID uint   `json:"cache_row_id"`
	Published  string `json:"published,omitempty"`
	Bytes      int64  `json:"bytes"`
}

// handleDownloadTrailer fetches a remote trailer into the cache and, when the
// slot is unlocked, publishes it alongside the movie.
func (d *Deps) handleDownloadTrailer(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	var payload jobmodule.TrailerPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.URL == "" {
		return nil, apperrors.Validation("trailer url is required", "url")
	}

	movie, err := database.NewMovieRepository(d.DB).Get(payload.MovieID)
	if err != nil {
		return nil, apperrors.Permanent("movie vanished before trailer download", err)
	}

	d.trailerEvent(events.EventTrailerProgress, movie.ID, map[string]interface{}{"state": "downloading"})

	tmpPath, size, err := d.downloadToTemp(ctx, payload.URL, progress)
	if err != nil {
		d.trailerEvent(events.EventTrailerFailed, movie.ID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	defer os.Remove(tmpPath)

	quickHash, _ := utils.QuickHashFile(tmpPath)
	row, err := d.Cache.IngestVideoFile(cachemodule.IngestRequest{
		EntityType: database.EntityMovie,
		EntityID:   movie.ID,
		Slot:       database.SlotTrailer,
		Source:     database.SourceProvider,
		SourceURL:  payload.URL,
		Score:      50,
	}, tmpPath, quickHash, "", 0, 0, "", "")
	if err != nil {
		d.trailerEvent(events.EventTrailerFailed, movie.ID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	result := &trailerResult{CacheRowID: row.ID, Bytes: size}
	if fieldlock.Allowed(movie.TrailerLocked, fieldlock.OriginAutomation, false) &&
		d.Settings.GetBool(database.SettingPublishTrailers) {
		target, err := d.Publisher.PublishTrailer(movie, row)
		if err != nil {
			logger.Warn("Trailer publish failed", "movie_id", movie.ID, "error", err.Error())
		} else {
			result.Published = target
		}
	}

	d.trailerEvent(events.EventTrailerCompleted, movie.ID, map[string]interface{}{"bytes": size})
	return result, nil
}

func (d *Deps) trailerEvent(eventType events.EventType, movieID uint, data map[string]interface{}) {
	if d.Bus == nil {
		return
	}
	data["movie_id"] = movieID
	d.Bus.PublishAsync(events.Event{Type: eventType, Source: "trailers", Data: data})
}

// downloadToTemp streams a URL to a temp file, reporting byte progress.
// Network failures are transient; HTTP client errors are permanent.
func (d *Deps) downloadToTemp(ctx context.Context, url string, progress jobmodule.ProgressFunc) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, apperrors.Permanent("invalid trailer url", err)
	}

	client := &http.Client{Timeout: d.Cfg.Cache.DownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, apperrors.Transient("trailer download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", 0, apperrors.Transient("trailer source unavailable", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, apperrors.Permanent("trailer source rejected the request", nil)
	}

	tmp, err := os.CreateTemp("", "curatarr-trailer-*"+filepath.Ext(url))
	if err != nil {
		return "", 0, err
	}
	defer tmp.Close()

	var written int64
	total := resp.ContentLength
	buf := make([]byte, 256*1024)
	lastReport := time.Now()
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				os.Remove(tmp.Name())
				return "", 0, writeErr
			}
			written += int64(n)
			if total > 0 && time.Since(lastReport) > time.Second {
				progress(jobmodule.ProgressUpdate{
					Current:    int(written / 1024),
					Total:      int(total / 1024),
					Percentage: int(written * 100 / total),
					Message:    "downloading trailer",
				})
				lastReport = time.Now()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			os.Remove(tmp.Name())
			return "", 0, apperrors.Transient("trailer download interrupted", readErr)
		}
	}
	return tmp.Name(), written, nil
}
