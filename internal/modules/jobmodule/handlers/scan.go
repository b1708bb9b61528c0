package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule/scanner"
	"github.com/curatarr/curatarr/internal/utils"
)

// scanResult is the payload stored on a completed directory-scan job.
type scanResult struct {
	Status         string `json:"status"`
	MovieID        uint   `json:"movie_id,omitempty"`
	AssetsIngested int    `json:"assets_ingested"`
	UnknownFiles   int    `json:"unknown_files"`
	EnrichJobID    uint   `json:"enrich_job_id,omitempty"`
	PublishJobID   uint   `json:"publish_job_id,omitempty"`
}

// handleDirectoryScan gathers facts for one directory, classifies them,
// persists the movie and its assets, and chains enrichment and publishing.
func (d *Deps) handleDirectoryScan(ctx context.Context, job *database.Job, progress jobmodule.ProgressFunc) (interface{}, error) {
	var payload jobmodule.DirectoryScanPayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}

	var library database.Library
	if err := d.DB.First(&library, payload.LibraryID).Error; err != nil {
		return nil, apperrors.Permanent("library vanished", err)
	}

	progress(jobmodule.ProgressUpdate{Message: "gathering facts", Detail: payload.DirPath})
	scan, err := d.Gatherer.GatherAllFacts(ctx, payload.DirPath)
	if err != nil {
		return nil, apperrors.Transient("directory unreadable", err)
	}

	var hint *scanner.Hint
	if payload.Hint != "" {
		hint = &scanner.Hint{Filename: payload.Hint}
	}
	classification := scanner.Classify(scan, hint, payload.TmdbID)

	result := &scanResult{Status: string(classification.Decision.Status)}
	result.UnknownFiles = len(classification.Unknown)

	if err := d.recordUnknowns(classification); err != nil {
		logger.Warn("Failed to record unknown files", "dir", payload.DirPath, "error", err.Error())
	}

	if classification.Decision.Status == scanner.ManualRequired {
		logger.Info("Directory needs manual review",
			"dir", payload.DirPath, "reasons", strings.Join(classification.Decision.Reasons, "; "))
		return result, nil
	}

	movie, err := d.upsertMovie(&library, classification)
	if err != nil {
		return nil, err
	}
	result.MovieID = movie.ID

	progress(jobmodule.ProgressUpdate{Message: "ingesting assets", Total: len(classification.Assets)})
	ingested := 0
	for i, asset := range classification.Assets {
		if err := d.ingestAsset(movie, &asset); err != nil {
			logger.Warn("Asset ingest failed", "path", asset.File.Path, "error", err.Error())
			continue
		}
		ingested++
		progress(jobmodule.ProgressUpdate{
			Current: i + 1, Total: len(classification.Assets),
			Percentage: (i + 1) * 100 / len(classification.Assets),
		})
	}
	result.AssetsIngested = ingested

	if library.AutoEnrich {
		enrichID, err := d.Queue.Enqueue(jobmodule.TypeEnrichMetadata,
			jobmodule.EnrichPayload{MovieID: movie.ID, Force: payload.Force},
			jobmodule.EnqueueOptions{Priority: movie.EnrichmentPriority})
		if err != nil {
			return result, err
		}
		result.EnrichJobID = enrichID

		if library.AutoPublish || d.Settings.GetBool(database.SettingAutoPublish) {
			publishID, err := d.Queue.Enqueue(jobmodule.TypePublish,
				jobmodule.PublishPayload{MovieID: movie.ID},
				jobmodule.EnqueueOptions{DependsOn: []uint{enrichID}})
			if err != nil {
				return result, err
			}
			result.PublishJobID = publishID
		}
	}

	if d.Bus != nil {
		d.Bus.PublishAsync(events.MoviesChanged("scanner", movie.ID))
	}
	return result, nil
}

// upsertMovie creates or refreshes the movie row for a classified directory.
// Disc-image directories key on the directory itself since no single main
// file exists.
func (d *Deps) upsertMovie(library *database.Library, c *scanner.Classification) (*database.Movie, error) {
	path := c.DirPath
	fileName := filepath.Base(c.DirPath)
	var size int64
	var quickHash string

	if c.MainMovie != nil {
		path = c.MainMovie.File.Path
		fileName = c.MainMovie.File.Name
		size = c.MainMovie.File.Size
		if c.MainMovie.File.Video != nil {
			quickHash = c.MainMovie.File.Video.QuickHash
		}
	}

	var movie database.Movie
	err := d.DB.Scopes(database.Visible).First(&movie, "file_path = ?", path).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if err == gorm.ErrRecordNotFound {
		movie = database.Movie{
			LibraryID: library.ID,
			FilePath:  path,
			FileName:  fileName,
			FileSize:  size,
			FileHash:  quickHash,
			Title:     titleFromClassification(c, fileName),
			Year:      yearFromClassification(c),
		}
		if c.TmdbID > 0 {
			id := c.TmdbID
			movie.TmdbID = &id
		}
		if c.ImdbID != "" {
			id := c.ImdbID
			movie.ImdbID = &id
		}
		if err := d.DB.Create(&movie).Error; err != nil {
			return nil, err
		}
		return &movie, nil
	}

	updates := map[string]interface{}{
		"file_size": size,
	}
	if quickHash != "" && quickHash != movie.FileHash {
		updates["file_hash"] = quickHash
	}
	if movie.TmdbID == nil && c.TmdbID > 0 {
		updates["tmdb_id"] = c.TmdbID
	}
	if movie.ImdbID == nil && c.ImdbID != "" {
		updates["imdb_id"] = c.ImdbID
	}
	if err := d.DB.Model(&movie).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &movie, nil
}

// titleFromClassification derives a provisional title from the file name.
// Enrichment replaces it with the provider title unless the user locked it.
func titleFromClassification(c *scanner.Classification, fallback string) string {
	name := fallback
	if c.MainMovie != nil {
		name = c.MainMovie.File.Name
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer(".", " ", "_", " ").Replace(name)

	// Everything from the bracketed year on is release junk.
	if idx := strings.IndexAny(name, "(["); idx > 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

func yearFromClassification(c *scanner.Classification) int {
	if c.MainMovie != nil {
		return c.MainMovie.File.Filename.Year
	}
	return 0
}

// ingestAsset routes one classified file into the typed cache table for its
// kind. The main movie file stays in place and is never cached.
func (d *Deps) ingestAsset(movie *database.Movie, asset *scanner.ClassifiedFile) error {
	if asset.Slot == database.SlotMainMovie {
		return nil
	}

	req := cachemodule.IngestRequest{
		EntityType: database.EntityMovie,
		EntityID:   movie.ID,
		Slot:       asset.Slot,
		Source:     database.SourceLocal,
		Score:      float64(asset.Confidence),
	}

	switch asset.Kind {
	case database.CacheKindImage:
		var width, height int
		var format string
		if asset.File.Image != nil {
			width, height, format = asset.File.Image.Width, asset.File.Image.Height, asset.File.Image.Format
		}
		_, err := d.Cache.IngestImageFile(req, asset.File.Path, width, height, format)
		return err

	case database.CacheKindVideo:
		var quickHash, codec, hdr, audio string
		var duration float64
		var bitrate int64
		if asset.File.Video != nil {
			quickHash = asset.File.Video.QuickHash
			codec = asset.File.Video.Codec
			duration = asset.File.Video.DurationSec
			bitrate = asset.File.Video.Bitrate
			hdr = asset.File.Video.HDRFormat
			audio = asset.File.Video.AudioSummary
		} else if qh, err := utils.QuickHashFile(asset.File.Path); err == nil {
			quickHash = qh
		}
		_, err := d.Cache.IngestVideoFile(req, asset.File.Path, quickHash, codec, duration, bitrate, hdr, audio)
		return err

	case database.CacheKindAudio:
		_, err := d.Cache.IngestAudioFile(req, asset.File.Path, database.AudioKindTheme, 0)
		return err

	case database.CacheKindText:
		textKind := database.TextKindSubtitle
		language := ""
		nfoValid := false
		if asset.Slot == database.SlotNFO {
			textKind = database.TextKindNFO
		}
		if asset.File.Text != nil {
			language = asset.File.Text.Language
			nfoValid = asset.File.Text.IsXML
		}
		_, err := d.Cache.IngestTextFile(req, asset.File.Path, textKind, language, nfoValid)
		return err
	}
	return nil
}

// recordUnknowns upserts the unclassifiable files so the review surface can
// list them. Rows key on the absolute path; a rescan refreshes, not
// duplicates.
func (d *Deps) recordUnknowns(c *scanner.Classification) error {
	for _, unknown := range c.Unknown {
		row := database.UnknownFile{
			EntityType:   database.EntityMovie,
			FilePath:     unknown.File.Path,
			FileName:     unknown.File.Name,
			Size:         unknown.File.Size,
			Extension:    unknown.File.Ext,
			Category:     string(unknown.Category),
			DiscoveredAt: time.Now(),
		}
		err := d.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_path"}},
			DoUpdates: clause.AssignmentColumns([]string{"size", "category", "discovered_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}
