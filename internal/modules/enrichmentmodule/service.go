package enrichmentmodule

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path"
	"strings"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/fieldlock"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/utils"
)

// Enricher orchestrates identification and metadata/asset enrichment for one
// movie at a time. All writes honor the field-lock policy: a locked field or
// slot is skipped unless the caller passes force.
type Enricher struct {
	db       *gorm.DB
	provider Provider
	catalog  *Catalog
	cache    *cachemodule.Service
	settings *database.Settings
	bus      events.EventBus
	cfg      config.EnrichmentConfig
}

// NewEnricher wires the orchestrator.
func NewEnricher(db *gorm.DB, provider Provider, catalog *Catalog, cache *cachemodule.Service,
	settings *database.Settings, bus events.EventBus, cfg config.EnrichmentConfig) *Enricher {
	return &Enricher{
		db:       db,
		provider: provider,
		catalog:  catalog,
		cache:    cache,
		settings: settings,
		bus:      bus,
		cfg:      cfg,
	}
}

// Catalog returns the provider-asset catalog.
func (e *Enricher) Catalog() *Catalog { return e.catalog }

// Identify binds the movie to a provider id. An id extracted from an NFO (or
// set by the user) wins; otherwise the provider is searched by a title and
// year guessed from the file name.
func (e *Enricher) Identify(ctx context.Context, movie *database.Movie) error {
	if movie.TmdbID != nil && *movie.TmdbID > 0 {
		return e.markIdentified(movie)
	}

	title, year := guessTitleYear(movie.FileName)
	if title == "" {
		return apperrors.Permanent("cannot derive a search title",
			fmt.Errorf("file name %q", movie.FileName))
	}

	results, err := e.provider.SearchMovie(ctx, title, year)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return apperrors.NotFound("provider match", title)
	}

	best := results[0]
	err = e.db.Model(movie).Updates(map[string]interface{}{
		"tmdb_id": best.TmdbID,
	}).Error
	if err != nil {
		return err
	}
	movie.TmdbID = &best.TmdbID

	logger.Info("Movie identified", "movie_id", movie.ID, "tmdb_id", best.TmdbID, "title", best.Title)
	return e.markIdentified(movie)
}

func (e *Enricher) markIdentified(movie *database.Movie) error {
	if movie.IdentificationStatus != database.StatusUnidentified {
		return nil
	}
	err := e.db.Model(movie).
		Update("identification_status", database.StatusIdentified).Error
	if err == nil {
		movie.IdentificationStatus = database.StatusIdentified
	}
	return err
}

// EnrichResult summarises one enrichment pass.
type EnrichResult struct {
	MetadataFields   []string `json:"metadata_fields,omitempty"`
	AssetsCataloged  int      `json:"assets_cataloged"`
	AssetsDownloaded []string `json:"assets_downloaded,omitempty"`
	SlotsSkipped     []string `json:"slots_skipped,omitempty"`
}

// Enrich runs the full pipeline for a movie: identify, fetch metadata, sync
// credits, catalog candidate assets and download the auto-selected ones into
// the cache.
func (e *Enricher) Enrich(ctx context.Context, movie *database.Movie, force bool) (*EnrichResult, error) {
	result := &EnrichResult{}

	if err := e.Identify(ctx, movie); err != nil {
		return result, err
	}

	details, err := e.provider.MovieDetails(ctx, *movie.TmdbID, e.settings.GetString(database.SettingEnrichLanguage))
	if err != nil {
		return result, err
	}

	written, err := e.applyMetadata(movie, details, force)
	if err != nil {
		return result, err
	}
	result.MetadataFields = written

	if err := e.syncCredits(movie.ID, details); err != nil {
		return result, err
	}

	if e.settings.GetBool(database.SettingFetchProviderAssets) {
		candidates, err := e.provider.MovieAssets(ctx, *movie.TmdbID, e.cfg.Language)
		if err != nil {
			return result, err
		}
		stored, err := e.catalog.Upsert(database.EntityMovie, movie.ID, e.provider.Name(), candidates)
		if err != nil {
			return result, err
		}
		result.AssetsCataloged = stored

		if e.settings.GetBool(database.SettingAutoSelectAssets) {
			downloaded, skipped, err := e.downloadSelections(ctx, movie, force)
			if err != nil {
				return result, err
			}
			result.AssetsDownloaded = downloaded
			result.SlotsSkipped = skipped
		}
	}

	if err := e.markEnriched(movie); err != nil {
		return result, err
	}

	if e.bus != nil {
		event := events.MoviesChanged("enrichment", movie.ID)
		event.Data["slots"] = result.AssetsDownloaded
		e.bus.PublishAsync(event)
	}
	return result, nil
}

// applyMetadata turns provider details into an automation patch. Locked
// columns are dropped by the patch layer unless force is set.
func (e *Enricher) applyMetadata(movie *database.Movie, details *MovieDetails, force bool) ([]string, error) {
	patch := &database.MoviePatch{
		Title:         &details.Title,
		OriginalTitle: &details.OriginalTitle,
		Tagline:       &details.Tagline,
		Plot:          &details.Plot,
	}
	if details.RuntimeMin > 0 {
		patch.RuntimeMin = &details.RuntimeMin
	}
	if details.Year > 0 {
		patch.Year = &details.Year
	}
	if details.ContentRating != "" {
		patch.ContentRating = &details.ContentRating
	}
	if details.ImdbID != "" {
		patch.ImdbID = &details.ImdbID
	}

	written, err := database.ApplyAutomationPatch(e.db, movie, patch, force)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"provider_rating": details.Rating,
		"provider_votes":  details.Votes,
	}
	if details.ReleaseDate != nil {
		updates["release_date"] = *details.ReleaseDate
	}
	if err := e.db.Model(movie).Updates(updates).Error; err != nil {
		return written, err
	}
	return written, nil
}

// syncCredits replaces the junction rows for genres, studios, actors and
// crew with the provider's current view. Orphaned entities are purged later
// by the cleanup job.
func (e *Enricher) syncCredits(movieID uint, details *MovieDetails) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("movie_id = ?", movieID).Delete(&database.MovieGenre{}).Error; err != nil {
			return err
		}
		for _, name := range details.Genres {
			var genre database.Genre
			if err := tx.FirstOrCreate(&genre, database.Genre{Name: name}).Error; err != nil {
				return err
			}
			if err := tx.Create(&database.MovieGenre{MovieID: movieID, GenreID: genre.ID}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("movie_id = ?", movieID).Delete(&database.MovieStudio{}).Error; err != nil {
			return err
		}
		for _, name := range details.Studios {
			var studio database.Studio
			if err := tx.FirstOrCreate(&studio, database.Studio{Name: name}).Error; err != nil {
				return err
			}
			if err := tx.Create(&database.MovieStudio{MovieID: movieID, StudioID: studio.ID}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("movie_id = ?", movieID).Delete(&database.MovieActor{}).Error; err != nil {
			return err
		}
		for _, member := range details.Cast {
			var actor database.Actor
			if err := tx.FirstOrCreate(&actor, database.Actor{Name: member.Name}).Error; err != nil {
				return err
			}
			link := database.MovieActor{
				MovieID: movieID, ActorID: actor.ID,
				Role: member.Role, SortOrder: member.SortOrder,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("movie_id = ?", movieID).Delete(&database.MovieCrew{}).Error; err != nil {
			return err
		}
		for _, credit := range details.Crew {
			var member database.CrewMember
			if err := tx.FirstOrCreate(&member, database.CrewMember{Name: credit.Name}).Error; err != nil {
				return err
			}
			link := database.MovieCrew{MovieID: movieID, CrewMemberID: member.ID, Job: credit.Job}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// downloadSelections downloads the best catalog candidate of each image slot
// into the cache. Locked slots are skipped entirely: no download, no cache
// row, no event. Perceptually duplicate images collapse onto the existing
// cache row.
func (e *Enricher) downloadSelections(ctx context.Context, movie *database.Movie, force bool) (downloaded, skipped []string, err error) {
	for _, slot := range database.ImageSlots {
		if !fieldlock.Allowed(fieldlock.SlotLocked(movie, slot), fieldlock.OriginAutomation, force) {
			skipped = append(skipped, string(slot))
			continue
		}

		best, err := e.catalog.Best(database.EntityMovie, movie.ID, slot)
		if err != nil {
			continue
		}
		if best.Downloaded {
			continue
		}

		data, err := e.provider.Download(ctx, best.ProviderURL)
		if err != nil {
			if apperrors.IsRetriable(err) {
				return downloaded, skipped, err
			}
			logger.Warn("Skipping undownloadable asset", "asset_id", best.ID, "error", err.Error())
			continue
		}

		phash := perceptualHashOfBytes(data)
		if phash != 0 {
			similar, err := e.cache.Repo().FindSimilarImages(database.EntityMovie, movie.ID, phash, e.cfg.PHashThreshold)
			if err == nil && len(similar) > 0 {
				// Same image as one we already hold; record the analysis and
				// move on.
				_ = e.catalog.MarkDownloaded(best.ID, similar[0].ContentHash, phash)
				continue
			}
		}

		row, err := e.cache.IngestImageBytes(cachemodule.IngestRequest{
			EntityType: database.EntityMovie,
			EntityID:   movie.ID,
			Slot:       slot,
			Source:     database.SourceProvider,
			SourceURL:  best.ProviderURL,
			Provider:   best.Provider,
			Score:      best.Score,
		}, data, path.Ext(best.ProviderURL))
		if err != nil {
			return downloaded, skipped, err
		}

		if err := e.catalog.MarkDownloaded(best.ID, row.ContentHash, phash); err != nil {
			return downloaded, skipped, err
		}
		downloaded = append(downloaded, string(slot))
	}
	return downloaded, skipped, nil
}

func (e *Enricher) markEnriched(movie *database.Movie) error {
	err := e.db.Model(movie).Updates(map[string]interface{}{
		"identification_status": database.StatusEnriched,
		"enriched_at":           gorm.Expr("CURRENT_TIMESTAMP"),
	}).Error
	if err == nil {
		movie.IdentificationStatus = database.StatusEnriched
	}
	return err
}

func perceptualHashOfBytes(data []byte) uint64 {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	return utils.DHash(img)
}

// guessTitleYear derives a search title and year from a release-style file
// name: separators become spaces and everything from the year token on is
// release noise.
func guessTitleYear(fileName string) (string, int) {
	base := strings.TrimSuffix(fileName, path.Ext(fileName))
	base = strings.NewReplacer(".", " ", "_", " ").Replace(base)

	year := 0
	fields := strings.Fields(base)
	for i, field := range fields {
		trimmed := strings.Trim(field, "()[]")
		if n, ok := parseYear(trimmed); ok {
			year = n
			fields = fields[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(fields, " ")), year
}

func parseYear(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < 1900 || n > 2100 {
		return 0, false
	}
	return n, true
}
