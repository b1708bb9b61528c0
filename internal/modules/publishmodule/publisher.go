package publishmodule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/fieldlock"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/utils"
)

// Publisher copies selected cache assets into the movie directory. The cache
// stays the source of truth: bytes are always copied, never moved, and a
// failed publish leaves the previous library file untouched.
type Publisher struct {
	db    *gorm.DB
	cache *cachemodule.Service
	bus   events.EventBus
}

// NewPublisher creates a publisher.
func NewPublisher(db *gorm.DB, cache *cachemodule.Service, bus events.EventBus) *Publisher {
	return &Publisher{db: db, cache: cache, bus: bus}
}

// layout describes where published files go for one movie.
type layout struct {
	dir  string
	base string
	disc bool
}

func movieLayout(movie *database.Movie) layout {
	dir := filepath.Dir(movie.FilePath)
	base := strings.TrimSuffix(movie.FileName, filepath.Ext(movie.FileName))

	disc := utils.FileExists(filepath.Join(dir, "BDMV", "index.bdmv")) ||
		utils.FileExists(filepath.Join(dir, "VIDEO_TS", "VIDEO_TS.IFO"))
	return layout{dir: dir, base: base, disc: disc}
}

// targetPath computes the library path for a slot. Standard mode prefixes
// the movie basename; disc mode uses bare short names.
func (l layout) targetPath(slot database.Slot, ext, lang string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	switch slot {
	case database.SlotNFO:
		if l.disc {
			return filepath.Join(l.dir, "movie.nfo")
		}
		return filepath.Join(l.dir, nfoFileName(l.base))
	case database.SlotSubtitle:
		name := l.base
		if lang != "" {
			name += "." + lang
		}
		return filepath.Join(l.dir, name+ext)
	case database.SlotTheme:
		return filepath.Join(l.dir, "theme"+ext)
	}

	if l.disc {
		return filepath.Join(l.dir, string(slot)+ext)
	}
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s%s", l.base, slot, ext))
}

// publishFile is the shared core of steps 1 to 4: idempotent copy from cache
// to target plus a library row upsert. Returns the library path and whether
// bytes were written.
func (p *Publisher) publishFile(cachePath, contentHash, target string) (bool, error) {
	if utils.FileExists(target) {
		existingHash, err := utils.HashFile(target)
		if err == nil && existingHash == contentHash {
			return false, nil
		}
		if err := os.Remove(target); err != nil {
			return false, fmt.Errorf("failed to replace %s: %w", target, err)
		}
	}

	if err := utils.CopyFile(cachePath, target); err != nil {
		return false, fmt.Errorf("failed to publish %s: %w", target, err)
	}
	return true, nil
}

// upsertLibraryRow keeps exactly one library row per target path per table.
func upsertLibraryRow(db *gorm.DB, table string, cacheFileID uint, target string) error {
	now := time.Now()
	var existing database.LibraryFileCommon
	err := db.Table(table).Where("file_path = ?", target).First(&existing).Error
	if err == nil {
		return db.Table(table).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"cache_file_id": cacheFileID,
			"published_at":  now,
		}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return db.Table(table).Create(map[string]interface{}{
		"cache_file_id": cacheFileID,
		"file_path":     target,
		"published_at":  now,
	}).Error
}

// PublishImage publishes one cached image into the slot's library position.
func (p *Publisher) PublishImage(movie *database.Movie, slot database.Slot, row *database.CacheImageFile) (string, error) {
	l := movieLayout(movie)
	target := l.targetPath(slot, filepath.Ext(row.FilePath), "")

	wrote, err := p.publishFile(row.FilePath, row.ContentHash, target)
	if err != nil {
		return "", err
	}
	if err := upsertLibraryRow(p.db, "library_image_files", row.ID, target); err != nil {
		return "", err
	}
	if wrote {
		logger.Debug("Published image", "movie_id", movie.ID, "slot", string(slot), "target", target)
	}
	return target, nil
}

// PublishTrailer publishes a cached trailer video.
func (p *Publisher) PublishTrailer(movie *database.Movie, row *database.CacheVideoFile) (string, error) {
	l := movieLayout(movie)
	target := l.targetPath(database.SlotTrailer, filepath.Ext(row.FilePath), "")

	if _, err := p.publishFile(row.FilePath, row.ContentHash, target); err != nil {
		return "", err
	}
	if err := upsertLibraryRow(p.db, "library_video_files", row.ID, target); err != nil {
		return "", err
	}
	return target, nil
}

// PublishSubtitle publishes a cached subtitle with its language suffix.
func (p *Publisher) PublishSubtitle(movie *database.Movie, row *database.CacheTextFile) (string, error) {
	l := movieLayout(movie)
	target := l.targetPath(database.SlotSubtitle, filepath.Ext(row.FilePath), row.SubtitleLanguage)

	if _, err := p.publishFile(row.FilePath, row.ContentHash, target); err != nil {
		return "", err
	}
	if err := upsertLibraryRow(p.db, "library_text_files", row.ID, target); err != nil {
		return "", err
	}
	return target, nil
}

// PublishTheme publishes a cached theme audio file.
func (p *Publisher) PublishTheme(movie *database.Movie, row *database.CacheAudioFile) (string, error) {
	l := movieLayout(movie)
	target := l.targetPath(database.SlotTheme, filepath.Ext(row.FilePath), "")

	if _, err := p.publishFile(row.FilePath, row.ContentHash, target); err != nil {
		return "", err
	}
	if err := upsertLibraryRow(p.db, "library_audio_files", row.ID, target); err != nil {
		return "", err
	}
	return target, nil
}

// PublishNFO regenerates the movie NFO from the database, stores it as a new
// locally sourced cache text row, and publishes it like any other asset.
func (p *Publisher) PublishNFO(movie *database.Movie) (string, error) {
	body, err := GenerateNFO(p.db, movie)
	if err != nil {
		return "", err
	}

	row, err := p.cache.IngestTextBytes(cachemodule.IngestRequest{
		EntityType: database.EntityMovie,
		EntityID:   movie.ID,
		Slot:       database.SlotNFO,
		Source:     database.SourceLocal,
		Score:      100,
	}, body, ".nfo", database.TextKindNFO, "", true)
	if err != nil {
		return "", err
	}

	l := movieLayout(movie)
	target := l.targetPath(database.SlotNFO, ".nfo", "")
	if _, err := p.publishFile(row.FilePath, row.ContentHash, target); err != nil {
		return "", err
	}
	if err := upsertLibraryRow(p.db, "library_text_files", row.ID, target); err != nil {
		return "", err
	}
	return target, nil
}

// PublishResult summarises one full publish pass.
type PublishResult struct {
	Published []string `json:"published"`
	Skipped   []string `json:"skipped,omitempty"`
}

// PublishMovie publishes the best asset of every image slot, the trailer,
// subtitles, theme audio, and the regenerated NFO, honoring slot locks:
// automation skips locked slots unless force is set. On success the movie
// transitions to published.
func (p *Publisher) PublishMovie(movie *database.Movie, origin fieldlock.Origin, force bool) (*PublishResult, error) {
	result := &PublishResult{}

	for _, slot := range database.ImageSlots {
		if !fieldlock.Allowed(fieldlock.SlotLocked(movie, slot), origin, force) {
			result.Skipped = append(result.Skipped, string(slot))
			continue
		}
		best, err := p.cache.Repo().BestImage(database.EntityMovie, movie.ID, slot)
		if err != nil {
			continue
		}
		target, err := p.PublishImage(movie, slot, best)
		if err != nil {
			return result, err
		}
		result.Published = append(result.Published, target)
	}

	if fieldlock.Allowed(fieldlock.SlotLocked(movie, database.SlotTrailer), origin, force) {
		if trailers, err := p.cache.Repo().ListVideos(database.EntityMovie, movie.ID, database.SlotTrailer); err == nil && len(trailers) > 0 {
			target, err := p.PublishTrailer(movie, &trailers[0])
			if err != nil {
				return result, err
			}
			result.Published = append(result.Published, target)
		}
	} else {
		result.Skipped = append(result.Skipped, string(database.SlotTrailer))
	}

	if subs, err := p.cache.Repo().ListText(database.EntityMovie, movie.ID, database.SlotSubtitle); err == nil {
		for i := range subs {
			target, err := p.PublishSubtitle(movie, &subs[i])
			if err != nil {
				return result, err
			}
			result.Published = append(result.Published, target)
		}
	}

	if themes, err := p.cache.Repo().ListAudio(database.EntityMovie, movie.ID, database.SlotTheme); err == nil && len(themes) > 0 {
		target, err := p.PublishTheme(movie, &themes[0])
		if err != nil {
			return result, err
		}
		result.Published = append(result.Published, target)
	}

	// A published movie always carries an NFO library file. A lock only
	// skips regeneration when a previously published NFO already exists.
	if fieldlock.Allowed(fieldlock.SlotLocked(movie, database.SlotNFO), origin, force) || !p.hasPublishedNFO(movie) {
		target, err := p.PublishNFO(movie)
		if err != nil {
			return result, err
		}
		result.Published = append(result.Published, target)
	} else {
		result.Skipped = append(result.Skipped, string(database.SlotNFO))
	}

	now := time.Now()
	err := p.db.Model(movie).Updates(map[string]interface{}{
		"identification_status": database.StatusPublished,
		"published_at":          now,
	}).Error
	if err != nil {
		return result, err
	}
	movie.IdentificationStatus = database.StatusPublished
	movie.PublishedAt = &now

	if p.bus != nil {
		p.bus.PublishAsync(events.MoviesChanged("publisher", movie.ID))
	}
	return result, nil
}
