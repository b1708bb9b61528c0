package cachemodule

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/utils"
)

// Repository is the database half of the cache: typed rows over the four
// cache tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a cache repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// slotScope orders by classification score then recency, the canonical list
// order for every cache table.
func slotScope(entityType database.EntityType, entityID uint, slot database.Slot) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("entity_type = ? AND entity_id = ?", entityType, entityID)
		if slot != "" {
			tx = tx.Where("slot = ?", slot)
		}
		return tx.Order("score DESC, discovered_at DESC")
	}
}

// ListImages returns image rows for an entity, best first. An empty slot
// matches all slots.
func (r *Repository) ListImages(entityType database.EntityType, entityID uint, slot database.Slot) ([]database.CacheImageFile, error) {
	var rows []database.CacheImageFile
	err := r.db.Scopes(slotScope(entityType, entityID, slot)).Find(&rows).Error
	return rows, err
}

// ListVideos returns video rows for an entity, best first.
func (r *Repository) ListVideos(entityType database.EntityType, entityID uint, slot database.Slot) ([]database.CacheVideoFile, error) {
	var rows []database.CacheVideoFile
	err := r.db.Scopes(slotScope(entityType, entityID, slot)).Find(&rows).Error
	return rows, err
}

// ListAudio returns audio rows for an entity, best first.
func (r *Repository) ListAudio(entityType database.EntityType, entityID uint, slot database.Slot) ([]database.CacheAudioFile, error) {
	var rows []database.CacheAudioFile
	err := r.db.Scopes(slotScope(entityType, entityID, slot)).Find(&rows).Error
	return rows, err
}

// ListText returns text rows for an entity, best first.
func (r *Repository) ListText(entityType database.EntityType, entityID uint, slot database.Slot) ([]database.CacheTextFile, error) {
	var rows []database.CacheTextFile
	err := r.db.Scopes(slotScope(entityType, entityID, slot)).Find(&rows).Error
	return rows, err
}

// BestImage returns the highest-ranked image for a slot, or a not-found
// error.
func (r *Repository) BestImage(entityType database.EntityType, entityID uint, slot database.Slot) (*database.CacheImageFile, error) {
	var row database.CacheImageFile
	err := r.db.Scopes(slotScope(entityType, entityID, slot)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("cached image", string(slot))
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindImageByHash looks up an image row by content hash.
func (r *Repository) FindImageByHash(hash string) (*database.CacheImageFile, error) {
	var row database.CacheImageFile
	err := r.db.Where("content_hash = ?", hash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("cached image", hash)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LookupQuickHash returns a previously probed video row matching the
// quick-hash, letting the fact gatherer skip ffprobe on unchanged files. The
// quick hash samples only the file's ends, so callers must confirm a hit
// against the row's ContentHash before trusting it.
func (r *Repository) LookupQuickHash(quickHash string) (*database.CacheVideoFile, bool) {
	var row database.CacheVideoFile
	err := r.db.Where("quick_hash = ?", quickHash).First(&row).Error
	if err != nil {
		return nil, false
	}
	return &row, true
}

// FindSimilarImages returns cached images whose perceptual hash is within
// maxDistance bits of the given hash. Candidate filtering happens in Go;
// Hamming distance is not expressible as an index scan.
func (r *Repository) FindSimilarImages(entityType database.EntityType, entityID uint, phash uint64, maxDistance int) ([]database.CacheImageFile, error) {
	var rows []database.CacheImageFile
	err := r.db.
		Where("entity_type = ? AND entity_id = ? AND perceptual_hash != 0", entityType, entityID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var similar []database.CacheImageFile
	for _, row := range rows {
		if utils.HammingDistance(phash, uint64(row.PerceptualHash)) <= maxDistance {
			similar = append(similar, row)
		}
	}
	return similar, nil
}

// Touch records an access for LRU bookkeeping.
func (r *Repository) Touch(kind database.CacheFileKind, id uint) error {
	return r.db.Table(tableFor(kind)).
		Where("id = ?", id).
		Update("last_accessed_at", time.Now()).Error
}

// RefCount returns the number of cache rows across all four tables sharing
// the content hash.
func (r *Repository) RefCount(hash string) (int64, error) {
	var total int64
	for _, table := range cacheTables {
		var n int64
		if err := r.db.Table(table).Where("content_hash = ?", hash).Count(&n).Error; err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// LibraryRefCount returns the number of library-file rows whose cache row
// carries the content hash.
func (r *Repository) LibraryRefCount(hash string) (int64, error) {
	var total int64
	for cacheTable, libTable := range libraryTables {
		var n int64
		err := r.db.Table(libTable).
			Joins("JOIN "+cacheTable+" ON "+cacheTable+".id = "+libTable+".cache_file_id").
			Where(cacheTable+".content_hash = ?", hash).
			Count(&n).Error
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

var cacheTables = []string{
	"cache_image_files", "cache_video_files", "cache_audio_files", "cache_text_files",
}

var libraryTables = map[string]string{
	"cache_image_files": "library_image_files",
	"cache_video_files": "library_video_files",
	"cache_audio_files": "library_audio_files",
	"cache_text_files":  "library_text_files",
}

func tableFor(kind database.CacheFileKind) string {
	switch kind {
	case database.CacheKindImage:
		return "cache_image_files"
	case database.CacheKindVideo:
		return "cache_video_files"
	case database.CacheKindAudio:
		return "cache_audio_files"
	}
	return "cache_text_files"
}
