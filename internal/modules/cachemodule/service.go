package cachemodule

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	_ "github.com/chai2010/webp"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/utils"
)

// Service combines the file store and the repository into the ingestion API
// used by the scanner, the enrichment pipeline, and the publisher.
type Service struct {
	store *Store
	repo  *Repository
	db    *gorm.DB
}

// NewService creates a cache service.
func NewService(store *Store, db *gorm.DB) *Service {
	return &Service{store: store, repo: NewRepository(db), db: db}
}

// Store returns the underlying file store.
func (s *Service) Store() *Store { return s.store }

// Repo returns the underlying repository.
func (s *Service) Repo() *Repository { return s.repo }

// IngestRequest carries the association and provenance for one ingested
// asset.
type IngestRequest struct {
	EntityType database.EntityType
	EntityID   uint
	Slot       database.Slot
	Source     database.AssetSource
	SourceURL  string
	Provider   string
	Score      float64
}

func (s *Service) common(req IngestRequest, hash, path string, size int64) database.CacheFileCommon {
	now := time.Now()
	return database.CacheFileCommon{
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		Slot:           req.Slot,
		Score:          req.Score,
		FilePath:       path,
		FileName:       filepath.Base(path),
		Size:           size,
		ContentHash:    hash,
		Source:         req.Source,
		SourceURL:      req.SourceURL,
		Provider:       req.Provider,
		DiscoveredAt:   now,
		LastAccessedAt: now,
	}
}

// IngestImageFile copies an image into the cache and ensures exactly one row
// exists for (entity, slot, hash). Re-ingesting the same bytes updates the
// score instead of duplicating the row.
func (s *Service) IngestImageFile(req IngestRequest, srcPath string, width, height int, format string) (*database.CacheImageFile, error) {
	hash, cachePath, err := s.store.StoreFile(database.CacheKindImage, srcPath)
	if err != nil {
		return nil, err
	}

	var existing database.CacheImageFile
	err = s.db.Where("entity_type = ? AND entity_id = ? AND slot = ? AND content_hash = ?",
		req.EntityType, req.EntityID, req.Slot, hash).First(&existing).Error
	if err == nil {
		if existing.Score != req.Score {
			existing.Score = req.Score
			err = s.db.Model(&existing).Update("score", req.Score).Error
		}
		return &existing, err
	}

	size := fileSize(cachePath)
	row := database.CacheImageFile{
		CacheFileCommon: s.common(req, hash, cachePath, size),
		Width:           width,
		Height:          height,
		Format:          format,
		PerceptualHash:  int64(perceptualHashOf(cachePath)),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// IngestImageBytes writes downloaded image bytes straight into the cache,
// probing dimensions from the data itself.
func (s *Service) IngestImageBytes(req IngestRequest, data []byte, ext string) (*database.CacheImageFile, error) {
	hash, cachePath, err := s.store.StoreBytes(database.CacheKindImage, data, ext)
	if err != nil {
		return nil, err
	}

	var existing database.CacheImageFile
	err = s.db.Where("entity_type = ? AND entity_id = ? AND slot = ? AND content_hash = ?",
		req.EntityType, req.EntityID, req.Slot, hash).First(&existing).Error
	if err == nil {
		if existing.Score != req.Score {
			existing.Score = req.Score
			err = s.db.Model(&existing).Update("score", req.Score).Error
		}
		return &existing, err
	}

	row := database.CacheImageFile{
		CacheFileCommon: s.common(req, hash, cachePath, int64(len(data))),
	}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		row.Width = cfg.Width
		row.Height = cfg.Height
		row.Format = format
	}
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		row.PerceptualHash = int64(utils.DHash(img))
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// IngestVideoFile copies a video into the cache with its probed stream data.
func (s *Service) IngestVideoFile(req IngestRequest, srcPath, quickHash, codec string, durationSec float64, bitrate int64, hdrFormat, audioSummary string) (*database.CacheVideoFile, error) {
	hash, cachePath, err := s.store.StoreFile(database.CacheKindVideo, srcPath)
	if err != nil {
		return nil, err
	}

	var existing database.CacheVideoFile
	err = s.db.Where("entity_type = ? AND entity_id = ? AND slot = ? AND content_hash = ?",
		req.EntityType, req.EntityID, req.Slot, hash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}

	row := database.CacheVideoFile{
		CacheFileCommon: s.common(req, hash, cachePath, fileSize(cachePath)),
		QuickHash:       quickHash,
		Codec:           codec,
		DurationSec:     durationSec,
		Bitrate:         bitrate,
		HDRFormat:       hdrFormat,
		AudioSummary:    audioSummary,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// IngestAudioFile copies an audio file into the cache.
func (s *Service) IngestAudioFile(req IngestRequest, srcPath string, audioKind database.AudioKind, durationSec float64) (*database.CacheAudioFile, error) {
	hash, cachePath, err := s.store.StoreFile(database.CacheKindAudio, srcPath)
	if err != nil {
		return nil, err
	}

	var existing database.CacheAudioFile
	err = s.db.Where("entity_type = ? AND entity_id = ? AND slot = ? AND content_hash = ?",
		req.EntityType, req.EntityID, req.Slot, hash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}

	row := database.CacheAudioFile{
		CacheFileCommon: s.common(req, hash, cachePath, fileSize(cachePath)),
		AudioKind:       audioKind,
		DurationSec:     durationSec,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// IngestTextFile copies a text file into the cache.
func (s *Service) IngestTextFile(req IngestRequest, srcPath string, textKind database.TextKind, language string, nfoValid bool) (*database.CacheTextFile, error) {
	hash, cachePath, err := s.store.StoreFile(database.CacheKindText, srcPath)
	if err != nil {
		return nil, err
	}
	return s.ensureTextRow(req, hash, cachePath, textKind, language, nfoValid)
}

// IngestTextBytes writes text bytes straight into the cache, used by NFO
// regeneration where no source file exists yet.
func (s *Service) IngestTextBytes(req IngestRequest, data []byte, ext string, textKind database.TextKind, language string, nfoValid bool) (*database.CacheTextFile, error) {
	hash, cachePath, err := s.store.StoreBytes(database.CacheKindText, data, ext)
	if err != nil {
		return nil, err
	}
	return s.ensureTextRow(req, hash, cachePath, textKind, language, nfoValid)
}

func (s *Service) ensureTextRow(req IngestRequest, hash, cachePath string, textKind database.TextKind, language string, nfoValid bool) (*database.CacheTextFile, error) {
	var existing database.CacheTextFile
	err := s.db.Where("entity_type = ? AND entity_id = ? AND slot = ? AND content_hash = ?",
		req.EntityType, req.EntityID, req.Slot, hash).First(&existing).Error
	if err == nil {
		return &existing, nil
	}

	row := database.CacheTextFile{
		CacheFileCommon:  s.common(req, hash, cachePath, fileSize(cachePath)),
		TextKind:         textKind,
		SubtitleLanguage: language,
		NFOValid:         nfoValid,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// perceptualHashOf computes the dHash of an image on disk; undecodable
// images get hash zero.
func perceptualHashOf(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Debug("Perceptual hash skipped", "path", path, "error", err.Error())
		return 0
	}
	return utils.DHash(img)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
