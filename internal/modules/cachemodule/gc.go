package cachemodule

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/logger"
)

// GCResult summarises one garbage-collection pass.
type GCResult struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Errors  int `json:"errors"`
}

// CollectGarbage walks the cache tree and removes files whose hash no cache
// row and no library-file row references any more. Cache rows themselves are
// removed by the entity-delete triggers; this pass reclaims the orphaned
// bytes.
func (s *Service) CollectGarbage() (*GCResult, error) {
	result := &GCResult{}

	for kind, sub := range kindDirs {
		root := filepath.Join(s.store.RootDir(), sub)
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			result.Scanned++

			hash := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
			if len(hash) != 64 {
				return nil
			}

			refs, err := s.repo.RefCount(hash)
			if err != nil {
				result.Errors++
				return nil
			}
			if refs > 0 {
				return nil
			}
			libRefs, err := s.repo.LibraryRefCount(hash)
			if err != nil {
				result.Errors++
				return nil
			}
			if libRefs > 0 {
				return nil
			}

			if err := s.store.Remove(kind, hash, filepath.Ext(info.Name())); err != nil {
				logger.Warn("Cache gc failed to remove file", "path", path, "error", err.Error())
				result.Errors++
				return nil
			}
			result.Removed++
			return nil
		})
		if err != nil {
			return result, err
		}
	}

	logger.Info("Cache garbage collection finished",
		"scanned", result.Scanned, "removed", result.Removed, "errors", result.Errors)
	return result, nil
}

// DropAssociation deletes one cache row, then reclaims the bytes if that was
// the last reference to the hash.
func (s *Service) DropAssociation(kind database.CacheFileKind, id uint) error {
	var hash, ext string

	switch kind {
	case database.CacheKindImage:
		var row database.CacheImageFile
		if err := s.db.First(&row, id).Error; err != nil {
			return err
		}
		hash, ext = row.ContentHash, filepath.Ext(row.FilePath)
		if err := s.db.Delete(&row).Error; err != nil {
			return err
		}
	case database.CacheKindVideo:
		var row database.CacheVideoFile
		if err := s.db.First(&row, id).Error; err != nil {
			return err
		}
		hash, ext = row.ContentHash, filepath.Ext(row.FilePath)
		if err := s.db.Delete(&row).Error; err != nil {
			return err
		}
	case database.CacheKindAudio:
		var row database.CacheAudioFile
		if err := s.db.First(&row, id).Error; err != nil {
			return err
		}
		hash, ext = row.ContentHash, filepath.Ext(row.FilePath)
		if err := s.db.Delete(&row).Error; err != nil {
			return err
		}
	case database.CacheKindText:
		var row database.CacheTextFile
		if err := s.db.First(&row, id).Error; err != nil {
			return err
		}
		hash, ext = row.ContentHash, filepath.Ext(row.FilePath)
		if err := s.db.Delete(&row).Error; err != nil {
			return err
		}
	}

	refs, err := s.repo.RefCount(hash)
	if err != nil {
		return err
	}
	if refs > 0 {
		return nil
	}
	libRefs, err := s.repo.LibraryRefCount(hash)
	if err != nil {
		return err
	}
	if libRefs > 0 {
		return nil
	}
	return s.store.Remove(kind, hash, ext)
}
