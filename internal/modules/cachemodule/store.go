// Package cachemodule implements the content-addressed asset cache: a
// sharded on-disk file store keyed by SHA-256 plus the typed database rows
// that reference it.
package cachemodule

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/utils"
)

// kindDirs maps cache kinds to their subdirectory under the cache root.
var kindDirs = map[database.CacheFileKind]string{
	database.CacheKindImage: "images",
	database.CacheKindVideo: "videos",
	database.CacheKindAudio: "audio",
	database.CacheKindText:  "text",
}

// Store is the on-disk half of the cache. Files live at
// {root}/{kind}/{hash[0:2]}/{hash[2:4]}/{hash}.{ext} and are written once;
// concurrent writers of the same hash serialize on a per-hash lock and the
// loser observes the finished file.
type Store struct {
	rootDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at rootDir, creating the kind
// subdirectories.
func NewStore(rootDir string) (*Store, error) {
	for _, sub := range kindDirs {
		if err := os.MkdirAll(filepath.Join(rootDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	return &Store{
		rootDir: rootDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// RootDir returns the cache root.
func (s *Store) RootDir() string { return s.rootDir }

func (s *Store) hashLock(hash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		s.locks[hash] = l
	}
	return l
}

// PathFor returns the canonical sharded path for a hash.
func (s *Store) PathFor(kind database.CacheFileKind, hash, ext string) string {
	ext = normalizeExt(ext)
	return filepath.Join(s.rootDir, kindDirs[kind], hash[0:2], hash[2:4], hash+ext)
}

// StoreBytes writes data into the cache and returns its hash and path. If a
// file with the same hash already exists the bytes are deduplicated.
func (s *Store) StoreBytes(kind database.CacheFileKind, data []byte, ext string) (string, string, error) {
	hash := utils.HashBytes(data)
	path := s.PathFor(kind, hash, ext)

	lock := s.hashLock(hash)
	lock.Lock()
	defer lock.Unlock()

	if utils.FileExists(path) {
		return hash, path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create cache shard: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write cache file: %w", err)
	}
	return hash, path, nil
}

// StoreFile copies an existing file into the cache and returns its hash and
// cache path. The source is never moved; the cache is the copy of record.
func (s *Store) StoreFile(kind database.CacheFileKind, srcPath string) (string, string, error) {
	hash, err := utils.HashFile(srcPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash %s: %w", srcPath, err)
	}
	path := s.PathFor(kind, hash, filepath.Ext(srcPath))

	lock := s.hashLock(hash)
	lock.Lock()
	defer lock.Unlock()

	if utils.FileExists(path) {
		return hash, path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create cache shard: %w", err)
	}
	if err := utils.CopyFile(srcPath, path); err != nil {
		return "", "", fmt.Errorf("failed to copy into cache: %w", err)
	}
	return hash, path, nil
}

// Exists reports whether bytes for the hash are present.
func (s *Store) Exists(kind database.CacheFileKind, hash, ext string) bool {
	return utils.FileExists(s.PathFor(kind, hash, ext))
}

// Remove deletes the on-disk file for a hash. Callers must have verified the
// hash is orphaned.
func (s *Store) Remove(kind database.CacheFileKind, hash, ext string) error {
	lock := s.hashLock(hash)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(s.PathFor(kind, hash, ext))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
