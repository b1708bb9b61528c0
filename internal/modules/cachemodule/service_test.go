package cachemodule

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/utils"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&database.CacheImageFile{},
		&database.CacheVideoFile{},
		&database.CacheAudioFile{},
		&database.CacheTextFile{},
		&database.LibraryImageFile{},
		&database.LibraryVideoFile{},
		&database.LibraryAudioFile{},
		&database.LibraryTextFile{},
	))

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	return NewService(store, db)
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestStoreBytesRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("hello cache")
	hash, path, err := store.StoreBytes(database.CacheKindText, data, ".nfo")
	require.NoError(t, err)

	assert.Equal(t, utils.HashBytes(data), hash)
	assert.Equal(t, store.PathFor(database.CacheKindText, hash, ".nfo"), path)
	assert.Contains(t, path, filepath.Join("text", hash[0:2], hash[2:4]))

	read, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, read)

	// Second store of identical bytes deduplicates.
	hash2, path2, err := store.StoreBytes(database.CacheKindText, data, ".nfo")
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)
	assert.Equal(t, path, path2)
}

func TestStoreConcurrentSameHash(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0x42}, 4096)

	var wg sync.WaitGroup
	paths := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, p, err := store.StoreBytes(database.CacheKindImage, data, ".jpg")
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range paths[1:] {
		assert.Equal(t, paths[0], p)
	}
	read, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestIngestImageDeduplicatesRows(t *testing.T) {
	svc := newTestService(t)
	src := writePNG(t, t.TempDir(), "poster.png", 10, 15)

	req := IngestRequest{
		EntityType: database.EntityMovie,
		EntityID:   1,
		Slot:       database.SlotPoster,
		Source:     database.SourceLocal,
		Score:      85,
	}

	first, err := svc.IngestImageFile(req, src, 10, 15, "png")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Len(t, first.ContentHash, 64)

	// Same bytes, same association: one row, updated score.
	req.Score = 100
	second, err := svc.IngestImageFile(req, src, 10, 15, "png")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, float64(100), second.Score)

	var count int64
	svc.db.Model(&database.CacheImageFile{}).Count(&count)
	assert.Equal(t, int64(1), count)

	// Same bytes for a different entity: new row, same on-disk file.
	req.EntityID = 2
	third, err := svc.IngestImageFile(req, src, 10, 15, "png")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, first.ContentHash, third.ContentHash)
	assert.Equal(t, first.FilePath, third.FilePath)

	refs, err := svc.Repo().RefCount(first.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refs)
}

func TestListImagesOrdering(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()

	low := writePNG(t, dir, "low.png", 5, 7)
	high := writePNG(t, dir, "high.png", 50, 70)

	req := IngestRequest{EntityType: database.EntityMovie, EntityID: 7, Slot: database.SlotPoster, Source: database.SourceLocal}

	req.Score = 60
	_, err := svc.IngestImageFile(req, low, 5, 7, "png")
	require.NoError(t, err)

	req.Score = 95
	best, err := svc.IngestImageFile(req, high, 50, 70, "png")
	require.NoError(t, err)

	rows, err := svc.Repo().ListImages(database.EntityMovie, 7, database.SlotPoster)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, best.ID, rows[0].ID)

	top, err := svc.Repo().BestImage(database.EntityMovie, 7, database.SlotPoster)
	require.NoError(t, err)
	assert.Equal(t, best.ID, top.ID)
}

func TestQuickHashLookup(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "movie.mkv")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{0x11}, 2048), 0o644))
	quickHash, err := utils.QuickHashFile(src)
	require.NoError(t, err)

	req := IngestRequest{EntityType: database.EntityMovie, EntityID: 3, Slot: database.SlotMainMovie, Source: database.SourceLocal}
	_, err = svc.IngestVideoFile(req, src, quickHash, "h264", 7200, 8_000_000, "", "aac stereo")
	require.NoError(t, err)

	row, ok := svc.Repo().LookupQuickHash(quickHash)
	require.True(t, ok)
	assert.Equal(t, "h264", row.Codec)
	assert.Equal(t, 7200.0, row.DurationSec)

	_, ok = svc.Repo().LookupQuickHash("missing")
	assert.False(t, ok)
}

func TestDropAssociationReclaimsOrphanedBytes(t *testing.T) {
	svc := newTestService(t)
	src := writePNG(t, t.TempDir(), "poster.png", 8, 12)

	req := IngestRequest{EntityType: database.EntityMovie, EntityID: 1, Slot: database.SlotPoster, Source: database.SourceLocal, Score: 90}
	rowA, err := svc.IngestImageFile(req, src, 8, 12, "png")
	require.NoError(t, err)

	req.EntityID = 2
	rowB, err := svc.IngestImageFile(req, src, 8, 12, "png")
	require.NoError(t, err)

	// First drop leaves the file: another row still references the hash.
	require.NoError(t, svc.DropAssociation(database.CacheKindImage, rowA.ID))
	assert.True(t, utils.FileExists(rowB.FilePath))

	// Last drop reclaims the bytes.
	require.NoError(t, svc.DropAssociation(database.CacheKindImage, rowB.ID))
	assert.False(t, utils.FileExists(rowB.FilePath))
}

func TestCollectGarbageKeepsReferencedBytes(t *testing.T) {
	svc := newTestService(t)
	src := writePNG(t, t.TempDir(), "poster.png", 8, 12)

	req := IngestRequest{EntityType: database.EntityMovie, EntityID: 1, Slot: database.SlotPoster, Source: database.SourceLocal, Score: 90}
	row, err := svc.IngestImageFile(req, src, 8, 12, "png")
	require.NoError(t, err)

	result, err := svc.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Removed)
	assert.True(t, utils.FileExists(row.FilePath))
}

func TestCollectGarbage(t *testing.T) {
	svc := newTestService(t)
	src := writePNG(t, t.TempDir(), "poster.png", 8, 12)

	req := IngestRequest{EntityType: database.EntityMovie, EntityID: 1, Slot: database.SlotPoster, Source: database.SourceLocal, Score: 90}
	row, err := svc.IngestImageFile(req, src, 8, 12, "png")
	require.NoError(t, err)

	// Simulate an entity-delete trigger wiping the row without touching disk.
	require.NoError(t, svc.db.Delete(&database.CacheImageFile{}, row.ID).Error)
	assert.True(t, utils.FileExists(row.FilePath))

	result, err := svc.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.False(t, utils.FileExists(row.FilePath))

	// A second pass finds nothing.
	result, err = svc.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Removed)
}
