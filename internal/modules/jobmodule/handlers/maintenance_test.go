package handlers

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
)

// newCleanupDeps extends the shared fixture with the credit tables and the
// cascade triggers the cleanup pass relies on.
func newCleanupDeps(t *testing.T) *Deps {
	t.Helper()
	deps := newTestDeps(t)
	require.NoError(t, database.MigrateCore(deps.DB))
	return deps
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func ingestPoster(t *testing.T, deps *Deps, movieID uint, data []byte) *database.CacheImageFile {
	t.Helper()
	row, err := deps.Cache.IngestImageBytes(cachemodule.IngestRequest{
		EntityType: database.EntityMovie,
		EntityID:   movieID,
		Slot:       database.SlotPoster,
		Source:     database.SourceLocal,
	}, data, ".png")
	require.NoError(t, err)
	return row
}

func TestCleanupEmptiesExpiredRecycleBin(t *testing.T) {
	deps := newCleanupDeps(t)

	library := database.Library{Name: "Movies", RootPath: t.TempDir(), Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	expired := database.Movie{LibraryID: library.ID, FilePath: "/m/Expired/Expired.mkv", FileName: "Expired.mkv", Title: "Expired"}
	binned := database.Movie{LibraryID: library.ID, FilePath: "/m/Binned/Binned.mkv", FileName: "Binned.mkv", Title: "Binned"}
	require.NoError(t, deps.DB.Create(&expired).Error)
	require.NoError(t, deps.DB.Create(&binned).Error)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, deps.DB.Model(&database.Movie{}).Where("id = ?", expired.ID).Update("deleted_at", past).Error)
	require.NoError(t, deps.DB.Model(&database.Movie{}).Where("id = ?", binned.ID).
		Update("deleted_at", database.SoftDeleteAt(30)).Error)

	// Distinct bytes so the two posters land under distinct content hashes.
	ingestPoster(t, deps, expired.ID, pngBytes(t, 20, 30))
	keptRow := ingestPoster(t, deps, binned.ID, pngBytes(t, 40, 60))

	job := &database.Job{Type: jobmodule.TypeCleanup}
	raw, err := deps.handleCleanup(context.Background(), job, noProgress)
	require.NoError(t, err)

	result := raw.(*cleanupResult)
	assert.Equal(t, 1, result.HardDeleted)
	assert.Equal(t, 2, result.GCScanned)
	assert.Equal(t, 1, result.GCRemoved)

	var movieCount int64
	require.NoError(t, deps.DB.Model(&database.Movie{}).Count(&movieCount).Error)
	assert.EqualValues(t, 1, movieCount, "the unexpired movie stays in the bin")

	// The expired movie's cache row went with it; the other poster survives.
	var cacheRows []database.CacheImageFile
	require.NoError(t, deps.DB.Find(&cacheRows).Error)
	require.Len(t, cacheRows, 1)
	assert.Equal(t, keptRow.ContentHash, cacheRows[0].ContentHash)
	assert.FileExists(t, keptRow.FilePath)

	var logCount int64
	require.NoError(t, deps.DB.Model(&database.ActivityLog{}).Where("category = ?", "cleanup").Count(&logCount).Error)
	assert.EqualValues(t, 1, logCount)
}

func TestCleanupWithEmptyBinIsNoop(t *testing.T) {
	deps := newCleanupDeps(t)

	job := &database.Job{Type: jobmodule.TypeCleanup}
	raw, err := deps.handleCleanup(context.Background(), job, noProgress)
	require.NoError(t, err)

	result := raw.(*cleanupResult)
	assert.Zero(t, result.HardDeleted)
	assert.Zero(t, result.GCRemoved)
}
