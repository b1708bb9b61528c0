package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule"
	"github.com/curatarr/curatarr/internal/modules/scannermodule/scanner"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.Library{},
		&database.Movie{},
		&database.UnknownFile{},
		&database.IgnorePattern{},
		&database.AppSetting{},
		&database.Job{},
		&database.JobDependency{},
		&database.WebhookEvent{},
		&database.ActivityLog{},
		&database.CacheImageFile{},
		&database.CacheVideoFile{},
		&database.CacheAudioFile{},
		&database.CacheTextFile{},
		&database.LibraryImageFile{},
		&database.LibraryVideoFile{},
		&database.LibraryAudioFile{},
		&database.LibraryTextFile{},
	))

	bus := events.NewEventBus(32)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() { bus.Stop(context.Background()) })

	store, err := cachemodule.NewStore(t.TempDir())
	require.NoError(t, err)
	cache := cachemodule.NewService(store, db)

	matcher, err := scannermodule.NewIgnoreMatcher(db)
	require.NoError(t, err)

	queue := jobmodule.NewQueue(db, bus)
	return &Deps{
		DB:       db,
		Queue:    queue,
		Gatherer: scanner.NewFactGatherer(nil, cache.Repo(), 0, 0),
		Cache:    cache,
		Scanner:  scannermodule.NewModule(db, queue, bus, matcher),
		Settings: database.NewSettings(db),
		Bus:      bus,
		Cfg:      &config.Config{},
	}
}

func scanJob(t *testing.T, payload jobmodule.DirectoryScanPayload) *database.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &database.Job{Type: jobmodule.TypeDirectoryScan, Payload: string(data)}
}

func noProgress(jobmodule.ProgressUpdate) {}

func writeMovieDir(t *testing.T, root string) string {
	t.Helper()
	dir := filepath.Join(root, "Heat (1995)")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Heat (1995).mkv"), []byte("not really video"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 30))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poster.png"), buf.Bytes(), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Heat (1995).nfo"),
		[]byte("<movie><title>Heat</title><tmdbid>949</tmdbid></movie>"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.xyz"), []byte("misc"), 0o644))
	return dir
}

func TestDirectoryScanPersistsMovieAndAssets(t *testing.T) {
	deps := newTestDeps(t)
	root := t.TempDir()
	dir := writeMovieDir(t, root)

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true, AutoEnrich: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	job := scanJob(t, jobmodule.DirectoryScanPayload{LibraryID: library.ID, DirPath: dir})
	raw, err := deps.handleDirectoryScan(context.Background(), job, noProgress)
	require.NoError(t, err)

	result := raw.(*scanResult)
	assert.NotZero(t, result.MovieID)
	assert.NotZero(t, result.EnrichJobID)
	assert.Equal(t, 1, result.UnknownFiles)

	var movie database.Movie
	require.NoError(t, deps.DB.First(&movie, result.MovieID).Error)
	assert.Equal(t, filepath.Join(dir, "Heat (1995).mkv"), movie.FilePath)
	assert.Equal(t, "Heat", movie.Title)
	assert.Equal(t, 1995, movie.Year)
	require.NotNil(t, movie.TmdbID)
	assert.Equal(t, 949, *movie.TmdbID)

	var posters []database.CacheImageFile
	require.NoError(t, deps.DB.Where("entity_id = ? AND slot = ?", movie.ID, database.SlotPoster).Find(&posters).Error)
	assert.Len(t, posters, 1)

	var nfos []database.CacheTextFile
	require.NoError(t, deps.DB.Where("entity_id = ? AND slot = ?", movie.ID, database.SlotNFO).Find(&nfos).Error)
	assert.Len(t, nfos, 1)

	var unknown database.UnknownFile
	require.NoError(t, deps.DB.First(&unknown, "file_name = ?", "notes.xyz").Error)
	assert.Equal(t, "other", unknown.Category)
}

func TestDirectoryScanDiscImage(t *testing.T) {
	deps := newTestDeps(t)
	root := t.TempDir()
	dir := filepath.Join(root, "The Matrix (1999)")
	bdmv := filepath.Join(dir, "BDMV")
	require.NoError(t, os.MkdirAll(bdmv, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bdmv, "index.bdmv"), []byte{0x00}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bdmv, "index.nfo"),
		[]byte(`<movie><uniqueid type="tmdb">603</uniqueid></movie>`), 0o644))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 30))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "poster.png"), buf.Bytes(), 0o644))

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	job := scanJob(t, jobmodule.DirectoryScanPayload{LibraryID: library.ID, DirPath: dir})
	raw, err := deps.handleDirectoryScan(context.Background(), job, noProgress)
	require.NoError(t, err)

	result := raw.(*scanResult)
	assert.Equal(t, string(scanner.CanProcess), result.Status)
	require.NotZero(t, result.MovieID)

	// No single main file exists, so the movie keys on the directory.
	var movie database.Movie
	require.NoError(t, deps.DB.First(&movie, result.MovieID).Error)
	assert.Equal(t, dir, movie.FilePath)
	assert.Equal(t, "The Matrix", movie.Title)
	require.NotNil(t, movie.TmdbID)
	assert.Equal(t, 603, *movie.TmdbID)

	var nfos []database.CacheTextFile
	require.NoError(t, deps.DB.Where("entity_id = ? AND slot = ?", movie.ID, database.SlotNFO).Find(&nfos).Error)
	require.Len(t, nfos, 1)
	assert.EqualValues(t, 100, nfos[0].Score)
}

func TestDirectoryScanIsIdempotent(t *testing.T) {
	deps := newTestDeps(t)
	root := t.TempDir()
	dir := writeMovieDir(t, root)

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	job := scanJob(t, jobmodule.DirectoryScanPayload{LibraryID: library.ID, DirPath: dir})
	_, err := deps.handleDirectoryScan(context.Background(), job, noProgress)
	require.NoError(t, err)
	_, err = deps.handleDirectoryScan(context.Background(), job, noProgress)
	require.NoError(t, err)

	var movieCount, posterCount int64
	deps.DB.Model(&database.Movie{}).Count(&movieCount)
	deps.DB.Model(&database.CacheImageFile{}).Where("slot = ?", database.SlotPoster).Count(&posterCount)
	assert.EqualValues(t, 1, movieCount)
	assert.EqualValues(t, 1, posterCount)
}

func TestDirectoryScanAmbiguousVideosNeedReview(t *testing.T) {
	deps := newTestDeps(t)
	root := t.TempDir()
	dir := filepath.Join(root, "Double Feature")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cd1.mkv"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cd2.mkv"), []byte("b"), 0o644))

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	job := scanJob(t, jobmodule.DirectoryScanPayload{LibraryID: library.ID, DirPath: dir})
	raw, err := deps.handleDirectoryScan(context.Background(), job, noProgress)
	require.NoError(t, err)

	result := raw.(*scanResult)
	assert.Equal(t, string(scanner.ManualRequired), result.Status)
	assert.Zero(t, result.MovieID)

	var movieCount int64
	deps.DB.Model(&database.Movie{}).Count(&movieCount)
	assert.Zero(t, movieCount)
}

func TestDirectoryScanHintResolvesAmbiguity(t *testing.T) {
	deps := newTestDeps(t)
	root := t.TempDir()
	dir := filepath.Join(root, "Double Feature")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cd1.mkv"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cd2.mkv"), []byte("b"), 0o644))

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	job := scanJob(t, jobmodule.DirectoryScanPayload{
		LibraryID: library.ID, DirPath: dir, Hint: "cd2.mkv", TmdbID: 949,
	})
	raw, err := deps.handleDirectoryScan(context.Background(), job, noProgress)
	require.NoError(t, err)

	result := raw.(*scanResult)
	require.NotZero(t, result.MovieID)

	var movie database.Movie
	require.NoError(t, deps.DB.First(&movie, result.MovieID).Error)
	assert.Equal(t, "cd2.mkv", movie.FileName)
}

func TestWebhookEnqueuesScanForCoveringLibrary(t *testing.T) {
	deps := newTestDeps(t)
	root := t.TempDir()
	dir := filepath.Join(root, "Heat (1995)")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, deps.DB.Create(&library).Error)

	body := `{"eventType":"Download","movie":{"tmdbId":949,"folderPath":"` + dir + `"},"movieFile":{"relativePath":"Heat (1995).mkv"}}`
	event := database.WebhookEvent{Source: "radarr", EventType: "Download", Payload: body}
	require.NoError(t, deps.DB.Create(&event).Error)

	payload, err := json.Marshal(jobmodule.WebhookPayload{WebhookEventID: event.ID})
	require.NoError(t, err)
	job := &database.Job{Type: jobmodule.TypeWebhookReceived, Payload: string(payload)}

	_, err = deps.handleWebhook(context.Background(), job, noProgress)
	require.NoError(t, err)

	jobs, err := deps.Queue.List(database.JobPending, jobmodule.TypeDirectoryScan, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	var scanPayload jobmodule.DirectoryScanPayload
	require.NoError(t, json.Unmarshal([]byte(jobs[0].Payload), &scanPayload))
	assert.Equal(t, dir, scanPayload.DirPath)
	assert.Equal(t, 949, scanPayload.TmdbID)
	assert.Equal(t, "Heat (1995).mkv", scanPayload.Hint)

	var reloaded database.WebhookEvent
	require.NoError(t, deps.DB.First(&reloaded, event.ID).Error)
	assert.True(t, reloaded.Processed)
}
