package scannermodule

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.Library{},
		&database.IgnorePattern{},
		&database.UnknownFile{},
		&database.AppSetting{},
		&database.Job{},
		&database.JobDependency{},
	))
	return db
}

func TestSeededPatternsMatch(t *testing.T) {
	db := openTestDB(t)
	settings := database.NewSettings(db)
	require.NoError(t, SeedIgnorePatterns(db, settings))

	matcher, err := NewIgnoreMatcher(db)
	require.NoError(t, err)

	for _, name := range []string{
		".DS_Store", "Thumbs.db", "desktop.ini", "@eaDir",
		"movie.tmp", "download.part", "movie.sample.mkv", "Heat-sample.mkv",
		"RARBG.txt", "release.ETRG.nfo", "source.torrent", "queue.nzb",
	} {
		assert.True(t, matcher.Match(name), "expected %q to be ignored", name)
	}
	for _, name := range []string{
		"Heat (1995).mkv", "poster.jpg", "movie.nfo", "sample-of-work.mkv",
	} {
		assert.False(t, matcher.Match(name), "expected %q to pass", name)
	}
}

func TestSeedRespectsUserDeletions(t *testing.T) {
	db := openTestDB(t)
	settings := database.NewSettings(db)
	require.NoError(t, SeedIgnorePatterns(db, settings))

	require.NoError(t, db.Where("pattern = ?", ".DS_Store").Delete(&database.IgnorePattern{}).Error)
	require.NoError(t, SeedIgnorePatterns(db, settings))

	var count int64
	db.Model(&database.IgnorePattern{}).Where("pattern = ?", ".DS_Store").Count(&count)
	assert.Zero(t, count)
}

func TestMatcherIsCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&database.IgnorePattern{Pattern: "*.TMP", Glob: true}).Error)
	require.NoError(t, db.Create(&database.IgnorePattern{Pattern: "THUMBS.DB"}).Error)

	matcher, err := NewIgnoreMatcher(db)
	require.NoError(t, err)

	assert.True(t, matcher.Match("file.tmp"))
	assert.True(t, matcher.Match("thumbs.db"))
}

func TestMatcherReload(t *testing.T) {
	db := openTestDB(t)
	matcher, err := NewIgnoreMatcher(db)
	require.NoError(t, err)
	assert.False(t, matcher.Match("junk.xyz"))

	require.NoError(t, db.Create(&database.IgnorePattern{Pattern: "*.xyz", Glob: true}).Error)
	require.NoError(t, matcher.Reload(db))
	assert.True(t, matcher.Match("junk.xyz"))
}

func TestEnqueueLibraryScanWalksMovieDirs(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Heat (1995)"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alien (1979)"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "@eaDir"), 0o755))

	library := database.Library{Name: "Movies", RootPath: root, Kind: database.LibraryKindMovie, Enabled: true}
	require.NoError(t, db.Create(&library).Error)
	require.NoError(t, db.Create(&database.IgnorePattern{Pattern: "@eaDir"}).Error)

	matcher, err := NewIgnoreMatcher(db)
	require.NoError(t, err)

	bus := events.NewEventBus(16)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	queue := jobmodule.NewQueue(db, bus)
	module := NewModule(db, queue, bus, matcher)

	enqueued, err := module.EnqueueLibraryScan(library.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, enqueued)

	jobs, err := queue.List(database.JobPending, jobmodule.TypeDirectoryScan, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	var reloaded database.Library
	require.NoError(t, db.First(&reloaded, library.ID).Error)
	assert.NotNil(t, reloaded.LastScanAt)
}

func TestEnqueueLibraryScanRejectsDisabled(t *testing.T) {
	db := openTestDB(t)
	library := database.Library{Name: "Off", RootPath: t.TempDir(), Kind: database.LibraryKindMovie, Enabled: false}
	require.NoError(t, db.Create(&library).Error)

	matcher, err := NewIgnoreMatcher(db)
	require.NoError(t, err)

	bus := events.NewEventBus(16)
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	module := NewModule(db, jobmodule.NewQueue(db, bus), bus, matcher)
	_, err = module.EnqueueLibraryScan(library.ID)
	require.Error(t, err)
}
