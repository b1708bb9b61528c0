package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, MigrateCore(db))
	return db
}

func seedMovie(t *testing.T, db *gorm.DB, title string) *Movie {
	t.Helper()
	library := Library{Name: "Movies-" + title, RootPath: t.TempDir(), Kind: LibraryKindMovie, Enabled: true}
	require.NoError(t, db.Create(&library).Error)

	movie := Movie{
		LibraryID: library.ID,
		FilePath:  "/movies/" + title + "/" + title + ".mkv",
		FileName:  title + ".mkv",
		Title:     title,
	}
	require.NoError(t, db.Create(&movie).Error)
	return &movie
}

func TestSoftDeleteHidesMovieAndRestoreReveals(t *testing.T) {
	db := openTestDB(t)
	repo := NewMovieRepository(db)
	movie := seedMovie(t, db, "Alien")

	require.NoError(t, repo.SoftDelete(movie.ID, 30))

	_, err := repo.Get(movie.ID)
	require.Error(t, err)

	// The row itself survives, with a future deleted_at.
	hidden, err := repo.GetAny(movie.ID)
	require.NoError(t, err)
	require.NotNil(t, hidden.DeletedAt)
	assert.True(t, hidden.DeletedAt.After(time.Now()))

	require.NoError(t, repo.Restore(movie.ID))
	restored, err := repo.Get(movie.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
}

func TestRestoreRejectsExpiredMovie(t *testing.T) {
	db := openTestDB(t)
	repo := NewMovieRepository(db)
	movie := seedMovie(t, db, "Aliens")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&Movie{}).Where("id = ?", movie.ID).Update("deleted_at", past).Error)

	require.Error(t, repo.Restore(movie.ID))

	expired, err := repo.ExpiredSoftDeleted()
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, movie.ID, expired[0].ID)
}

func TestHardDeleteCascadesThroughCacheToLibraryRows(t *testing.T) {
	db := openTestDB(t)
	repo := NewMovieRepository(db)
	movie := seedMovie(t, db, "Heat")

	cacheRow := CacheImageFile{
		CacheFileCommon: CacheFileCommon{
			EntityType:  EntityMovie,
			EntityID:    movie.ID,
			Slot:        SlotPoster,
			FilePath:    "/cache/images/ab/cd/abcd.jpg",
			ContentHash: "abcd",
			Source:      SourceLocal,
		},
	}
	require.NoError(t, db.Create(&cacheRow).Error)
	require.NoError(t, db.Create(&LibraryImageFile{
		LibraryFileCommon: LibraryFileCommon{
			CacheFileID: cacheRow.ID,
			FilePath:    "/movies/Heat/Heat-poster.jpg",
			PublishedAt: time.Now(),
		},
	}).Error)

	require.NoError(t, repo.HardDelete(movie.ID))

	var cacheCount, libCount int64
	require.NoError(t, db.Model(&CacheImageFile{}).Count(&cacheCount).Error)
	require.NoError(t, db.Model(&LibraryImageFile{}).Count(&libCount).Error)
	assert.Zero(t, cacheCount, "cascade trigger should remove the cache row")
	assert.Zero(t, libCount, "FK cascade should remove the library row")
}

func TestLibraryDeleteCascadesToMovies(t *testing.T) {
	db := openTestDB(t)
	movie := seedMovie(t, db, "Ronin")

	require.NoError(t, db.Delete(&Library{}, movie.LibraryID).Error)

	var count int64
	require.NoError(t, db.Model(&Movie{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyUserPatchSetsLocks(t *testing.T) {
	db := openTestDB(t)
	movie := seedMovie(t, db, "Collateral")

	title := "Collateral (Director's Edit)"
	plot := "A cab driver's longest night."
	require.NoError(t, ApplyUserPatch(db, movie.ID, &MoviePatch{Title: &title, Plot: &plot}))

	var updated Movie
	require.NoError(t, db.First(&updated, movie.ID).Error)
	assert.Equal(t, title, updated.Title)
	assert.True(t, updated.TitleLocked)
	assert.True(t, updated.PlotLocked)
	assert.False(t, updated.YearLocked)
}

func TestApplyAutomationPatchSkipsLockedColumns(t *testing.T) {
	db := openTestDB(t)
	movie := seedMovie(t, db, "Thief")

	userTitle := "Thief"
	require.NoError(t, ApplyUserPatch(db, movie.ID, &MoviePatch{Title: &userTitle}))
	require.NoError(t, db.First(movie, movie.ID).Error)

	providerTitle := "Thief (1981)"
	year := 1981
	written, err := ApplyAutomationPatch(db, movie, &MoviePatch{Title: &providerTitle, Year: &year}, false)
	require.NoError(t, err)
	assert.NotContains(t, written, "title")
	assert.Contains(t, written, "year")

	var updated Movie
	require.NoError(t, db.First(&updated, movie.ID).Error)
	assert.Equal(t, userTitle, updated.Title)
	assert.Equal(t, 1981, updated.Year)
}

func TestApplyAutomationPatchForceOverridesLocks(t *testing.T) {
	db := openTestDB(t)
	movie := seedMovie(t, db, "Manhunter")

	userTitle := "Manhunter"
	require.NoError(t, ApplyUserPatch(db, movie.ID, &MoviePatch{Title: &userTitle}))
	require.NoError(t, db.First(movie, movie.ID).Error)

	providerTitle := "Manhunter (Red Dragon)"
	written, err := ApplyAutomationPatch(db, movie, &MoviePatch{Title: &providerTitle}, true)
	require.NoError(t, err)
	assert.Contains(t, written, "title")

	var updated Movie
	require.NoError(t, db.First(&updated, movie.ID).Error)
	assert.Equal(t, providerTitle, updated.Title)
}

func TestPurgeOrphansRemovesUnreferencedCredits(t *testing.T) {
	db := openTestDB(t)
	movie := seedMovie(t, db, "Blackhat")

	kept := Actor{Name: "Kept Actor"}
	orphan := Actor{Name: "Orphan Actor"}
	require.NoError(t, db.Create(&kept).Error)
	require.NoError(t, db.Create(&orphan).Error)
	require.NoError(t, db.Create(&MovieActor{MovieID: movie.ID, ActorID: kept.ID}).Error)

	genre := Genre{Name: "Orphan Genre"}
	require.NoError(t, db.Create(&genre).Error)

	require.NoError(t, PurgeOrphans(db))

	var actors []Actor
	require.NoError(t, db.Find(&actors).Error)
	require.Len(t, actors, 1)
	assert.Equal(t, "Kept Actor", actors[0].Name)

	var genreCount int64
	require.NoError(t, db.Model(&Genre{}).Count(&genreCount).Error)
	assert.Zero(t, genreCount)
}

func TestSettingsSeedAndTypedReads(t *testing.T) {
	db := openTestDB(t)
	settings := NewSettings(db)
	require.NoError(t, settings.SeedDefaults())

	assert.Equal(t, 30, settings.GetInt(SettingRetentionDays))
	assert.False(t, settings.GetBool(SettingUnknownAutoRecycle))
	assert.True(t, settings.GetBool(SettingAutoSelectAssets))

	require.NoError(t, settings.Set(SettingRetentionDays, "7"))
	assert.Equal(t, 7, settings.GetInt(SettingRetentionDays))

	// Re-seeding never clobbers a user value.
	require.NoError(t, settings.SeedDefaults())
	assert.Equal(t, 7, settings.GetInt(SettingRetentionDays))
}
