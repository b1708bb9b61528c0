package publishmodule

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/fieldlock"
	"github.com/curatarr/curatarr/internal/modules/cachemodule"
)

func newTestPublisher(t *testing.T) (*Publisher, *cachemodule.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&database.Movie{},
		&database.Genre{}, &database.MovieGenre{},
		&database.Studio{}, &database.MovieStudio{},
		&database.Actor{}, &database.MovieActor{},
		&database.CrewMember{}, &database.MovieCrew{},
		&database.CacheImageFile{},
		&database.CacheVideoFile{},
		&database.CacheAudioFile{},
		&database.CacheTextFile{},
		&database.LibraryImageFile{},
		&database.LibraryVideoFile{},
		&database.LibraryAudioFile{},
		&database.LibraryTextFile{},
	))

	store, err := cachemodule.NewStore(t.TempDir())
	require.NoError(t, err)
	cache := cachemodule.NewService(store, db)

	return NewPublisher(db, cache, nil), cache, db
}

func newTestMovie(t *testing.T, db *gorm.DB) *database.Movie {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "Heat (1995)")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	moviePath := filepath.Join(dir, "Heat (1995).mkv")
	require.NoError(t, os.WriteFile(moviePath, []byte("not a real mkv"), 0o644))

	tmdbID := 949
	movie := &database.Movie{
		LibraryID: 1,
		FilePath:  moviePath,
		FileName:  "Heat (1995).mkv",
		Title:     "Heat",
		Year:      1995,
		TmdbID:    &tmdbID,
	}
	require.NoError(t, db.Create(movie).Error)
	return movie
}

func ingestPoster(t *testing.T, cache *cachemodule.Service, movieID uint) *database.CacheImageFile {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 30))))
	row, err := cache.IngestImageBytes(cachemodule.IngestRequest{
		EntityType: database.EntityMovie,
		EntityID:   movieID,
		Slot:       database.SlotPoster,
		Source:     database.SourceLocal,
		Score:      85,
	}, buf.Bytes(), ".png")
	require.NoError(t, err)
	return row
}

func TestPublishMovieWritesAssetsAndNFO(t *testing.T) {
	publisher, cache, db := newTestPublisher(t)
	movie := newTestMovie(t, db)
	ingestPoster(t, cache, movie.ID)

	result, err := publisher.PublishMovie(movie, fieldlock.OriginAutomation, false)
	require.NoError(t, err)

	dir := filepath.Dir(movie.FilePath)
	posterPath := filepath.Join(dir, "Heat (1995)-poster.png")
	nfoPath := filepath.Join(dir, "Heat (1995).nfo")
	assert.Contains(t, result.Published, posterPath)
	assert.Contains(t, result.Published, nfoPath)
	assert.FileExists(t, posterPath)

	body, err := os.ReadFile(nfoPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<title>Heat</title>")
	assert.Contains(t, string(body), `<uniqueid type="tmdb" default="true">949</uniqueid>`)

	var reloaded database.Movie
	require.NoError(t, db.First(&reloaded, movie.ID).Error)
	assert.Equal(t, database.StatusPublished, reloaded.IdentificationStatus)
	assert.NotNil(t, reloaded.PublishedAt)
}

func TestPublishMovieIsIdempotent(t *testing.T) {
	publisher, cache, db := newTestPublisher(t)
	movie := newTestMovie(t, db)
	ingestPoster(t, cache, movie.ID)

	_, err := publisher.PublishMovie(movie, fieldlock.OriginAutomation, false)
	require.NoError(t, err)
	_, err = publisher.PublishMovie(movie, fieldlock.OriginAutomation, false)
	require.NoError(t, err)

	var count int64
	posterPath := filepath.Join(filepath.Dir(movie.FilePath), "Heat (1995)-poster.png")
	require.NoError(t, db.Model(&database.LibraryImageFile{}).
		Where("file_path = ?", posterPath).Count(&count).Error)
	assert.EqualValues(t, 1, count, "repeat publish must not duplicate library rows")
}

func TestPublishSkipsLockedSlotForAutomation(t *testing.T) {
	publisher, cache, db := newTestPublisher(t)
	movie := newTestMovie(t, db)
	ingestPoster(t, cache, movie.ID)

	movie.PosterLocked = true
	require.NoError(t, db.Save(movie).Error)

	result, err := publisher.PublishMovie(movie, fieldlock.OriginAutomation, false)
	require.NoError(t, err)
	assert.Contains(t, result.Skipped, string(database.SlotPoster))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(movie.FilePath), "Heat (1995)-poster.png"))

	// Force overrides the lock for an explicit user action.
	result, err = publisher.PublishMovie(movie, fieldlock.OriginAutomation, true)
	require.NoError(t, err)
	assert.NotContains(t, result.Skipped, string(database.SlotPoster))
	assert.FileExists(t, filepath.Join(filepath.Dir(movie.FilePath), "Heat (1995)-poster.png"))
}

func TestTargetPathNaming(t *testing.T) {
	l := layout{dir: "/media/Heat (1995)", base: "Heat (1995)"}

	assert.Equal(t, "/media/Heat (1995)/Heat (1995)-poster.png",
		l.targetPath(database.SlotPoster, ".png", ""))
	assert.Equal(t, "/media/Heat (1995)/Heat (1995).nfo",
		l.targetPath(database.SlotNFO, ".nfo", ""))
	assert.Equal(t, "/media/Heat (1995)/Heat (1995).en.srt",
		l.targetPath(database.SlotSubtitle, "srt", "en"))
	assert.Equal(t, "/media/Heat (1995)/theme.mp3",
		l.targetPath(database.SlotTheme, ".mp3", ""))

	disc := layout{dir: "/media/Heat (1995)", base: "Heat (1995)", disc: true}
	assert.Equal(t, "/media/Heat (1995)/movie.nfo", disc.targetPath(database.SlotNFO, ".nfo", ""))
	assert.Equal(t, "/media/Heat (1995)/poster.png", disc.targetPath(database.SlotPoster, ".png", ""))
}

func TestGenerateNFOCarriesRelatedTables(t *testing.T) {
	_, _, db := newTestPublisher(t)
	movie := newTestMovie(t, db)

	genre := database.Genre{Name: "Crime"}
	require.NoError(t, db.Create(&genre).Error)
	require.NoError(t, db.Create(&database.MovieGenre{MovieID: movie.ID, GenreID: genre.ID}).Error)

	actor := database.Actor{Name: "Al Pacino"}
	require.NoError(t, db.Create(&actor).Error)
	require.NoError(t, db.Create(&database.MovieActor{
		MovieID: movie.ID, ActorID: actor.ID, Role: "Vincent Hanna", SortOrder: 0,
	}).Error)

	body, err := GenerateNFO(db, movie)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Contains(t, text, "<genre>Crime</genre>")
	assert.Contains(t, text, "<name>Al Pacino</name>")
	assert.Contains(t, text, "<role>Vincent Hanna</role>")
}
