package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/logger"
)

// MovieRepository wraps movie persistence, including recycle-bin semantics.
type MovieRepository struct {
	db *gorm.DB
}

func NewMovieRepository(db *gorm.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// DB exposes the underlying handle for transactional composition.
func (r *MovieRepository) DB() *gorm.DB {
	return r.db
}

// Get returns a visible movie by id.
func (r *MovieRepository) Get(id uint) (*Movie, error) {
	var movie Movie
	err := r.db.Scopes(Visible).First(&movie, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("movie", fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetAny returns a movie regardless of soft-delete state (used by restore
// and cleanup).
func (r *MovieRepository) GetAny(id uint) (*Movie, error) {
	var movie Movie
	err := r.db.First(&movie, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("movie", fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// FindByPath returns the visible movie whose main file lives at path.
func (r *MovieRepository) FindByPath(path string) (*Movie, error) {
	var movie Movie
	err := r.db.Scopes(Visible).First(&movie, "file_path = ?", path).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.NotFound("movie", path)
	}
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// ListByLibrary returns all visible movies of a library.
func (r *MovieRepository) ListByLibrary(libraryID uint) ([]Movie, error) {
	var movies []Movie
	err := r.db.Scopes(Visible).
		Where("library_id = ?", libraryID).
		Order("sort_title, title, file_name").
		Find(&movies).Error
	return movies, err
}

// SoftDelete moves a movie to the recycle bin: deleted_at is set to
// now + retention so the cleanup job knows when it becomes collectable. The
// on-disk layout and all cache rows stay untouched.
func (r *MovieRepository) SoftDelete(id uint, retentionDays int) error {
	res := r.db.Model(&Movie{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", SoftDeleteAt(retentionDays))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("movie", fmt.Sprint(id))
	}
	return nil
}

// Restore clears the recycle-bin marker if the retention window has not
// elapsed.
func (r *MovieRepository) Restore(id uint) error {
	res := r.db.Model(&Movie{}).
		Where("id = ? AND deleted_at IS NOT NULL AND deleted_at > ?", id, time.Now()).
		Update("deleted_at", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("movie", fmt.Sprint(id))
	}
	return nil
}

// ExpiredSoftDeleted lists movies whose retention window has elapsed.
func (r *MovieRepository) ExpiredSoftDeleted() ([]Movie, error) {
	var movies []Movie
	err := r.db.Where("deleted_at IS NOT NULL AND deleted_at <= ?", time.Now()).Find(&movies).Error
	return movies, err
}

// HardDelete removes the movie row. The polymorphic cascade triggers take
// the cache rows with it, and the library-file FKs cascade off those.
func (r *MovieRepository) HardDelete(id uint) error {
	return r.db.Delete(&Movie{}, id).Error
}

// PurgeOrphans removes actors, crew, genres and studios that no junction row
// references anymore, along with their cache thumbs.
func PurgeOrphans(db *gorm.DB) error {
	type orphanTarget struct {
		table    string
		junction string
		fk       string
	}

	targets := []orphanTarget{
		{"actors", "movie_actors", "actor_id"},
		{"crew_members", "movie_crews", "crew_member_id"},
		{"genres", "movie_genres", "genre_id"},
		{"studios", "movie_studios", "studio_id"},
	}

	for _, t := range targets {
		stmt := fmt.Sprintf(
			`DELETE FROM %s WHERE id NOT IN (SELECT DISTINCT %s FROM %s)`,
			t.table, t.fk, t.junction)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to purge orphan %s: %w", t.table, err)
		}
	}

	logger.Debug("Orphan entity purge completed")
	return nil
}

// LogActivity appends a durable activity-log entry.
func LogActivity(db *gorm.DB, category, message, details string) {
	entry := ActivityLog{Category: category, Message: message, Details: details}
	if err := db.Create(&entry).Error; err != nil {
		logger.Warn("Failed to write activity log entry: %v", err)
	}
}
