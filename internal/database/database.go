package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/logger"
)

// Connect opens the database described by the configuration and returns the
// handle. Callers own migration; modules register their models through the
// module manager.
func Connect(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	logMode := gormlogger.Silent
	if cfg.LogQueries {
		logMode = gormlogger.Info
	}
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logMode)}

	switch cfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err = gorm.Open(sqlite.Open(cfg.DatabasePath+"?_foreign_keys=on"), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("Database connected", "type", cfg.Type)
	return db, nil
}

// MigrateCore migrates the models owned by the database package itself and
// installs triggers and partial indices that GORM cannot express.
func MigrateCore(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Library{}, &Movie{},
		&Series{}, &Season{}, &Episode{},
		&Artist{}, &Album{}, &Track{},
		&Actor{}, &MovieActor{}, &CrewMember{}, &MovieCrew{},
		&Genre{}, &MovieGenre{}, &Studio{}, &MovieStudio{},
		&CacheImageFile{}, &CacheVideoFile{}, &CacheAudioFile{}, &CacheTextFile{},
		&LibraryImageFile{}, &LibraryVideoFile{}, &LibraryAudioFile{}, &LibraryTextFile{},
		&ProviderAsset{}, &UnknownFile{},
		&Job{}, &JobDependency{},
		&AppSetting{}, &IgnorePattern{}, &ProviderConfig{},
		&MediaPlayerGroup{}, &MediaPlayer{}, &PathMapping{}, &PlaybackState{},
		&WebhookEvent{}, &ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate core models: %w", err)
	}

	if err := InstallTriggers(db); err != nil {
		return fmt.Errorf("failed to install triggers: %w", err)
	}

	if err := installPartialIndices(db); err != nil {
		return fmt.Errorf("failed to install partial indices: %w", err)
	}

	return nil
}

// Visible is a query scope filtering out soft-deleted rows. A row with a
// future deleted_at is in the recycle bin; a past deleted_at means it awaits
// hard deletion and must not surface either.
func Visible(db *gorm.DB) *gorm.DB {
	return db.Where("deleted_at IS NULL")
}

// SoftDeleteAt returns the deleted_at value for a soft delete performed now
// with the given retention window.
func SoftDeleteAt(retentionDays int) time.Time {
	return time.Now().Add(time.Duration(retentionDays) * 24 * time.Hour)
}

// installPartialIndices creates the partial indices used by job pickup. Both
// sqlite and postgres support the same WHERE syntax here.
func installPartialIndices(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_jobs_pending ON jobs (priority, created_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_retrying ON jobs (next_retry_at) WHERE status = 'retrying'`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_processing ON jobs (started_at) WHERE status = 'processing'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_movies_library_tmdb ON movies (library_id, tmdb_id) WHERE tmdb_id IS NOT NULL AND deleted_at IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_movies_library_imdb ON movies (library_id, imdb_id) WHERE imdb_id IS NOT NULL AND deleted_at IS NULL`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
