package database

import (
	"fmt"

	"gorm.io/gorm"
)

// cacheTables are the four typed cache tables that carry polymorphic
// (entity_type, entity_id) associations.
var cacheTables = []string{
	"cache_image_files",
	"cache_video_files",
	"cache_audio_files",
	"cache_text_files",
}

// polymorphicOwners maps owner tables to the entity_type value their rows
// appear under in cache tables.
var polymorphicOwners = map[string]EntityType{
	"movies":   EntityMovie,
	"series":   EntitySeries,
	"seasons":  EntitySeason,
	"episodes": EntityEpisode,
	"artists":  EntityArtist,
	"albums":   EntityAlbum,
	"actors":   EntityActor,
}

// InstallTriggers installs the polymorphic cascade triggers. ORM-level
// cascade cannot express "deleting a movie removes all cache rows with
// (entity_type='movie', entity_id=movie.id)", so the database does it.
// Library-file rows then cascade off their cache row through a plain FK.
func InstallTriggers(db *gorm.DB) error {
	dialect := db.Dialector.Name()

	switch dialect {
	case "sqlite":
		return installSQLiteTriggers(db)
	case "postgres":
		return installPostgresTriggers(db)
	default:
		return fmt.Errorf("unsupported dialect for triggers: %s", dialect)
	}
}

func installSQLiteTriggers(db *gorm.DB) error {
	for owner, entityType := range polymorphicOwners {
		for _, cacheTable := range cacheTables {
			name := fmt.Sprintf("trg_%s_cascade_%s", owner, cacheTable)
			stmt := fmt.Sprintf(`
				CREATE TRIGGER IF NOT EXISTS %s
				AFTER DELETE ON %s
				BEGIN
					DELETE FROM %s WHERE entity_type = '%s' AND entity_id = OLD.id;
				END`, name, owner, cacheTable, entityType)
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create trigger %s: %w", name, err)
			}
		}

		// Provider catalog and unknown files follow the same ownership.
		for _, aux := range []string{"provider_assets", "unknown_files"} {
			name := fmt.Sprintf("trg_%s_cascade_%s", owner, aux)
			stmt := fmt.Sprintf(`
				CREATE TRIGGER IF NOT EXISTS %s
				AFTER DELETE ON %s
				BEGIN
					DELETE FROM %s WHERE entity_type = '%s' AND entity_id = OLD.id;
				END`, name, owner, aux, entityType)
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create trigger %s: %w", name, err)
			}
		}
	}

	// Library delete cascades to its entities; their triggers then fire in
	// turn for the polymorphic tables.
	ownerCascades := map[string]string{
		"movies":  "library_id",
		"series":  "library_id",
		"artists": "library_id",
	}
	for table, fk := range ownerCascades {
		name := fmt.Sprintf("trg_libraries_cascade_%s", table)
		stmt := fmt.Sprintf(`
			CREATE TRIGGER IF NOT EXISTS %s
			AFTER DELETE ON libraries
			BEGIN
				DELETE FROM %s WHERE %s = OLD.id;
			END`, name, table, fk)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create trigger %s: %w", name, err)
		}
	}

	// Junction rows go with the movie.
	for _, junction := range []string{"movie_actors", "movie_crews", "movie_genres", "movie_studios"} {
		name := fmt.Sprintf("trg_movies_cascade_%s", junction)
		stmt := fmt.Sprintf(`
			CREATE TRIGGER IF NOT EXISTS %s
			AFTER DELETE ON movies
			BEGIN
				DELETE FROM %s WHERE movie_id = OLD.id;
			END`, name, junction)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create trigger %s: %w", name, err)
		}
	}

	return nil
}

func installPostgresTriggers(db *gorm.DB) error {
	fn := `
		CREATE OR REPLACE FUNCTION cascade_polymorphic_delete() RETURNS trigger AS $$
		BEGIN
			EXECUTE format(
				'DELETE FROM %I WHERE entity_type = $1 AND entity_id = $2',
				TG_ARGV[0]
			) USING TG_ARGV[1], OLD.id;
			RETURN OLD;
		END;
		$$ LANGUAGE plpgsql`
	if err := db.Exec(fn).Error; err != nil {
		return fmt.Errorf("failed to create cascade function: %w", err)
	}

	targets := append(append([]string{}, cacheTables...), "provider_assets", "unknown_files")
	for owner, entityType := range polymorphicOwners {
		for _, target := range targets {
			name := fmt.Sprintf("trg_%s_cascade_%s", owner, target)
			drop := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, name, owner)
			if err := db.Exec(drop).Error; err != nil {
				return err
			}
			stmt := fmt.Sprintf(`
				CREATE TRIGGER %s
				AFTER DELETE ON %s
				FOR EACH ROW
				EXECUTE FUNCTION cascade_polymorphic_delete('%s', '%s')`,
				name, owner, target, entityType)
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create trigger %s: %w", name, err)
			}
		}
	}

	return nil
}
