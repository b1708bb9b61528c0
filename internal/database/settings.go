package database

import (
	"github.com/spf13/cast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Recognised app_settings keys.
const (
	SettingFetchProviderAssets = "phase.enrichment.fetchProviderAssets"
	SettingAutoSelectAssets    = "phase.enrichment.autoSelectAssets"
	SettingEnrichLanguage      = "phase.enrichment.language"
	SettingPublishAssets       = "phase.publish.assets"
	SettingPublishActors       = "phase.publish.actors"
	SettingPublishTrailers     = "phase.publish.trailers"
	SettingAutoPublish         = "phase.general.autoPublish"
	SettingRetentionDays       = "recycle_bin.retention_days"
	SettingUnknownAutoRecycle  = "recycle_bin.unknown_files_auto_recycle"
	SettingIgnoreSeeded        = "scanner.ignore_patterns_seeded"
)

var settingDefaults = map[string]string{
	SettingFetchProviderAssets: "true",
	SettingAutoSelectAssets:    "true",
	SettingEnrichLanguage:      "en",
	SettingPublishAssets:       "true",
	SettingPublishActors:       "true",
	SettingPublishTrailers:     "true",
	SettingAutoPublish:         "false",
	SettingRetentionDays:       "30",
	SettingUnknownAutoRecycle:  "false",
	SettingIgnoreSeeded:        "false",
}

// Settings provides typed access to app_settings rows with seeded defaults.
type Settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

// SeedDefaults inserts any missing default settings without overwriting
// existing values.
func (s *Settings) SeedDefaults() error {
	for key, value := range settingDefaults {
		row := AppSetting{Key: key, Value: value}
		if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Settings) raw(key string) string {
	var row AppSetting
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		return settingDefaults[key]
	}
	return row.Value
}

// GetString returns the setting as a string.
func (s *Settings) GetString(key string) string {
	return s.raw(key)
}

// GetBool returns the setting as a bool.
func (s *Settings) GetBool(key string) bool {
	return cast.ToBool(s.raw(key))
}

// GetInt returns the setting as an int.
func (s *Settings) GetInt(key string) int {
	return cast.ToInt(s.raw(key))
}

// Set stores a setting value.
func (s *Settings) Set(key, value string) error {
	row := AppSetting{Key: key, Value: value}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}
