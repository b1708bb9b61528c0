package scannermodule

import (
	"path"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	"github.com/curatarr/curatarr/internal/logger"
)

// defaultIgnorePatterns are seeded on first start. Users can add and remove
// rows afterwards; the seed never re-adds a deleted default.
var defaultIgnorePatterns = []database.IgnorePattern{
	{Pattern: ".DS_Store"},
	{Pattern: "Thumbs.db"},
	{Pattern: "desktop.ini"},
	{Pattern: "@eaDir"},
	{Pattern: "*.tmp", Glob: true},
	{Pattern: "*.!ut", Glob: true},
	{Pattern: "*.crdownload", Glob: true},
	{Pattern: "*.part", Glob: true},
	{Pattern: "*.sample.*", Glob: true},
	{Pattern: "*-sample.*", Glob: true},
	{Pattern: "*.proof.*", Glob: true},
	{Pattern: "*-proof.*", Glob: true},
	{Pattern: "RARBG*", Glob: true},
	{Pattern: "*ETRG*", Glob: true},
	{Pattern: "*.torrent", Glob: true},
	{Pattern: "*.nzb", Glob: true},
}

// IgnoreMatcher answers whether a file or directory name should be excluded
// from scanning. Exact patterns use a set lookup; glob patterns are matched
// case-insensitively against the bare name.
type IgnoreMatcher struct {
	mu    sync.RWMutex
	exact map[string]struct{}
	globs []string
}

// NewIgnoreMatcher loads patterns from the database. Call Reload after
// pattern rows change.
func NewIgnoreMatcher(db *gorm.DB) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	if err := m.reload(db); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IgnoreMatcher) reload(db *gorm.DB) error {
	var rows []database.IgnorePattern
	if err := db.Find(&rows).Error; err != nil {
		return err
	}

	exact := make(map[string]struct{}, len(rows))
	var globs []string
	for _, row := range rows {
		if row.Glob {
			globs = append(globs, strings.ToLower(row.Pattern))
		} else {
			exact[strings.ToLower(row.Pattern)] = struct{}{}
		}
	}

	m.mu.Lock()
	m.exact = exact
	m.globs = globs
	m.mu.Unlock()
	return nil
}

// Reload re-reads the pattern rows.
func (m *IgnoreMatcher) Reload(db *gorm.DB) error { return m.reload(db) }

// Match reports whether the bare file or directory name hits any pattern.
func (m *IgnoreMatcher) Match(name string) bool {
	lower := strings.ToLower(name)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.exact[lower]; ok {
		return true
	}
	for _, glob := range m.globs {
		if ok, err := path.Match(glob, lower); err == nil && ok {
			return true
		}
	}
	return false
}

// SeedIgnorePatterns inserts the default patterns that are not already
// present, tracked by a settings flag so user deletions stick.
func SeedIgnorePatterns(db *gorm.DB, settings *database.Settings) error {
	if settings.GetBool(database.SettingIgnoreSeeded) {
		return nil
	}
	for _, pattern := range defaultIgnorePatterns {
		row := pattern
		if err := db.Where("pattern = ?", row.Pattern).FirstOrCreate(&row).Error; err != nil {
			return err
		}
	}
	logger.Info("Seeded default ignore patterns", "count", len(defaultIgnorePatterns))
	return settings.Set(database.SettingIgnoreSeeded, "true")
}
