package enrichmentmodule

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/curatarr/curatarr/internal/config"
	"github.com/curatarr/curatarr/internal/database"
)

// Slot minimum widths used by the resolution bonus. Candidates below the
// classifier's slot minimum still enter the catalog but score lower.
var slotPreferredWidth = map[database.Slot]int{
	database.SlotPoster:    1000,
	database.SlotFanart:    1920,
	database.SlotBanner:    1000,
	database.SlotClearlogo: 800,
	database.SlotClearart:  1000,
	database.SlotDiscart:   1000,
	database.SlotLandscape: 1920,
	database.SlotThumb:     640,
	database.SlotKeyart:    1000,
}

// ScoreCandidate combines the provider's own vote, a resolution bonus and a
// language match into the catalog score. Higher is better.
func ScoreCandidate(c AssetCandidate, language string) float64 {
	score := c.ProviderScore * 10

	if preferred, ok := slotPreferredWidth[c.Slot]; ok && preferred > 0 {
		ratio := float64(c.Width) / float64(preferred)
		if ratio > 1 {
			ratio = 1
		}
		score += ratio * 30
	}

	switch {
	case c.Language != "" && strings.EqualFold(c.Language, language):
		score += 20
	case c.Language == "":
		// Textless art fits any locale.
		score += 10
	}

	return score
}

// Catalog manages provider_assets rows: the durable record of everything a
// provider has offered for an entity.
type Catalog struct {
	db  *gorm.DB
	cfg config.EnrichmentConfig
}

// NewCatalog creates a catalog over the database.
func NewCatalog(db *gorm.DB, cfg config.EnrichmentConfig) *Catalog {
	return &Catalog{db: db, cfg: cfg}
}

// Upsert records candidates, keyed by (entity, asset type, provider URL) so
// repeated enrichment runs stay idempotent. Scores refresh on every run; the
// per-slot count is capped to keep the catalog bounded.
func (c *Catalog) Upsert(entityType database.EntityType, entityID uint, provider string, candidates []AssetCandidate) (int, error) {
	perSlot := make(map[database.Slot]int)
	stored := 0

	for _, cand := range candidates {
		if perSlot[cand.Slot] >= c.cfg.MaxAssetsPerSlot {
			continue
		}
		perSlot[cand.Slot]++

		row := database.ProviderAsset{
			EntityType:  entityType,
			EntityID:    entityID,
			AssetType:   cand.Slot,
			Provider:    provider,
			ProviderURL: cand.URL,
			Width:       cand.Width,
			Height:      cand.Height,
			Language:    cand.Language,
			Score:       ScoreCandidate(cand, c.cfg.Language),
		}
		err := c.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "entity_type"}, {Name: "entity_id"},
				{Name: "asset_type"}, {Name: "provider_url"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"width", "height", "language", "score", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// Best returns the highest-scoring non-rejected candidate for a slot.
func (c *Catalog) Best(entityType database.EntityType, entityID uint, slot database.Slot) (*database.ProviderAsset, error) {
	var row database.ProviderAsset
	err := c.db.
		Where("entity_type = ? AND entity_id = ? AND asset_type = ? AND rejected = ?",
			entityType, entityID, slot, false).
		Order("score DESC, id ASC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns the catalog for an entity, best first. An empty slot matches
// all slots.
func (c *Catalog) List(entityType database.EntityType, entityID uint, slot database.Slot) ([]database.ProviderAsset, error) {
	tx := c.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	if slot != "" {
		tx = tx.Where("asset_type = ?", slot)
	}
	var rows []database.ProviderAsset
	err := tx.Order("asset_type, score DESC").Find(&rows).Error
	return rows, err
}

// MarkSelected flags one catalog row as the selection for its slot, clearing
// any previous selection.
func (c *Catalog) MarkSelected(assetID uint) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		var row database.ProviderAsset
		if err := tx.First(&row, assetID).Error; err != nil {
			return err
		}
		err := tx.Model(&database.ProviderAsset{}).
			Where("entity_type = ? AND entity_id = ? AND asset_type = ?",
				row.EntityType, row.EntityID, row.AssetType).
			Update("selected", false).Error
		if err != nil {
			return err
		}
		return tx.Model(&row).Updates(map[string]interface{}{
			"selected": true,
			"rejected": false,
		}).Error
	})
}

// MarkRejected excludes a catalog row from auto-selection.
func (c *Catalog) MarkRejected(assetID uint) error {
	return c.db.Model(&database.ProviderAsset{}).
		Where("id = ?", assetID).
		Updates(map[string]interface{}{"rejected": true, "selected": false}).Error
}

// MarkDownloaded records that the asset's bytes are in the cache, along with
// the analysis performed on them.
func (c *Catalog) MarkDownloaded(assetID uint, contentHash string, perceptualHash uint64) error {
	return c.db.Model(&database.ProviderAsset{}).
		Where("id = ?", assetID).
		Updates(map[string]interface{}{
			"downloaded":      true,
			"analyzed":        true,
			"content_hash":    contentHash,
			"perceptual_hash": int64(perceptualHash),
		}).Error
}
