package enrichmentmodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
)

// Module exposes the provider-asset catalog over HTTP and owns the
// enrichment tables.
type Module struct {
	enricher *Enricher
}

// NewModule creates the enrichment module.
func NewModule(enricher *Enricher) *Module {
	return &Module{enricher: enricher}
}

// Register adds the module to the global registry.
func Register(enricher *Enricher) *Module {
	m := NewModule(enricher)
	modulemanager.Register(m)
	return m
}

func (m *Module) ID() string   { return "system.enrichment" }
func (m *Module) Name() string { return "Provider Enrichment" }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&database.ProviderAsset{}, &database.ProviderConfig{})
}

func (m *Module) Init() error { return nil }

// Enricher returns the orchestrator for job handlers.
func (m *Module) Enricher() *Enricher { return m.enricher }

// RegisterRoutes exposes the asset catalog and manual selection.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/assets")
	group.GET("", m.listAssets)
	group.POST("/:id/select", m.selectAsset)
	group.POST("/:id/reject", m.rejectAsset)
}

func (m *Module) listAssets(c *gin.Context) {
	entityType := database.EntityType(c.Query("entity_type"))
	entityID, _ := strconv.ParseUint(c.Query("entity_id"), 10, 64)
	slot := database.Slot(c.Query("slot"))

	if entityType == "" || entityID == 0 {
		apperrors.ToGinResponse(c, apperrors.Validation("entity_type and entity_id are required", "entity_id"))
		return
	}

	rows, err := m.enricher.Catalog().List(entityType, uint(entityID), slot)
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": rows, "count": len(rows)})
}

func (m *Module) selectAsset(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid asset id", "id"))
		return
	}
	if err := m.enricher.Catalog().MarkSelected(uint(id)); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": id})
}

func (m *Module) rejectAsset(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid asset id", "id"))
		return
	}
	if err := m.enricher.Catalog().MarkRejected(uint(id)); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": id})
}
