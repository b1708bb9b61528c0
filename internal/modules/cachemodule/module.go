package cachemodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
)

// Module wires the cache service into the module registry and serves asset
// bytes over HTTP.
type Module struct {
	db      *gorm.DB
	service *Service
}

// NewModule creates the cache module around an initialised service.
func NewModule(db *gorm.DB, service *Service) *Module {
	return &Module{db: db, service: service}
}

// Register adds the module to the global registry.
func Register(db *gorm.DB, service *Service) *Module {
	m := NewModule(db, service)
	modulemanager.Register(m)
	return m
}

func (m *Module) ID() string   { return "system.cache" }
func (m *Module) Name() string { return "Asset Cache" }
func (m *Module) Core() bool   { return true }

func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&database.CacheImageFile{},
		&database.CacheVideoFile{},
		&database.CacheAudioFile{},
		&database.CacheTextFile{},
		&database.LibraryImageFile{},
		&database.LibraryVideoFile{},
		&database.LibraryAudioFile{},
		&database.LibraryTextFile{},
	)
}

func (m *Module) Init() error { return nil }

// Service returns the cache service.
func (m *Module) Service() *Service { return m.service }

// RegisterRoutes exposes cache listings and raw asset bytes.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/cache")
	group.GET("/images", m.listImages)
	group.GET("/images/:id/data", m.serveImage)
	group.DELETE("/images/:id", m.deleteImage)
	group.POST("/gc", m.runGC)
}

func (m *Module) listImages(c *gin.Context) {
	entityType := database.EntityType(c.Query("entity_type"))
	entityID, _ := strconv.ParseUint(c.Query("entity_id"), 10, 64)
	slot := database.Slot(c.Query("slot"))

	if entityType == "" || entityID == 0 {
		apperrors.ToGinResponse(c, apperrors.Validation("entity_type and entity_id are required", "entity_id"))
		return
	}

	rows, err := m.service.Repo().ListImages(entityType, uint(entityID), slot)
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": rows})
}

func (m *Module) serveImage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid image id", "id"))
		return
	}

	var row database.CacheImageFile
	if err := m.db.First(&row, uint(id)).Error; err != nil {
		apperrors.ToGinResponse(c, apperrors.NotFound("cached image", c.Param("id")))
		return
	}

	if err := m.service.Repo().Touch(database.CacheKindImage, row.ID); err == nil {
		c.Header("Cache-Control", "public, max-age=86400")
	}
	c.File(row.FilePath)
}

func (m *Module) deleteImage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid image id", "id"))
		return
	}
	if err := m.service.DropAssociation(database.CacheKindImage, uint(id)); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (m *Module) runGC(c *gin.Context) {
	result, err := m.service.CollectGarbage()
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
