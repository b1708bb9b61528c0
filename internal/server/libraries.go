package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/utils"
)

func (s *Server) registerLibraryRoutes(api *gin.RouterGroup) {
	group := api.Group("/libraries")
	group.GET("", s.listLibraries)
	group.POST("", s.createLibrary)
	group.GET("/:id", s.getLibrary)
	group.PATCH("/:id", s.updateLibrary)
	group.DELETE("/:id", s.deleteLibrary)
	group.POST("/:id/scan", s.scanLibrary)
	group.GET("/:id/unknown-files", s.listUnknownFiles)
}

func (s *Server) listLibraries(c *gin.Context) {
	var libraries []database.Library
	if err := s.db.Order("name").Find(&libraries).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"libraries": libraries})
}

type libraryRequest struct {
	Name        string `json:"name" binding:"required"`
	RootPath    string `json:"root_path" binding:"required"`
	Kind        string `json:"kind"`
	Enabled     *bool  `json:"enabled"`
	AutoEnrich  *bool  `json:"auto_enrich"`
	AutoPublish *bool  `json:"auto_publish"`
}

func (s *Server) createLibrary(c *gin.Context) {
	var req libraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}
	if !utils.DirExists(req.RootPath) {
		apperrors.ToGinResponse(c, apperrors.Validation("root path does not exist", "root_path"))
		return
	}

	library := database.Library{
		Name:       req.Name,
		RootPath:   req.RootPath,
		Kind:       database.LibraryKindMovie,
		Enabled:    true,
		AutoEnrich: true,
	}
	if req.Kind != "" {
		library.Kind = database.LibraryKind(req.Kind)
	}
	if req.Enabled != nil {
		library.Enabled = *req.Enabled
	}
	if req.AutoEnrich != nil {
		library.AutoEnrich = *req.AutoEnrich
	}
	if req.AutoPublish != nil {
		library.AutoPublish = *req.AutoPublish
	}

	if err := s.db.Create(&library).Error; err != nil {
		apperrors.ToGinResponse(c, apperrors.Conflict("library root already registered",
			map[string]interface{}{"root_path": req.RootPath}))
		return
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.LibraryChanged("api", library.ID))
	}
	c.JSON(http.StatusCreated, library)
}

func (s *Server) getLibrary(c *gin.Context) {
	library, ok := s.libraryFromParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, library)
}

func (s *Server) updateLibrary(c *gin.Context) {
	library, ok := s.libraryFromParam(c)
	if !ok {
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Enabled     *bool   `json:"enabled"`
		AutoEnrich  *bool   `json:"auto_enrich"`
		AutoPublish *bool   `json:"auto_publish"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.AutoEnrich != nil {
		updates["auto_enrich"] = *req.AutoEnrich
	}
	if req.AutoPublish != nil {
		updates["auto_publish"] = *req.AutoPublish
	}
	if len(updates) > 0 {
		if err := s.db.Model(library).Updates(updates).Error; err != nil {
			apperrors.ToGinResponse(c, err)
			return
		}
		if s.bus != nil {
			s.bus.PublishAsync(events.LibraryChanged("api", library.ID))
		}
	}
	c.JSON(http.StatusOK, library)
}

// deleteLibrary removes the library row; the cascade of movie rows and their
// cache entries runs through the cleanup job, not inline.
func (s *Server) deleteLibrary(c *gin.Context) {
	library, ok := s.libraryFromParam(c)
	if !ok {
		return
	}
	if err := s.db.Delete(library).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.LibraryChanged("api", library.ID))
	}
	c.JSON(http.StatusOK, gin.H{"deleted": library.ID})
}

func (s *Server) scanLibrary(c *gin.Context) {
	library, ok := s.libraryFromParam(c)
	if !ok {
		return
	}
	enqueued, err := s.scanner.EnqueueLibraryScan(library.ID)
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"library_id": library.ID, "jobs_enqueued": enqueued})
}

func (s *Server) listUnknownFiles(c *gin.Context) {
	if _, ok := s.libraryFromParam(c); !ok {
		return
	}
	var files []database.UnknownFile
	if err := s.db.Order("discovered_at DESC").Find(&files).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unknown_files": files, "count": len(files)})
}

func (s *Server) libraryFromParam(c *gin.Context) (*database.Library, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid library id", "id"))
		return nil, false
	}
	var library database.Library
	if err := s.db.First(&library, uint(id)).Error; err != nil {
		apperrors.ToGinResponse(c, apperrors.NotFound("library", c.Param("id")))
		return nil, false
	}
	return &library, true
}
