package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/fieldlock"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
)

func (s *Server) registerMovieRoutes(api *gin.RouterGroup) {
	group := api.Group("/movies")
	group.GET("", s.listMovies)
	group.GET("/:id", s.getMovie)
	group.PATCH("/:id", s.patchMovie)
	group.DELETE("/:id", s.deleteMovie)
	group.POST("/:id/restore", s.restoreMovie)
	group.POST("/:id/lock-slot", s.lockSlot)
	group.POST("/:id/reset-to-provider", s.resetToProvider)
	group.POST("/:id/enrich", s.enrichMovie)
	group.POST("/:id/publish", s.publishMovie)
}

func (s *Server) movies() *database.MovieRepository {
	return database.NewMovieRepository(s.db)
}

func (s *Server) listMovies(c *gin.Context) {
	libraryID, _ := strconv.ParseUint(c.Query("library_id"), 10, 64)
	if libraryID == 0 {
		apperrors.ToGinResponse(c, apperrors.Validation("library_id is required", "library_id"))
		return
	}
	movies, err := s.movies().ListByLibrary(uint(libraryID))
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movies": movies, "count": len(movies)})
}

func (s *Server) getMovie(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, movie)
}

// moviePatchRequest is the JSON shape of a metadata edit. Nil means leave
// untouched, matching MoviePatch.
type moviePatchRequest struct {
	Title              *string  `json:"title"`
	OriginalTitle      *string  `json:"original_title"`
	SortTitle          *string  `json:"sort_title"`
	Tagline            *string  `json:"tagline"`
	Plot               *string  `json:"plot"`
	Outline            *string  `json:"outline"`
	Year               *int     `json:"year"`
	RuntimeMin         *int     `json:"runtime_min"`
	ContentRating      *string  `json:"content_rating"`
	UserRating         *float64 `json:"user_rating"`
	Monitored          *bool    `json:"monitored"`
	TmdbID             *int     `json:"tmdb_id"`
	ImdbID             *string  `json:"imdb_id"`
	EnrichmentPriority *int     `json:"enrichment_priority"`
}

// patchMovie applies a user edit. Every written metadata field gets locked
// against later automated overwrites.
func (s *Server) patchMovie(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}

	var req moviePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}

	patch := &database.MoviePatch{
		Title:              req.Title,
		OriginalTitle:      req.OriginalTitle,
		SortTitle:          req.SortTitle,
		Tagline:            req.Tagline,
		Plot:               req.Plot,
		Outline:            req.Outline,
		Year:               req.Year,
		RuntimeMin:         req.RuntimeMin,
		ContentRating:      req.ContentRating,
		UserRating:         req.UserRating,
		Monitored:          req.Monitored,
		TmdbID:             req.TmdbID,
		ImdbID:             req.ImdbID,
		EnrichmentPriority: req.EnrichmentPriority,
	}
	if err := database.ApplyUserPatch(s.db, movie.ID, patch); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}

	updated, err := s.movies().Get(movie.ID)
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.MoviesChanged("api", movie.ID))
	}
	c.JSON(http.StatusOK, updated)
}

// deleteMovie moves the movie to the recycle bin. Nothing on disk changes
// until the retention window elapses.
func (s *Server) deleteMovie(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}
	retention := s.settings.GetInt(database.SettingRetentionDays)
	if err := s.movies().SoftDelete(movie.ID, retention); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.MoviesChanged("api", movie.ID))
	}
	c.JSON(http.StatusOK, gin.H{"recycled": movie.ID, "retention_days": retention})
}

func (s *Server) restoreMovie(c *gin.Context) {
	id, ok := s.movieIDFromParam(c)
	if !ok {
		return
	}
	if err := s.movies().Restore(id); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.MoviesChanged("api", id))
	}
	c.JSON(http.StatusOK, gin.H{"restored": id})
}

func (s *Server) lockSlot(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}

	var req struct {
		Slot   string `json:"slot" binding:"required"`
		Locked *bool  `json:"locked" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}

	column, err := fieldlock.SetSlotLock(movie, database.Slot(req.Slot), *req.Locked)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "slot"))
		return
	}
	if err := s.db.Model(movie).Update(column, *req.Locked).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": req.Slot, "locked": *req.Locked})
}

// resetToProvider clears every lock and re-enqueues enrichment with force so
// provider data overwrites the previously locked fields.
func (s *Server) resetToProvider(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}
	if err := s.db.Model(movie).Updates(fieldlock.ResetColumns()).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	jobID, err := s.queue.Enqueue(jobmodule.TypeEnrichMetadata,
		jobmodule.EnrichPayload{MovieID: movie.ID, Force: true},
		jobmodule.EnqueueOptions{Priority: 3, Manual: true})
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"movie_id": movie.ID, "enrich_job_id": jobID})
}

func (s *Server) enrichMovie(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	jobID, err := s.queue.Enqueue(jobmodule.TypeEnrichMetadata,
		jobmodule.EnrichPayload{MovieID: movie.ID, Force: force},
		jobmodule.EnqueueOptions{Priority: 3, Manual: true})
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) publishMovie(c *gin.Context) {
	movie, ok := s.movieFromParam(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	jobID, err := s.queue.Enqueue(jobmodule.TypePublish,
		jobmodule.PublishPayload{MovieID: movie.ID, Force: force},
		jobmodule.EnqueueOptions{Priority: 4, Manual: true})
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) movieIDFromParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid movie id", "id"))
		return 0, false
	}
	return uint(id), true
}

func (s *Server) movieFromParam(c *gin.Context) (*database.Movie, bool) {
	id, ok := s.movieIDFromParam(c)
	if !ok {
		return nil, false
	}
	movie, err := s.movies().Get(id)
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return nil, false
	}
	return movie, true
}
