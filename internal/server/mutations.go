package server

import (
	"github.com/spf13/cast"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/fieldlock"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/wsmodule"
)

// handleMutation services the WebSocket mutation vocabulary. Every mutation
// is idempotent; a failed precondition surfaces as a conflict frame on the
// originating connection.
func (s *Server) handleMutation(clientID string, msg wsmodule.Message) error {
	switch msg.Type {
	case "updateMovie":
		return s.mutateMovie(msg)
	case "deleteMovie":
		return s.mutateDeleteMovie(msg)
	case "lockSlot":
		return s.mutateLockSlot(msg)
	case "startLibraryScan":
		return s.mutateStartScan(msg)
	case "cancelJob":
		return s.mutateCancelJob(msg)
	default:
		return apperrors.Validation("unsupported mutation: "+msg.Type, "type")
	}
}

func (s *Server) mutateMovie(msg wsmodule.Message) error {
	movieID := cast.ToUint(msg.Data["movie_id"])
	if movieID == 0 {
		return apperrors.Validation("movie_id is required", "movie_id")
	}
	if _, err := s.movies().Get(movieID); err != nil {
		return err
	}

	patch := &database.MoviePatch{}
	if title, ok := msg.Data["title"].(string); ok {
		patch.Title = &title
	}
	if plot, ok := msg.Data["plot"].(string); ok {
		patch.Plot = &plot
	}
	if sortTitle, ok := msg.Data["sort_title"].(string); ok {
		patch.SortTitle = &sortTitle
	}
	if rating, ok := msg.Data["user_rating"]; ok {
		value := cast.ToFloat64(rating)
		patch.UserRating = &value
	}
	if monitored, ok := msg.Data["monitored"].(bool); ok {
		patch.Monitored = &monitored
	}

	if err := database.ApplyUserPatch(s.db, movieID, patch); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.MoviesChanged("websocket", movieID))
	}
	return nil
}

func (s *Server) mutateDeleteMovie(msg wsmodule.Message) error {
	movieID := cast.ToUint(msg.Data["movie_id"])
	if movieID == 0 {
		return apperrors.Validation("movie_id is required", "movie_id")
	}
	retention := s.settings.GetInt(database.SettingRetentionDays)
	if err := s.movies().SoftDelete(movieID, retention); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.PublishAsync(events.MoviesChanged("websocket", movieID))
	}
	return nil
}

func (s *Server) mutateLockSlot(msg wsmodule.Message) error {
	movieID := cast.ToUint(msg.Data["movie_id"])
	slot, _ := msg.Data["slot"].(string)
	locked := cast.ToBool(msg.Data["locked"])

	movie, err := s.movies().Get(movieID)
	if err != nil {
		return err
	}
	column, err := fieldlock.SetSlotLock(movie, database.Slot(slot), locked)
	if err != nil {
		return apperrors.Validation(err.Error(), "slot")
	}
	return s.db.Model(movie).Update(column, locked).Error
}

func (s *Server) mutateStartScan(msg wsmodule.Message) error {
	libraryID := cast.ToUint(msg.Data["library_id"])
	if libraryID == 0 {
		return apperrors.Validation("library_id is required", "library_id")
	}
	enqueued, err := s.scanner.EnqueueLibraryScan(libraryID)
	if err != nil {
		return err
	}
	logger.Debug("Scan started over WebSocket", "library_id", libraryID, "jobs", enqueued)
	return nil
}

func (s *Server) mutateCancelJob(msg wsmodule.Message) error {
	jobID := cast.ToUint(msg.Data["job_id"])
	if jobID == 0 {
		return apperrors.Validation("job_id is required", "job_id")
	}
	return s.queue.Cancel(jobID)
}
