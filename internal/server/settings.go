package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/modules/jobmodule"
)

func (s *Server) registerSettingsRoutes(api *gin.RouterGroup) {
	group := api.Group("/settings")
	group.GET("", s.listSettings)
	group.PUT("/:key", s.setSetting)

	api.GET("/activity", s.listActivity)
}

func (s *Server) listSettings(c *gin.Context) {
	var rows []database.AppSetting
	if err := s.db.Order("key").Find(&rows).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": rows})
}

func (s *Server) setSetting(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}
	key := c.Param("key")
	if err := s.settings.Set(key, req.Value); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

func (s *Server) listActivity(c *gin.Context) {
	var entries []database.ActivityLog
	if err := s.db.Order("created_at DESC").Limit(200).Find(&entries).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

func (s *Server) registerWebhookRoutes(api *gin.RouterGroup) {
	group := api.Group("/webhooks")
	group.POST("/radarr", s.receiveWebhook("radarr"))
	group.POST("/sonarr", s.receiveWebhook("sonarr"))
	group.POST("/lidarr", s.receiveWebhook("lidarr"))
}

// receiveWebhook stores the raw body and enqueues its processing. Intake
// never parses inline so a malformed body cannot cost the ingester a retry
// storm.
func (s *Server) receiveWebhook(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			apperrors.ToGinResponse(c, apperrors.Validation("unreadable body", "body"))
			return
		}

		var envelope struct {
			EventType string `json:"eventType"`
		}
		_ = json.Unmarshal(body, &envelope)

		event := database.WebhookEvent{
			Source:     source,
			EventType:  envelope.EventType,
			Payload:    string(body),
			ReceivedAt: time.Now(),
		}
		if err := s.db.Create(&event).Error; err != nil {
			apperrors.ToGinResponse(c, err)
			return
		}

		jobID, err := s.queue.Enqueue(jobmodule.TypeWebhookReceived,
			jobmodule.WebhookPayload{WebhookEventID: event.ID},
			jobmodule.EnqueueOptions{Priority: 4})
		if err != nil {
			apperrors.ToGinResponse(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"event_id": event.ID, "job_id": jobID})
	}
}
