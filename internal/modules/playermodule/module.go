package playermodule

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
	"github.com/curatarr/curatarr/internal/events"
	"github.com/curatarr/curatarr/internal/logger"
	"github.com/curatarr/curatarr/internal/modules/modulemanager"
)

// Module manages media-player nodes and their path mappings, and fans
// library-refresh notifications out to them.
type Module struct {
	db      *gorm.DB
	bus     events.EventBus
	timeout time.Duration
}

// NewModule creates the player module.
func NewModule(db *gorm.DB, bus events.EventBus, timeout time.Duration) *Module {
	return &Module{db: db, bus: bus, timeout: timeout}
}

// Register adds the module to the global registry.
func Register(db *gorm.DB, bus events.EventBus, timeout time.Duration) *Module {
	m := NewModule(db, bus, timeout)
	modulemanager.Register(m)
	return m
}

func (m *Module) ID() string   { return "system.players" }
func (m *Module) Name() string { return "Media Players" }
func (m *Module) Core() bool   { return false }

func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&database.MediaPlayerGroup{},
		&database.MediaPlayer{},
		&database.PathMapping{},
		&database.PlaybackState{},
	)
}

func (m *Module) Init() error { return nil }

// MapPath translates a server-local library path into the player's view
// using the longest matching mapping prefix.
func MapPath(mappings []database.PathMapping, localPath string) string {
	best := -1
	bestLen := 0
	for i, mapping := range mappings {
		if strings.HasPrefix(localPath, mapping.LocalPrefix) && len(mapping.LocalPrefix) > bestLen {
			best = i
			bestLen = len(mapping.LocalPrefix)
		}
	}
	if best < 0 {
		return localPath
	}
	return mappings[best].RemotePrefix + strings.TrimPrefix(localPath, mappings[best].LocalPrefix)
}

// NotifyResult reports the outcome per player.
type NotifyResult struct {
	Notified []string `json:"notified,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// NotifyAll asks every enabled player to rescan. A non-empty localDir limits
// the scan to that directory, translated per player. Unreachable players are
// reported, not fatal: the next notification catches them up.
func (m *Module) NotifyAll(ctx context.Context, localDir string) (*NotifyResult, error) {
	var players []database.MediaPlayer
	if err := m.db.Where("enabled = ?", true).Find(&players).Error; err != nil {
		return nil, err
	}

	result := &NotifyResult{}
	for i := range players {
		player := &players[i]

		directory := ""
		if localDir != "" {
			var mappings []database.PathMapping
			if err := m.db.Where("player_id = ?", player.ID).Find(&mappings).Error; err == nil {
				directory = MapPath(mappings, localDir)
			}
		}

		client := NewKodiClient(player, m.timeout)
		err := client.ScanVideoLibrary(ctx, directory)
		if err != nil {
			logger.Warn("Player notification failed", "player", player.Name, "error", err.Error())
			result.Failed = append(result.Failed, player.Name)
		} else {
			result.Notified = append(result.Notified, player.Name)
		}

		if m.bus != nil {
			state := "notified"
			if err != nil {
				state = "unreachable"
			}
			m.bus.PublishAsync(events.Event{
				Type:   events.EventPlayerStatus,
				Source: "players",
				Data:   map[string]interface{}{"player_id": player.ID, "state": state},
			})
		}
	}
	return result, nil
}

// RecordPlayback upserts a player's reported playback position.
func (m *Module) RecordPlayback(playerID uint, movieID *uint, positionSec float64, state string) error {
	var existing database.PlaybackState
	err := m.db.Where("player_id = ?", playerID).First(&existing).Error
	if err == nil {
		return m.db.Model(&existing).Updates(map[string]interface{}{
			"movie_id":     movieID,
			"position_sec": positionSec,
			"state":        state,
		}).Error
	}
	return m.db.Create(&database.PlaybackState{
		PlayerID:    playerID,
		MovieID:     movieID,
		PositionSec: positionSec,
		State:       state,
	}).Error
}

// RegisterRoutes exposes player CRUD, path mappings and manual notification.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/players")
	group.GET("", m.listPlayers)
	group.POST("", m.createPlayer)
	group.PATCH("/:id", m.updatePlayer)
	group.DELETE("/:id", m.deletePlayer)
	group.POST("/:id/ping", m.pingPlayer)
	group.POST("/notify", m.notifyPlayers)
	group.GET("/:id/mappings", m.listMappings)
	group.POST("/:id/mappings", m.createMapping)
}

func (m *Module) listPlayers(c *gin.Context) {
	var players []database.MediaPlayer
	if err := m.db.Order("name").Find(&players).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players})
}

type playerRequest struct {
	Name     string `json:"name" binding:"required"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Enabled  *bool  `json:"enabled"`
	GroupID  *uint  `json:"group_id"`
}

func (m *Module) createPlayer(c *gin.Context) {
	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}

	player := database.MediaPlayer{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		Enabled:  true,
		GroupID:  req.GroupID,
	}
	if player.Port == 0 {
		player.Port = 8080
	}
	if req.Enabled != nil {
		player.Enabled = *req.Enabled
	}
	if err := m.db.Create(&player).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, player)
}

func (m *Module) updatePlayer(c *gin.Context) {
	player, ok := m.playerFromParam(c)
	if !ok {
		return
	}

	var req playerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}

	updates := map[string]interface{}{
		"name": req.Name,
		"host": req.Host,
	}
	if req.Port > 0 {
		updates["port"] = req.Port
	}
	if req.Username != "" {
		updates["username"] = req.Username
	}
	if req.Password != "" {
		updates["password"] = req.Password
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if err := m.db.Model(player).Updates(updates).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, player)
}

func (m *Module) deletePlayer(c *gin.Context) {
	player, ok := m.playerFromParam(c)
	if !ok {
		return
	}
	if err := m.db.Select("PathMappings").Delete(player).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	m.db.Where("player_id = ?", player.ID).Delete(&database.PathMapping{})
	m.db.Where("player_id = ?", player.ID).Delete(&database.PlaybackState{})
	c.JSON(http.StatusOK, gin.H{"deleted": player.ID})
}

func (m *Module) pingPlayer(c *gin.Context) {
	player, ok := m.playerFromParam(c)
	if !ok {
		return
	}
	client := NewKodiClient(player, m.timeout)
	if err := client.Ping(c.Request.Context()); err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reachable": true})
}

func (m *Module) notifyPlayers(c *gin.Context) {
	result, err := m.NotifyAll(c.Request.Context(), c.Query("directory"))
	if err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (m *Module) listMappings(c *gin.Context) {
	player, ok := m.playerFromParam(c)
	if !ok {
		return
	}
	var mappings []database.PathMapping
	if err := m.db.Where("player_id = ?", player.ID).Find(&mappings).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}

type mappingRequest struct {
	LocalPrefix  string `json:"local_prefix" binding:"required"`
	RemotePrefix string `json:"remote_prefix" binding:"required"`
}

func (m *Module) createMapping(c *gin.Context) {
	player, ok := m.playerFromParam(c)
	if !ok {
		return
	}
	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation(err.Error(), "body"))
		return
	}
	mapping := database.PathMapping{
		PlayerID:     player.ID,
		LocalPrefix:  req.LocalPrefix,
		RemotePrefix: req.RemotePrefix,
	}
	if err := m.db.Create(&mapping).Error; err != nil {
		apperrors.ToGinResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

func (m *Module) playerFromParam(c *gin.Context) (*database.MediaPlayer, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.ToGinResponse(c, apperrors.Validation("invalid player id", "id"))
		return nil, false
	}
	var player database.MediaPlayer
	if err := m.db.First(&player, uint(id)).Error; err != nil {
		apperrors.ToGinResponse(c, apperrors.NotFound("media player", c.Param("id")))
		return nil, false
	}
	return &player, true
}
