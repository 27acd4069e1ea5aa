package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adwatch/adwatch/app/config"
	"github.com/adwatch/adwatch/app/database"
	"github.com/adwatch/adwatch/app/feed"
	"github.com/adwatch/adwatch/app/tasks"
)

//go:embed templates/edit_config.html
var editConfigPage []byte

type Handler struct {
	configStore *config.Store
	adRepo      database.AdRepository
	generator   *feed.Generator
	scheduler   tasks.SchedulerInterface
	startTime   time.Time
}

func NewHandler(configStore *config.Store, adRepo database.AdRepository,
	scheduler tasks.SchedulerInterface) *Handler {
	return &Handler{
		configStore: configStore,
		adRepo:      adRepo,
		generator:   feed.NewGenerator(),
		scheduler:   scheduler,
		startTime:   time.Now(),
	}
}

func (h *Handler) GetRSS(c *gin.Context) {
	snapshot := h.configStore.Get()

	window := time.Duration(snapshot.FeedWindowDays) * 24 * time.Hour
	ads, err := h.adRepo.GetRecentAds(window, time.Now().UTC())
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_ads", "error", err)
		c.String(http.StatusInternalServerError, "Database error")
		return
	}

	rss, err := h.generator.Run(ads, snapshot.ServerBinding)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.String(http.StatusInternalServerError, "RSS generation error")
		return
	}

	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

func (h *Handler) HealthCheck(c *gin.Context) {
	adCount, err := h.adRepo.GetAdCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_ad_count", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": "database unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "up",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"uptime_secs":   int(time.Since(h.startTime).Seconds()),
		"tracked_ads":   adCount,
		"dropped_ticks": h.scheduler.DroppedTicks(),
	})
}

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.configStore.Get())
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	// Strict decode: a typoed key must fail loudly, not silently fall
	// back to the default value.
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()

	var next config.AppConfig
	if err := decoder.Decode(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid configuration payload: " + err.Error()})
		return
	}

	if err := h.configStore.Replace(&next); err != nil {
		var validationErr *config.ValidationError
		if errors.As(err, &validationErr) {
			slog.Warn("Configuration rejected", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"detail": validationErr.Reason})
			return
		}
		slog.Error("Failed to save configuration", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to save configuration"})
		return
	}

	slog.Info("Configuration updated", "searches", len(next.Searches))
	c.JSON(http.StatusOK, gin.H{"message": "Configuration saved successfully"})
}

func (h *Handler) EditPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", editConfigPage)
}
