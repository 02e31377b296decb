package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/middleware"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/respond"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/monitor"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

type createConfigRequest struct {
	ScriptID   string `json:"script_id"`
	WebhookURL string `json:"webhook_url"`
}

// ListConfigsHandler returns the caller's active monitor configs.
func ListConfigsHandler(database *gorm.DB, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		configs, err := db.ListActiveConfigs(database.WithContext(r.Context()), user.ID)
		if err != nil {
			logging.FromContext(r.Context(), logger).Error("failed to list configs", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		respond.JSON(w, http.StatusOK, map[string]interface{}{"configs": configs})
	}
}

// CreateConfigHandler registers a script/webhook pair for the caller.
func CreateConfigHandler(database *gorm.DB, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())

		var req createConfigRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			respond.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req.ScriptID = strings.TrimSpace(req.ScriptID)
		req.WebhookURL = strings.TrimSpace(req.WebhookURL)

		if req.ScriptID == "" || req.WebhookURL == "" {
			respond.Error(w, http.StatusBadRequest, "Missing required fields: script_id, webhook_url")
			return
		}
		if !validWebhookURL(req.WebhookURL) {
			respond.Error(w, http.StatusBadRequest, "Invalid webhook_url")
			return
		}

		cfg := models.MonitorConfig{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			ScriptID:   req.ScriptID,
			WebhookURL: req.WebhookURL,
			IsActive:   true,
		}
		if err := db.CreateConfig(database.WithContext(r.Context()), &cfg); err != nil {
			logging.FromContext(r.Context(), logger).Error("failed to create config", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"config_id": cfg.ID,
		})
	}
}

// TestConfigHandler runs one monitoring cycle for a config right away.
// The outcome is recorded as a log row, not in the response.
func TestConfigHandler(database *gorm.DB, checker monitor.Checker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		log := logging.FromContext(r.Context(), logger)

		cfg, err := db.FindRunnableConfig(database.WithContext(r.Context()), chi.URLParam(r, "id"), user.ID)
		if errors.Is(err, db.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Config not found")
			return
		}
		if err != nil {
			log.Error("failed to load config", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Failed to execute test")
			return
		}

		if res := checker.Check(r.Context(), *cfg); res.Err != nil {
			log.Error("test run failed", zap.String("config_id", cfg.ID), zap.Error(res.Err))
			respond.Error(w, http.StatusInternalServerError, "Failed to execute test")
			return
		}
		respond.JSON(w, http.StatusOK, map[string]string{"message": "Test completed"})
	}
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
