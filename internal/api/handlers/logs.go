package handlers

import (
	"net/http"
	"strconv"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/middleware"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/api/respond"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// ListLogsHandler pages through the caller's monitor logs, newest first.
func ListLogsHandler(database *gorm.DB, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		limit := queryInt(r, "limit", defaultLogLimit)
		if limit <= 0 {
			limit = defaultLogLimit
		}
		if limit > maxLogLimit {
			limit = maxLogLimit
		}
		offset := queryInt(r, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		tx := database.WithContext(r.Context())
		logs, err := db.ListLogs(tx, user.ID, limit, offset)
		if err != nil {
			logging.FromContext(r.Context(), logger).Error("failed to list logs", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		total, err := db.CountLogs(tx, user.ID)
		if err != nil {
			logging.FromContext(r.Context(), logger).Error("failed to count logs", zap.Error(err))
			respond.Error(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		respond.JSON(w, http.StatusOK, map[string]interface{}{
			"logs": logs,
			"pagination": map[string]interface{}{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
