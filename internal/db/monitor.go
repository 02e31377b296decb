package db

import (
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"gorm.io/gorm"
)

// RunnableConfig is a monitor config joined with its owner's Google refresh token.
type RunnableConfig struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	ScriptID     string `json:"script_id"`
	WebhookURL   string `json:"webhook_url"`
	IsActive     bool   `json:"is_active"`
	RefreshToken string `json:"-"`
	Provider     string `json:"provider"`
}

// LogEntry is a monitor log row with the identifying fields of its config.
type LogEntry struct {
	ID               string    `json:"id"`
	ConfigID         string    `json:"config_id"`
	ErrorCount       int       `json:"error_count"`
	NotificationSent bool      `json:"notification_sent"`
	DeliveryStatus   string    `json:"delivery_status"`
	ErrorDetails     string    `json:"error_details"`
	CheckTime        time.Time `json:"check_time"`
	ScriptID         string    `json:"script_id"`
	WebhookURL       string    `json:"webhook_url"`
}

const runnableColumns = "mc.id, mc.user_id, mc.script_id, mc.webhook_url, mc.is_active, a.refresh_token, a.provider"

// ListActiveConfigs returns a user's active monitor configs, oldest first.
func ListActiveConfigs(db *gorm.DB, userID string) ([]models.MonitorConfig, error) {
	configs := make([]models.MonitorConfig, 0)
	err := db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").
		Find(&configs).Error
	return configs, err
}

// CreateConfig inserts a new monitor config.
func CreateConfig(db *gorm.DB, cfg *models.MonitorConfig) error {
	return db.Create(cfg).Error
}

// FindRunnableConfig loads one config owned by userID together with the
// owner's Google refresh token. Configs without a Google account are not found.
func FindRunnableConfig(db *gorm.DB, configID, userID string) (*RunnableConfig, error) {
	var rows []RunnableConfig
	err := db.Table("monitor_configs AS mc").
		Select(runnableColumns).
		Joins("JOIN accounts AS a ON a.user_id = mc.user_id").
		Where("mc.id = ? AND mc.user_id = ? AND a.provider = ?", configID, userID, models.ProviderGoogle).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListRunnableConfigs returns every active config joined with its owner's
// Google refresh token.
func ListRunnableConfigs(db *gorm.DB) ([]RunnableConfig, error) {
	rows := make([]RunnableConfig, 0)
	err := db.Table("monitor_configs AS mc").
		Select(runnableColumns).
		Joins("JOIN accounts AS a ON a.user_id = mc.user_id").
		Where("mc.is_active = ? AND a.provider = ?", true, models.ProviderGoogle).
		Order("mc.created_at ASC").
		Scan(&rows).Error
	return rows, err
}

// AppendLog writes one monitor log row.
func AppendLog(db *gorm.DB, entry *models.MonitorLog) error {
	return db.Create(entry).Error
}

// ListLogs returns a page of the user's monitor logs, newest first.
func ListLogs(db *gorm.DB, userID string, limit, offset int) ([]LogEntry, error) {
	entries := make([]LogEntry, 0)
	err := db.Table("monitor_logs AS ml").
		Select("ml.id, ml.config_id, ml.error_count, ml.notification_sent, ml.delivery_status, ml.error_details, ml.check_time, mc.script_id, mc.webhook_url").
		Joins("JOIN monitor_configs AS mc ON mc.id = ml.config_id").
		Where("mc.user_id = ?", userID).
		Order("ml.check_time DESC").
		Order("ml.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&entries).Error
	return entries, err
}

// CountLogs counts all monitor logs belonging to the user's configs.
func CountLogs(db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.Table("monitor_logs AS ml").
		Joins("JOIN monitor_configs AS mc ON mc.id = ml.config_id").
		Where("mc.user_id = ?", userID).
		Count(&total).Error
	return total, err
}
