package models

import "time"

// Delivery outcomes recorded on MonitorLog.DeliveryStatus.
const (
	DeliveryDelivered    = "delivered"
	DeliveryFailed       = "failed"
	DeliveryNotAttempted = "not_attempted"
)

// MonitorConfig links a user's Apps Script to a webhook target.
// Rows are soft-disabled through IsActive, never deleted.
type MonitorConfig struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"index;not null" json:"user_id"`
	ScriptID   string    `gorm:"not null" json:"script_id"`
	WebhookURL string    `gorm:"type:text;not null" json:"webhook_url"`
	IsActive   bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	User       *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// MonitorLog is the append-only record of one runner execution.
type MonitorLog struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	ConfigID         string         `gorm:"index;not null" json:"config_id"`
	ErrorCount       int            `json:"error_count"`
	NotificationSent bool           `json:"notification_sent"`
	DeliveryStatus   string         `gorm:"default:not_attempted" json:"delivery_status"`
	ErrorDetails     string         `gorm:"type:text" json:"error_details"`
	CheckTime        time.Time      `gorm:"index" json:"check_time"`
	Config           *MonitorConfig `gorm:"foreignKey:ConfigID;constraint:OnDelete:CASCADE" json:"-"`
}

// OAuthState is a pending sign-in's CSRF state value.
type OAuthState struct {
	State     string    `gorm:"primaryKey"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
