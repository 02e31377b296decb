package models

import "time"

// ProviderGoogle is the only OAuth provider the relay signs users in with.
const ProviderGoogle = "google"

// Account stores the OAuth grant for a user. RefreshToken is the durable
// credential the monitor runner uses to mint access tokens.
type Account struct {
	Provider          string    `gorm:"primaryKey" json:"provider"`
	ProviderAccountID string    `gorm:"primaryKey" json:"provider_account_id"`
	UserID            string    `gorm:"index;not null" json:"user_id"`
	Type              string    `json:"type"`
	AccessToken       string    `gorm:"type:text" json:"-"`
	RefreshToken      string    `gorm:"type:text" json:"-"`
	ExpiresAt         int64     `json:"expires_at"` // unix seconds
	TokenType         string    `json:"token_type"`
	Scope             string    `json:"scope"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	User              *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
