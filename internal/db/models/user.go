package models

import "time"

// User is the identity anchor, keyed by the Google account id.
// The row is replaced wholesale on every successful login.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"index" json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is an opaque server-side login. Expired rows are ignored at read time.
type Session struct {
	SessionToken string    `gorm:"primaryKey" json:"-"`
	UserID       string    `gorm:"index;not null" json:"user_id"`
	Expires      time.Time `gorm:"index;not null" json:"expires"`
	User         *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
