package models

import (
	"time"
)

// Settings is the singleton row holding channel-wide state that must survive restarts.
// Epoch is recorded so that a changed epoch in configuration can be detected.
type Settings struct {
	ID          int       `json:"id" gorm:"type:integer;primaryKey;default:1;column:id"`
	ChannelName string    `json:"channel_name" gorm:"type:text;not null;column:channel_name" validate:"required"`
	Epoch       time.Time `json:"epoch" gorm:"type:datetime;not null;column:epoch" validate:"required"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// TableName pins the table name used by the migrations
func (Settings) TableName() string {
	return "channel_settings"
}

// NewSettings returns the settings row for a freshly bootstrapped channel
func NewSettings(channelName string, epoch time.Time) *Settings {
	return &Settings{
		ID:          1,
		ChannelName: channelName,
		Epoch:       epoch.UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}
