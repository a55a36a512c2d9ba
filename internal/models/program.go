package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Program is one entry of the channel schedule
type Program struct {
	ID          string    `json:"id" gorm:"type:text;primaryKey;column:id"`
	Position    int       `json:"position" gorm:"type:integer;not null;uniqueIndex;column:position" validate:"gte=0"`
	MediaRef    string    `json:"media_ref" gorm:"type:text;not null;column:media_ref" validate:"required"`
	Title       string    `json:"title" gorm:"type:text;not null;column:title" validate:"required"`
	Description string    `json:"description" gorm:"type:text;not null;default:'';column:description"`
	Category    string    `json:"category" gorm:"type:text;not null;default:'';column:category"`
	Language    string    `json:"language" gorm:"type:text;not null;default:'';column:language"`
	Thumbnail   *string   `json:"thumbnail,omitempty" gorm:"type:text;column:thumbnail"`
	Duration    int64     `json:"duration" gorm:"type:integer;not null;column:duration" validate:"required,gt=0"` // seconds
	CreatedAt   time.Time `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
}

// NewProgram creates a new Program with a generated ID
func NewProgram(mediaRef, title string, duration int64) *Program {
	return &Program{
		ID:        uuid.NewString(),
		MediaRef:  mediaRef,
		Title:     title,
		Duration:  duration,
		CreatedAt: time.Now().UTC(),
	}
}

// DurationString returns duration in HH:MM:SS format
func (p *Program) DurationString() string {
	hours := p.Duration / 3600
	minutes := (p.Duration % 3600) / 60
	seconds := p.Duration % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
