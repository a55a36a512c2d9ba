package db

import (
	"context"
	"fmt"
	"time"

	"github.com/stwalsh4118/simulcast/internal/models"
)

// SettingsRepository handles database operations for settings
// Settings is a singleton table with only one row
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get retrieves the settings row, returning ErrNotFound before the channel is bootstrapped
func (r *SettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	result := r.db.WithContext(ctx).Where("id = ?", 1).First(&settings)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &settings, nil
}

// Save inserts or overwrites the singleton row
func (r *SettingsRepository) Save(ctx context.Context, settings *models.Settings) error {
	settings.ID = 1
	settings.Epoch = settings.Epoch.UTC()
	settings.UpdatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", MapGormError(err))
	}
	return nil
}
