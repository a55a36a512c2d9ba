package db

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/simulcast/internal/models"
	"gorm.io/gorm"
)

// ProgramRepository handles database operations for schedule programs
type ProgramRepository struct {
	db *DB
}

// NewProgramRepository creates a new program repository
func NewProgramRepository(db *DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// List returns every program ordered by schedule position
func (r *ProgramRepository) List(ctx context.Context) ([]*models.Program, error) {
	var programs []*models.Program
	result := r.db.WithContext(ctx).Order("position ASC").Find(&programs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list programs: %w", MapGormError(result.Error))
	}
	return programs, nil
}

// GetByID retrieves a program by its ID
func (r *ProgramRepository) GetByID(ctx context.Context, id string) (*models.Program, error) {
	var program models.Program
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&program)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &program, nil
}

// Count returns the number of programs in the schedule
func (r *ProgramRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Program{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count programs: %w", MapGormError(result.Error))
	}
	return count, nil
}

// ReplaceAll swaps the stored schedule for the given programs in one transaction.
// Positions are reassigned from slice order.
func (r *ProgramRepository) ReplaceAll(ctx context.Context, programs []*models.Program) error {
	return r.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Program{}).Error; err != nil {
			return fmt.Errorf("failed to clear programs: %w", MapGormError(err))
		}

		for i, p := range programs {
			p.Position = i
			if err := tx.Create(p).Error; err != nil {
				return fmt.Errorf("failed to insert program %q: %w", p.ID, MapGormError(err))
			}
		}
		return nil
	})
}
