package repository

import (
	"context"

	"github.com/Lay199xxx/BangerBaby.com/models"

	"gorm.io/gorm"
)

// BeatRepository is the read-only view of the catalog. Writes happen through
// an external admin process, never through this service.
type BeatRepository interface {
	FindByID(ctx context.Context, id string) (*models.Beat, error)
	FindAll(ctx context.Context) ([]models.Beat, error)
}

type gormBeatRepo struct {
	db *gorm.DB
}

func NewGormBeatRepo(db *gorm.DB) BeatRepository {
	return &gormBeatRepo{db: db}
}

func (r *gormBeatRepo) FindByID(ctx context.Context, id string) (*models.Beat, error) {
	var beat models.Beat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&beat).Error; err != nil {
		return nil, err
	}
	return &beat, nil
}

func (r *gormBeatRepo) FindAll(ctx context.Context) ([]models.Beat, error) {
	var beats []models.Beat
	err := r.db.WithContext(ctx).Order("id ASC").Find(&beats).Error
	return beats, err
}
