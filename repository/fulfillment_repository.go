package repository

import (
	"context"
	"time"

	"github.com/Lay199xxx/BangerBaby.com/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FulfillmentRepository interface {
	// ClaimEvent inserts a pending record for the given provider event ID,
	// or returns the existing record when the event was seen before. The
	// returned bool is true when this call won the insert.
	ClaimEvent(ctx context.Context, providerEventID, beatID, email string) (*models.FulfillmentRecord, bool, error)
	MarkDelivered(ctx context.Context, providerEventID string, signedURLExpiry time.Time) error
	MarkFailed(ctx context.Context, providerEventID, reason string) error
}

type gormFulfillmentRepo struct {
	db *gorm.DB
}

func NewGormFulfillmentRepo(db *gorm.DB) FulfillmentRepository {
	return &gormFulfillmentRepo{db: db}
}

// ClaimEvent relies on the unique index on provider_event_id: concurrent
// deliveries of the same event race on a single INSERT ... ON CONFLICT DO
// NOTHING, so exactly one caller sees created == true without any in-process
// locking.
func (r *gormFulfillmentRepo) ClaimEvent(ctx context.Context, providerEventID, beatID, email string) (*models.FulfillmentRecord, bool, error) {
	rec := models.FulfillmentRecord{
		ID:              uuid.New(),
		ProviderEventID: providerEventID,
		BeatID:          beatID,
		RecipientEmail:  email,
		Status:          models.FulfillmentPending,
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(&rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &rec, true, nil
	}

	var existing models.FulfillmentRecord
	if err := r.db.WithContext(ctx).
		Where("provider_event_id = ?", providerEventID).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *gormFulfillmentRepo) MarkDelivered(ctx context.Context, providerEventID string, signedURLExpiry time.Time) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentRecord{}).
		Where("provider_event_id = ?", providerEventID).
		Updates(map[string]interface{}{
			"status":            models.FulfillmentDelivered,
			"signed_url_expiry": &signedURLExpiry,
			"delivered_at":      &now,
			"failure_reason":    nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormFulfillmentRepo) MarkFailed(ctx context.Context, providerEventID, reason string) error {
	res := r.db.WithContext(ctx).
		Model(&models.FulfillmentRecord{}).
		Where("provider_event_id = ?", providerEventID).
		Updates(map[string]interface{}{
			"status":         models.FulfillmentFailed,
			"failure_reason": &reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
