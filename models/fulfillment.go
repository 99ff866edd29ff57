package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FulfillmentPending   = "pending"
	FulfillmentDelivered = "delivered"
	FulfillmentFailed    = "failed"
)

// FulfillmentRecord is the idempotency marker for a single purchase event.
// ProviderEventID carries a unique index so that concurrent redeliveries of
// the same event race on an insert instead of an in-memory lock; exactly one
// delivery wins the insert and the rest observe the existing row.
type FulfillmentRecord struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProviderEventID string     `gorm:"uniqueIndex;type:varchar(255);not null"`
	BeatID          string     `gorm:"type:varchar(128);index;not null"`
	RecipientEmail  string     `gorm:"type:varchar(320);not null"`
	Status          string     `gorm:"type:varchar(20);not null"`
	FailureReason   *string    `gorm:"type:varchar(512)"`
	SignedURLExpiry *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (FulfillmentRecord) TableName() string { return "fulfillments" }
