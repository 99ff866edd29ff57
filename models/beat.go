package models

import "time"

// Beat is a purchasable catalog item. Rows are created and maintained by an
// administrative process; this service only reads them. Price is in the
// smallest currency unit, and a price of zero marks a beat as free.
type Beat struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(128)"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	Genre     string    `json:"genre" gorm:"type:varchar(100)"`
	Price     int       `json:"price" gorm:"not null;check:price >= 0"`
	AudioURL  string    `json:"audio_url" gorm:"type:varchar(1024);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Beat) TableName() string { return "beats" }

// IsFree reports whether the beat follows the free-fulfillment path.
func (b *Beat) IsFree() bool { return b.Price == 0 }
