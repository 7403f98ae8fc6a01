package models

import "time"

// PromoCounter is a shared slot counter for capped offers (e.g. the
// first-100 founder deal). The only legal mutation is the store's atomic
// increment-and-read; the post-increment value decides slot ownership.
type PromoCounter struct {
	Key       string    `gorm:"primaryKey;size:50" json:"key"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}
