package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DailyCounter accumulates one student's usage for one calendar day
// (Nairobi time). Rows are created lazily on first touch of a day and
// never mutated once the day has passed; "reset" is simply the insert of
// the new day's row.
type DailyCounter struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TelegramID string    `gorm:"size:64;not null;uniqueIndex:idx_daily_user_date" json:"telegram_id"`
	Date       string    `gorm:"size:10;not null;uniqueIndex:idx_daily_user_date" json:"date"`

	MinutesUsed  int `gorm:"not null;default:0" json:"minutes_used"`
	SubjectsUsed int `gorm:"not null;default:0" json:"subjects_used"`
	MarkingsUsed int `gorm:"not null;default:0" json:"markings_used"`

	// Distinct subject slugs touched today. SubjectsUsed always equals the
	// cardinality of this set.
	SubjectsSet datatypes.JSON `gorm:"type:jsonb;default:'[]'" json:"subjects_set"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subjects decodes the distinct-subject set. A malformed column reads as
// empty rather than failing the quota check.
func (d *DailyCounter) Subjects() []string {
	if len(d.SubjectsSet) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(d.SubjectsSet, &out); err != nil {
		return nil
	}
	return out
}

// HasSubject reports whether the subject already counted against today.
func (d *DailyCounter) HasSubject(slug string) bool {
	for _, s := range d.Subjects() {
		if s == slug {
			return true
		}
	}
	return false
}
