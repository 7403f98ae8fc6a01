package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the per-student entitlement record, keyed by the stable Telegram
// identity. The active plan and the lifetime trial pool live inline so a
// single row read answers every entitlement question.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TelegramID string    `gorm:"size:64;not null;uniqueIndex" json:"telegram_id"`
	FirstName  string    `gorm:"size:255" json:"first_name"`
	Username   string    `gorm:"size:255" json:"username"`

	// Active plan snapshot. Empty PlanCode means no plan was ever bought;
	// whether a stored plan is still active is the tier resolver's call.
	PlanCode           string     `gorm:"size:50" json:"plan_code"`
	PlanLabel          string     `gorm:"size:100" json:"plan_label"`
	PlanAmount         int        `json:"plan_amount"`
	PlanHoursPerDay    int        `json:"plan_hours_per_day"`
	PlanSubjectsPerDay int        `json:"plan_subjects_per_day"`
	PlanActivatedAt    *time.Time `json:"plan_activated_at"`
	PlanExpiresAt      *time.Time `json:"plan_expires_at"`

	// Lifetime free-session pool. Never negative; only the conditional
	// decrement in the store may reduce it.
	TrialSessionsRemaining int        `gorm:"not null;default:0" json:"trial_sessions_remaining"`
	TrialStartedAt         *time.Time `json:"trial_started_at"`
	TrialClaimed           bool       `gorm:"not null;default:false" json:"trial_claimed"`

	AutoCreatedFromPayment bool `gorm:"not null;default:false" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
