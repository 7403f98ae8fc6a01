package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Payment records one inbound gateway transaction. TransactionID is the
// idempotency key: the row is inserted before any entitlement mutation and
// a conflicting insert means the webhook is a redelivery. After insert the
// row is immutable except for the match outcome written at processing time.
type Payment struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TransactionID string    `gorm:"size:64;not null;uniqueIndex" json:"transaction_id"`
	BillRef       string    `gorm:"size:64;index" json:"bill_ref"`
	Amount        int       `json:"amount"`
	Channel       string    `gorm:"size:30;default:'mpesa_c2b'" json:"channel"`

	Matched      bool           `gorm:"not null;default:false" json:"matched"`
	PlanCode     string         `gorm:"size:50" json:"plan_code"`
	PlanSnapshot datatypes.JSON `gorm:"type:jsonb" json:"plan_snapshot"`

	Msisdn    string `gorm:"size:20" json:"-"`
	FirstName string `gorm:"size:100" json:"-"`
	LastName  string `gorm:"size:100" json:"-"`

	Raw datatypes.JSON `gorm:"type:jsonb" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
