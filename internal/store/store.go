package store

import (
	"context"
	"errors"
	"time"

	"github.com/somaprep/somaprep-backend/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// DeclineReason is a policy outcome, not an error. Callers branch on it to
// render the right upgrade prompt.
type DeclineReason string

const (
	DeclineMinutes        DeclineReason = "minutes"
	DeclineSubjects       DeclineReason = "subjects"
	DeclineMarkings       DeclineReason = "markings"
	DeclineTrialExhausted DeclineReason = "trial_exhausted"
)

// BudgetReservation is the outcome of a daily-budget check-and-decrement.
type BudgetReservation struct {
	OK     bool
	Reason DeclineReason
}

// PlanActivation carries the plan terms being granted. It is a snapshot:
// catalog prices may change later, the grant must not.
type PlanActivation struct {
	Code           string
	Label          string
	Amount         int
	DurationDays   int
	HoursPerDay    int
	SubjectsPerDay int
}

// EntitlementStore owns the per-user record: identity, plan, trial pool.
// Every mutation is a single atomic conditional operation so concurrent
// taps, retried webhooks and multi-device sessions cannot double-spend.
type EntitlementStore interface {
	// EnsureUser creates the record if absent and touches updated_at if
	// present. A duplicate-key race is a success, never an error.
	EnsureUser(ctx context.Context, telegramID string) error

	GetUser(ctx context.Context, telegramID string) (*models.User, error)

	// UpdateProfile refreshes display fields from a login payload.
	UpdateProfile(ctx context.Context, telegramID, firstName, username string) error

	// ClaimTrial marks the trial claimed; started_at is set only once.
	ClaimTrial(ctx context.Context, telegramID string, now time.Time) error

	// ConsumeTrialSession atomically decrements the lifetime pool by one,
	// creating the record with default credits first if needed. Returns
	// ok=false (and the untouched remaining count) when the pool is empty.
	// The count never goes negative.
	ConsumeTrialSession(ctx context.Context, telegramID string, now time.Time) (ok bool, remaining int, err error)

	// ActivatePlan grants plan terms and resets the dateKey counters so the
	// paid allowance applies immediately. The new expiry is
	// max(now, current expiry) + duration: renewals extend remaining time,
	// they never swallow it. Returns the computed expiry.
	ActivatePlan(ctx context.Context, telegramID string, act PlanActivation, dateKey string, now time.Time) (time.Time, error)
}

// DailyStore owns the per-user per-day counters. Day rollover is lazy:
// reading "today" creates the fresh row; stale rows are never written to
// because every write keys on the caller-supplied dateKey.
type DailyStore interface {
	GetOrCreateDay(ctx context.Context, telegramID, dateKey string) (*models.DailyCounter, error)

	// ReserveBudget checks minutes first, then the distinct-subject cap,
	// and applies both increments atomically. Re-entering a subject already
	// in today's set costs minutes but no subject slot.
	ReserveBudget(ctx context.Context, telegramID, dateKey, subject string, minutes, minuteBudget, subjectCap int) (BudgetReservation, error)

	// RecordSubject adds the subject to today's set (bookkeeping for free
	// sessions; no minutes are charged).
	RecordSubject(ctx context.Context, telegramID, dateKey, subject string) error

	// ReserveMarking consumes one of today's marking slots, or reports
	// ok=false when the cap is reached.
	ReserveMarking(ctx context.Context, telegramID, dateKey string, markingCap int) (bool, error)
}

// PaymentStore owns the idempotency ledger for gateway transactions plus
// the shared promo slot counters.
type PaymentStore interface {
	// CreateIfAbsent inserts the payment row keyed by transaction id.
	// created=false means this transaction was already seen and the caller
	// must stop before any entitlement mutation.
	CreateIfAbsent(ctx context.Context, p *models.Payment) (created bool, err error)

	// FinalizeMatch records the match outcome and the granted plan snapshot
	// on an existing payment row.
	FinalizeMatch(ctx context.Context, transactionID, planCode string, snapshot []byte) error

	// IncrementPromo atomically increments the named counter and returns
	// the post-increment value, which alone decides slot ownership.
	IncrementPromo(ctx context.Context, key string) (int, error)

	ListUnmatched(ctx context.Context, limit int) ([]models.Payment, error)
	GetPayment(ctx context.Context, transactionID string) (*models.Payment, error)
}

// Store is the full persistence surface the services are wired against.
type Store interface {
	EntitlementStore
	DailyStore
	PaymentStore
}
