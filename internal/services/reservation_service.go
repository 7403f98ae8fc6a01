package services

import (
	"context"
	"time"

	"github.com/somaprep/somaprep-backend/internal/clock"
	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/plan"
	"github.com/somaprep/somaprep-backend/internal/store"
)

// ReservationService is the single gate in front of content generation:
// reserve first, generate second. A reservation consumed by a later
// generation failure is a sunk cost; there is no refund path.
type ReservationService struct {
	ent     store.EntitlementStore
	daily   store.DailyStore
	catalog *plan.Catalog
	clk     *clock.Clock
}

func NewReservationService(ent store.EntitlementStore, daily store.DailyStore, catalog *plan.Catalog, clk *clock.Clock) *ReservationService {
	return &ReservationService{ent: ent, daily: daily, catalog: catalog, clk: clk}
}

// SessionReservation is the typed outcome callers branch on. Declines are
// expected outcomes, never errors.
type SessionReservation struct {
	OK      bool
	Tier    plan.Tier
	Minutes int
	Reason  store.DeclineReason
}

// ReserveSession decides whether a study session may start now and charges
// the correct ledger. The check order is a contract: free users hit the
// daily subject cap before the trial pool; paid users hit the minute
// budget before the subject cap.
func (s *ReservationService) ReserveSession(ctx context.Context, telegramID, subject string) (SessionReservation, error) {
	if err := s.ent.EnsureUser(ctx, telegramID); err != nil {
		return SessionReservation{}, err
	}
	user, err := s.ent.GetUser(ctx, telegramID)
	if err != nil {
		return SessionReservation{}, err
	}

	now := s.clk.Now()
	tier := s.catalog.ResolveTier(user.PlanCode, user.PlanExpiresAt, now)
	limits := plan.LimitsFor(tier)
	dateKey := s.clk.TodayKey()

	if tier == plan.TierFree {
		day, err := s.daily.GetOrCreateDay(ctx, telegramID, dateKey)
		if err != nil {
			return SessionReservation{}, err
		}
		if !day.HasSubject(subject) && day.SubjectsUsed+1 > limits.SubjectsPerDay {
			return SessionReservation{Tier: tier, Reason: store.DeclineSubjects}, nil
		}

		ok, _, err := s.ent.ConsumeTrialSession(ctx, telegramID, now)
		if err != nil {
			return SessionReservation{}, err
		}
		if !ok {
			return SessionReservation{Tier: tier, Reason: store.DeclineTrialExhausted}, nil
		}

		// Bookkeeping only; free sessions are never charged minutes.
		if err := s.daily.RecordSubject(ctx, telegramID, dateKey, subject); err != nil {
			return SessionReservation{}, err
		}
		return SessionReservation{OK: true, Tier: tier}, nil
	}

	minutes := plan.SessionMinutes(tier)
	res, err := s.daily.ReserveBudget(ctx, telegramID, dateKey, subject, minutes, limits.HoursPerDay*60, limits.SubjectsPerDay)
	if err != nil {
		return SessionReservation{}, err
	}
	if !res.OK {
		return SessionReservation{Tier: tier, Reason: res.Reason}, nil
	}
	return SessionReservation{OK: true, Tier: tier, Minutes: minutes}, nil
}

// MarkingReservation is the outcome of an OCR-marking slot request.
type MarkingReservation struct {
	OK     bool
	Tier   plan.Tier
	Reason store.DeclineReason
}

// ReserveMarking consumes one of today's marking slots for the user's
// current tier.
func (s *ReservationService) ReserveMarking(ctx context.Context, telegramID string) (MarkingReservation, error) {
	if err := s.ent.EnsureUser(ctx, telegramID); err != nil {
		return MarkingReservation{}, err
	}
	user, err := s.ent.GetUser(ctx, telegramID)
	if err != nil {
		return MarkingReservation{}, err
	}

	tier := s.catalog.ResolveTier(user.PlanCode, user.PlanExpiresAt, s.clk.Now())
	limits := plan.LimitsFor(tier)

	ok, err := s.daily.ReserveMarking(ctx, telegramID, s.clk.TodayKey(), limits.MarkingsPerDay)
	if err != nil {
		return MarkingReservation{}, err
	}
	if !ok {
		return MarkingReservation{Tier: tier, Reason: store.DeclineMarkings}, nil
	}
	return MarkingReservation{OK: true, Tier: tier}, nil
}

// Usage summarizes what is left today, for the dashboard and the bot's
// profile view.
func (s *ReservationService) Usage(ctx context.Context, telegramID string) (*dto.UsageResponse, error) {
	if err := s.ent.EnsureUser(ctx, telegramID); err != nil {
		return nil, err
	}
	user, err := s.ent.GetUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	day, err := s.daily.GetOrCreateDay(ctx, telegramID, s.clk.TodayKey())
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	tier := s.catalog.ResolveTier(user.PlanCode, user.PlanExpiresAt, now)
	limits := plan.LimitsFor(tier)

	out := &dto.UsageResponse{
		TelegramID:             telegramID,
		Tier:                   string(tier),
		MinutesUsedToday:       day.MinutesUsed,
		SubjectsUsedToday:      day.SubjectsUsed,
		MarkingsUsedToday:      day.MarkingsUsed,
		MarkingsLeftToday:      maxInt(0, limits.MarkingsPerDay-day.MarkingsUsed),
		TrialSessionsRemaining: user.TrialSessionsRemaining,
	}

	subjectsLeft := maxInt(0, limits.SubjectsPerDay-day.SubjectsUsed)
	if tier == plan.TierFree {
		// The lifetime pool caps what the daily allowance can promise.
		out.SubjectsLeftToday = minInt(subjectsLeft, user.TrialSessionsRemaining)
		return out, nil
	}

	out.PlanLabel = user.PlanLabel
	if user.PlanExpiresAt != nil {
		out.PlanExpiresAt = user.PlanExpiresAt.UTC().Format(time.RFC3339)
	}
	out.MinutesLeftToday = maxInt(0, limits.HoursPerDay*60-day.MinutesUsed)
	out.SubjectsLeftToday = subjectsLeft
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
