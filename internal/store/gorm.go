package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/somaprep/somaprep-backend/internal/models"
)

// Gorm is the Postgres-backed store. Correctness under concurrent taps and
// webhook redeliveries rides on conditional updates and row locks here, not
// on any in-process locking.
type Gorm struct {
	db            *gorm.DB
	trialSessions int
}

func NewGorm(db *gorm.DB, trialSessions int) *Gorm {
	return &Gorm{db: db, trialSessions: trialSessions}
}

func (s *Gorm) EnsureUser(ctx context.Context, telegramID string) error {
	user := models.User{
		ID:                     uuid.New(),
		TelegramID:             telegramID,
		TrialSessionsRemaining: s.trialSessions,
	}
	// Insert-or-touch in one statement; the conflict path is the expected
	// outcome for every call after the first.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now()}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("failed to ensure user %s: %w", telegramID, err)
	}
	return nil
}

func (s *Gorm) GetUser(ctx context.Context, telegramID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", telegramID, err)
	}
	return &user, nil
}

func (s *Gorm) UpdateProfile(ctx context.Context, telegramID, firstName, username string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{
			"first_name": firstName,
			"username":   username,
		}).Error
}

func (s *Gorm) ClaimTrial(ctx context.Context, telegramID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]interface{}{
			"trial_claimed":    true,
			"trial_started_at": gorm.Expr("COALESCE(trial_started_at, ?)", now),
		}).Error
}

func (s *Gorm) ConsumeTrialSession(ctx context.Context, telegramID string, now time.Time) (bool, int, error) {
	if err := s.EnsureUser(ctx, telegramID); err != nil {
		return false, 0, err
	}

	// Single conditional decrement. Of two racing consumers with one
	// credit left, exactly one matches the WHERE clause.
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ? AND trial_sessions_remaining > 0", telegramID).
		Updates(map[string]interface{}{
			"trial_sessions_remaining": gorm.Expr("trial_sessions_remaining - 1"),
			"trial_claimed":            true,
			"trial_started_at":         gorm.Expr("COALESCE(trial_started_at, ?)", now),
		})
	if res.Error != nil {
		return false, 0, fmt.Errorf("failed to consume trial session for %s: %w", telegramID, res.Error)
	}

	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return false, 0, err
	}
	return res.RowsAffected == 1, user.TrialSessionsRemaining, nil
}

func (s *Gorm) ActivatePlan(ctx context.Context, telegramID string, act PlanActivation, dateKey string, now time.Time) (time.Time, error) {
	var expiresAt time.Time
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		// Renewals extend unused time: the new window starts at the later
		// of now and the current expiry.
		base := now
		if user.PlanExpiresAt != nil && user.PlanExpiresAt.After(now) {
			base = *user.PlanExpiresAt
		}
		expiresAt = base.AddDate(0, 0, act.DurationDays)

		if err := tx.Model(&user).Updates(map[string]interface{}{
			"plan_code":             act.Code,
			"plan_label":            act.Label,
			"plan_amount":           act.Amount,
			"plan_hours_per_day":    act.HoursPerDay,
			"plan_subjects_per_day": act.SubjectsPerDay,
			"plan_activated_at":     now,
			"plan_expires_at":       expiresAt,
		}).Error; err != nil {
			return err
		}

		// Zero today's counters so the paid allowance applies immediately
		// instead of being throttled by leftover free-tier usage.
		return resetDay(tx, telegramID, dateKey)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to activate plan for %s: %w", telegramID, err)
	}
	return expiresAt, nil
}

func resetDay(tx *gorm.DB, telegramID, dateKey string) error {
	day := models.DailyCounter{
		ID:          uuid.New(),
		TelegramID:  telegramID,
		Date:        dateKey,
		SubjectsSet: datatypes.JSON("[]"),
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "telegram_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"minutes_used":  0,
			"subjects_used": 0,
			"markings_used": 0,
			"subjects_set":  datatypes.JSON("[]"),
			"updated_at":    time.Now(),
		}),
	}).Create(&day).Error
}

func ensureDay(tx *gorm.DB, telegramID, dateKey string) error {
	day := models.DailyCounter{
		ID:          uuid.New(),
		TelegramID:  telegramID,
		Date:        dateKey,
		SubjectsSet: datatypes.JSON("[]"),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&day).Error
}

func (s *Gorm) GetOrCreateDay(ctx context.Context, telegramID, dateKey string) (*models.DailyCounter, error) {
	// Lazy reset-on-read: the fresh day's row is inserted on first touch.
	// Concurrent first-reads on rollover race on the same unique
	// (telegram_id, date) key; one insert wins, both read the same row.
	if err := ensureDay(s.db.WithContext(ctx), telegramID, dateKey); err != nil {
		return nil, fmt.Errorf("failed to create daily counter for %s/%s: %w", telegramID, dateKey, err)
	}
	var day models.DailyCounter
	if err := s.db.WithContext(ctx).
		Where("telegram_id = ? AND date = ?", telegramID, dateKey).
		First(&day).Error; err != nil {
		return nil, fmt.Errorf("failed to load daily counter for %s/%s: %w", telegramID, dateKey, err)
	}
	return &day, nil
}

func (s *Gorm) ReserveBudget(ctx context.Context, telegramID, dateKey, subject string, minutes, minuteBudget, subjectCap int) (BudgetReservation, error) {
	var out BudgetReservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDay(tx, telegramID, dateKey); err != nil {
			return err
		}
		var day models.DailyCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_id = ? AND date = ?", telegramID, dateKey).
			First(&day).Error; err != nil {
			return err
		}

		// Minutes are checked before subjects; the decline reason order is
		// part of the user-facing contract.
		if day.MinutesUsed+minutes > minuteBudget {
			out = BudgetReservation{Reason: DeclineMinutes}
			return nil
		}
		newSubject := !day.HasSubject(subject)
		if newSubject && day.SubjectsUsed+1 > subjectCap {
			out = BudgetReservation{Reason: DeclineSubjects}
			return nil
		}

		updates := map[string]interface{}{
			"minutes_used": gorm.Expr("minutes_used + ?", minutes),
		}
		if newSubject {
			raw, err := json.Marshal(append(day.Subjects(), subject))
			if err != nil {
				return err
			}
			updates["subjects_used"] = gorm.Expr("subjects_used + 1")
			updates["subjects_set"] = datatypes.JSON(raw)
		}
		if err := tx.Model(&models.DailyCounter{}).
			Where("telegram_id = ? AND date = ?", telegramID, dateKey).
			Updates(updates).Error; err != nil {
			return err
		}
		out = BudgetReservation{OK: true}
		return nil
	})
	if err != nil {
		return BudgetReservation{}, fmt.Errorf("failed to reserve daily budget for %s: %w", telegramID, err)
	}
	return out, nil
}

func (s *Gorm) RecordSubject(ctx context.Context, telegramID, dateKey, subject string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDay(tx, telegramID, dateKey); err != nil {
			return err
		}
		var day models.DailyCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("telegram_id = ? AND date = ?", telegramID, dateKey).
			First(&day).Error; err != nil {
			return err
		}
		if day.HasSubject(subject) {
			return nil
		}
		raw, err := json.Marshal(append(day.Subjects(), subject))
		if err != nil {
			return err
		}
		return tx.Model(&models.DailyCounter{}).
			Where("telegram_id = ? AND date = ?", telegramID, dateKey).
			Updates(map[string]interface{}{
				"subjects_used": gorm.Expr("subjects_used + 1"),
				"subjects_set":  datatypes.JSON(raw),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record subject for %s: %w", telegramID, err)
	}
	return nil
}

func (s *Gorm) ReserveMarking(ctx context.Context, telegramID, dateKey string, markingCap int) (bool, error) {
	if err := ensureDay(s.db.WithContext(ctx), telegramID, dateKey); err != nil {
		return false, fmt.Errorf("failed to create daily counter for %s/%s: %w", telegramID, dateKey, err)
	}
	res := s.db.WithContext(ctx).Model(&models.DailyCounter{}).
		Where("telegram_id = ? AND date = ? AND markings_used < ?", telegramID, dateKey, markingCap).
		Update("markings_used", gorm.Expr("markings_used + 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to reserve marking for %s: %w", telegramID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) CreateIfAbsent(ctx context.Context, p *models.Payment) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record payment %s: %w", p.TransactionID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) FinalizeMatch(ctx context.Context, transactionID, planCode string, snapshot []byte) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"matched":       true,
			"plan_code":     planCode,
			"plan_snapshot": datatypes.JSON(snapshot),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize payment %s: %w", transactionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (s *Gorm) IncrementPromo(ctx context.Context, key string) (int, error) {
	ctr := models.PromoCounter{Key: key, Count: 1}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("promo_counters.count + 1"),
			"updated_at": time.Now(),
		}),
	}, clause.Returning{}).Create(&ctr).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment promo counter %s: %w", key, err)
	}
	return ctr.Count, nil
}

func (s *Gorm) ListUnmatched(ctx context.Context, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("matched = false").
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched payments: %w", err)
	}
	return payments, nil
}

func (s *Gorm) GetPayment(ctx context.Context, transactionID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", transactionID, err)
	}
	return &p, nil
}
