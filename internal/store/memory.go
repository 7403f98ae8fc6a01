package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/somaprep/somaprep-backend/internal/models"
)

// Memory is an in-process Store for tests and local development. A single
// mutex stands in for the database's atomicity; the observable semantics
// match the Postgres store exactly.
type Memory struct {
	mu            sync.Mutex
	trialSessions int
	users         map[string]*models.User
	days          map[string]*models.DailyCounter
	payments      map[string]*models.Payment
	promos        map[string]int
}

func NewMemory(trialSessions int) *Memory {
	return &Memory{
		trialSessions: trialSessions,
		users:         make(map[string]*models.User),
		days:          make(map[string]*models.DailyCounter),
		payments:      make(map[string]*models.Payment),
		promos:        make(map[string]int),
	}
}

func dayKey(telegramID, dateKey string) string {
	return telegramID + "|" + dateKey
}

func (m *Memory) ensureUserLocked(telegramID string, now time.Time) *models.User {
	if u, ok := m.users[telegramID]; ok {
		u.UpdatedAt = now
		return u
	}
	u := &models.User{
		ID:                     uuid.New(),
		TelegramID:             telegramID,
		TrialSessionsRemaining: m.trialSessions,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	m.users[telegramID] = u
	return u
}

func (m *Memory) EnsureUser(_ context.Context, telegramID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureUserLocked(telegramID, time.Now())
	return nil
}

func (m *Memory) GetUser(_ context.Context, telegramID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UpdateProfile(_ context.Context, telegramID, firstName, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[telegramID]; ok {
		u.FirstName = firstName
		u.Username = username
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (m *Memory) ClaimTrial(_ context.Context, telegramID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return nil
	}
	u.TrialClaimed = true
	if u.TrialStartedAt == nil {
		t := now
		u.TrialStartedAt = &t
	}
	return nil
}

func (m *Memory) ConsumeTrialSession(_ context.Context, telegramID string, now time.Time) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensureUserLocked(telegramID, now)
	if u.TrialSessionsRemaining <= 0 {
		return false, u.TrialSessionsRemaining, nil
	}
	u.TrialSessionsRemaining--
	u.TrialClaimed = true
	if u.TrialStartedAt == nil {
		t := now
		u.TrialStartedAt = &t
	}
	return true, u.TrialSessionsRemaining, nil
}

func (m *Memory) ActivatePlan(_ context.Context, telegramID string, act PlanActivation, dateKey string, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return time.Time{}, ErrUserNotFound
	}

	base := now
	if u.PlanExpiresAt != nil && u.PlanExpiresAt.After(now) {
		base = *u.PlanExpiresAt
	}
	expiresAt := base.AddDate(0, 0, act.DurationDays)

	activated := now
	u.PlanCode = act.Code
	u.PlanLabel = act.Label
	u.PlanAmount = act.Amount
	u.PlanHoursPerDay = act.HoursPerDay
	u.PlanSubjectsPerDay = act.SubjectsPerDay
	u.PlanActivatedAt = &activated
	u.PlanExpiresAt = &expiresAt
	u.UpdatedAt = now

	day := m.ensureDayLocked(telegramID, dateKey)
	day.MinutesUsed = 0
	day.SubjectsUsed = 0
	day.MarkingsUsed = 0
	day.SubjectsSet = datatypes.JSON("[]")

	return expiresAt, nil
}

func (m *Memory) ensureDayLocked(telegramID, dateKey string) *models.DailyCounter {
	k := dayKey(telegramID, dateKey)
	if d, ok := m.days[k]; ok {
		return d
	}
	d := &models.DailyCounter{
		ID:          uuid.New(),
		TelegramID:  telegramID,
		Date:        dateKey,
		SubjectsSet: datatypes.JSON("[]"),
		CreatedAt:   time.Now(),
	}
	m.days[k] = d
	return d
}

func (m *Memory) GetOrCreateDay(_ context.Context, telegramID, dateKey string) (*models.DailyCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.ensureDayLocked(telegramID, dateKey)
	return &cp, nil
}

func (m *Memory) ReserveBudget(_ context.Context, telegramID, dateKey, subject string, minutes, minuteBudget, subjectCap int) (BudgetReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.ensureDayLocked(telegramID, dateKey)

	if day.MinutesUsed+minutes > minuteBudget {
		return BudgetReservation{Reason: DeclineMinutes}, nil
	}
	newSubject := !day.HasSubject(subject)
	if newSubject && day.SubjectsUsed+1 > subjectCap {
		return BudgetReservation{Reason: DeclineSubjects}, nil
	}

	day.MinutesUsed += minutes
	if newSubject {
		addSubjectLocked(day, subject)
	}
	day.UpdatedAt = time.Now()
	return BudgetReservation{OK: true}, nil
}

func (m *Memory) RecordSubject(_ context.Context, telegramID, dateKey, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.ensureDayLocked(telegramID, dateKey)
	if !day.HasSubject(subject) {
		addSubjectLocked(day, subject)
	}
	return nil
}

func addSubjectLocked(day *models.DailyCounter, subject string) {
	raw, err := json.Marshal(append(day.Subjects(), subject))
	if err != nil {
		return
	}
	day.SubjectsSet = datatypes.JSON(raw)
	day.SubjectsUsed++
}

func (m *Memory) ReserveMarking(_ context.Context, telegramID, dateKey string, markingCap int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.ensureDayLocked(telegramID, dateKey)
	if day.MarkingsUsed >= markingCap {
		return false, nil
	}
	day.MarkingsUsed++
	return true, nil
}

func (m *Memory) CreateIfAbsent(_ context.Context, p *models.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.TransactionID]; ok {
		return false, nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	cp := *p
	m.payments[p.TransactionID] = &cp
	return true, nil
}

func (m *Memory) FinalizeMatch(_ context.Context, transactionID, planCode string, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[transactionID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Matched = true
	p.PlanCode = planCode
	p.PlanSnapshot = datatypes.JSON(snapshot)
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) IncrementPromo(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promos[key]++
	return m.promos[key], nil
}

func (m *Memory) ListUnmatched(_ context.Context, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if !p.Matched {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetPayment(_ context.Context, transactionID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[transactionID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}
