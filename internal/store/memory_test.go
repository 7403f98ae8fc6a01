package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somaprep/somaprep-backend/internal/models"
)

var paymentFixture = models.Payment{
	TransactionID: "TX12345",
	BillRef:       "111222333",
	Amount:        1750,
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Gorm)(nil)
)

func TestConsumeTrialSessionNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	now := time.Now()

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, remaining, err := m.ConsumeTrialSession(ctx, "user-1", now)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, remaining, 0)
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, wins, "successful consumes must not exceed the credit pool")

	u, err := m.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.TrialSessionsRemaining)
	assert.True(t, u.TrialClaimed)
	assert.NotNil(t, u.TrialStartedAt)
}

func TestConsumeTrialSessionCreatesUserWithDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	ok, remaining, err := m.ConsumeTrialSession(ctx, "fresh", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, remaining)
}

func TestClaimTrialIdempotentOnStartedAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	require.NoError(t, m.EnsureUser(ctx, "u"))

	first := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.ClaimTrial(ctx, "u", first))
	require.NoError(t, m.ClaimTrial(ctx, "u", first.Add(time.Hour)))

	u, err := m.GetUser(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, u.TrialStartedAt)
	assert.True(t, u.TrialStartedAt.Equal(first))
}

func TestGetOrCreateDayIsStablePerDay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	res, err := m.ReserveBudget(ctx, "u", "2025-08-21", "math", 60, 120, 2)
	require.NoError(t, err)
	require.True(t, res.OK)

	for i := 0; i < 5; i++ {
		day, err := m.GetOrCreateDay(ctx, "u", "2025-08-21")
		require.NoError(t, err)
		assert.Equal(t, 60, day.MinutesUsed, "repeat reads must not reset counters")
	}

	// First read after the boundary starts from zero without touching the
	// previous day.
	next, err := m.GetOrCreateDay(ctx, "u", "2025-08-22")
	require.NoError(t, err)
	assert.Equal(t, 0, next.MinutesUsed)

	prev, err := m.GetOrCreateDay(ctx, "u", "2025-08-21")
	require.NoError(t, err)
	assert.Equal(t, 60, prev.MinutesUsed)
}

func TestConcurrentDayRolloverResetsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			day, err := m.GetOrCreateDay(ctx, "u", "2025-08-22")
			assert.NoError(t, err)
			ids[i] = day.ID.String()
			assert.Equal(t, 0, day.MinutesUsed)
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "concurrent first-reads must agree on one record")
	}
}

func TestReserveBudgetUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	// 120-minute budget, 60-minute sessions: exactly two may win.
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.ReserveBudget(ctx, "u", "2025-08-21", "math", 60, 120, 2)
			assert.NoError(t, err)
			if res.OK {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, wins)

	day, err := m.GetOrCreateDay(ctx, "u", "2025-08-21")
	require.NoError(t, err)
	assert.Equal(t, 120, day.MinutesUsed)
	assert.Equal(t, day.SubjectsUsed, len(day.Subjects()))
}

func TestSubjectSetMatchesCounter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	subjects := []string{"math", "english", "math", "physics", "english"}
	for _, s := range subjects {
		if _, err := m.ReserveBudget(ctx, "u", "2025-08-21", s, 10, 480, 4); err != nil {
			t.Fatal(err)
		}
	}

	day, err := m.GetOrCreateDay(ctx, "u", "2025-08-21")
	require.NoError(t, err)
	assert.Equal(t, 3, day.SubjectsUsed)
	assert.Len(t, day.Subjects(), day.SubjectsUsed)
	assert.Equal(t, 50, day.MinutesUsed)
}

func TestReserveBudgetResumeSameSubject(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	// Subject cap 1: a second distinct subject is declined, but resuming
	// the same subject only burns minutes.
	res, err := m.ReserveBudget(ctx, "u", "2025-08-21", "math", 30, 120, 1)
	require.NoError(t, err)
	require.True(t, res.OK)

	res, err = m.ReserveBudget(ctx, "u", "2025-08-21", "english", 30, 120, 1)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, DeclineSubjects, res.Reason)

	res, err = m.ReserveBudget(ctx, "u", "2025-08-21", "math", 30, 120, 1)
	require.NoError(t, err)
	assert.True(t, res.OK)

	day, err := m.GetOrCreateDay(ctx, "u", "2025-08-21")
	require.NoError(t, err)
	assert.Equal(t, 1, day.SubjectsUsed)
	assert.Equal(t, 60, day.MinutesUsed)
}

func TestReserveMarkingCap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	ok, err := m.ReserveMarking(ctx, "u", "2025-08-21", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.ReserveMarking(ctx, "u", "2025-08-21", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.ReserveMarking(ctx, "u", "2025-08-21", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActivatePlanExtendsActiveExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	require.NoError(t, m.EnsureUser(ctx, "u"))

	now := time.Date(2025, 8, 21, 12, 0, 0, 0, time.UTC)
	act := PlanActivation{Code: "PRO_WEEK", DurationDays: 7}

	first, err := m.ActivatePlan(ctx, "u", act, "2025-08-21", now)
	require.NoError(t, err)
	assert.True(t, first.Equal(now.AddDate(0, 0, 7)))

	// Renewal three days in: remaining four days are preserved.
	second, err := m.ActivatePlan(ctx, "u", act, "2025-08-24", now.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.True(t, second.Equal(first.AddDate(0, 0, 7)))
}

func TestActivatePlanResetsTodayCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	require.NoError(t, m.EnsureUser(ctx, "u"))

	_, err := m.ReserveBudget(ctx, "u", "2025-08-21", "math", 60, 120, 2)
	require.NoError(t, err)

	_, err = m.ActivatePlan(ctx, "u", PlanActivation{Code: "PLUS_MONTH", DurationDays: 30}, "2025-08-21", time.Now())
	require.NoError(t, err)

	day, err := m.GetOrCreateDay(ctx, "u", "2025-08-21")
	require.NoError(t, err)
	assert.Equal(t, 0, day.MinutesUsed)
	assert.Equal(t, 0, day.SubjectsUsed)
	assert.Empty(t, day.Subjects())
}

func TestPaymentIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	p := paymentFixture
	created, err := m.CreateIfAbsent(ctx, &p)
	require.NoError(t, err)
	assert.True(t, created)

	dup := paymentFixture
	created, err = m.CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestIncrementPromoIsStrictlyMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	seen := make(map[int]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.IncrementPromo(ctx, "first100")
			assert.NoError(t, err)
			mu.Lock()
			assert.False(t, seen[n], "each slot must be handed out once")
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}
