package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somaprep/somaprep-backend/internal/clock"
	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/plan"
	"github.com/somaprep/somaprep-backend/internal/store"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]string)}
}

func (n *fakeNotifier) SendMessage(_ context.Context, chatID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[chatID] = append(n.messages[chatID], text)
	return nil
}

func (n *fakeNotifier) sentTo(chatID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.messages[chatID]
}

type paymentFixtureEnv struct {
	svc      *PaymentService
	mem      *store.Memory
	notifier *fakeNotifier
	now      *time.Time
}

func newPaymentFixture(t *testing.T) *paymentFixtureEnv {
	t.Helper()
	loc, err := time.LoadLocation(clock.DefaultTimezone)
	require.NoError(t, err)

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)
	mem := store.NewMemory(2)
	clk := clock.NewWithNow(loc, func() time.Time { return now })
	notifier := newFakeNotifier()
	return &paymentFixtureEnv{
		svc:      NewPaymentService(mem, mem, plan.NewCatalog(), clk, notifier, "admin-chat"),
		mem:      mem,
		notifier: notifier,
		now:      &now,
	}
}

func confirmation(transID, billRef, amount string) *dto.MpesaConfirmation {
	return &dto.MpesaConfirmation{
		TransactionType: "Pay Bill",
		TransID:         transID,
		TransAmount:     dto.FlexString(amount),
		BillRefNumber:   billRef,
		MSISDN:          dto.FlexString("254700000001"),
		FirstName:       "WANJIKU",
	}
}

func TestProcessConfirmationCreditsPlan(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	conf := confirmation("TX100", "1001", "300")
	raw, _ := json.Marshal(conf)
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, raw))

	user, err := f.mem.GetUser(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "PRO_WEEK", user.PlanCode)
	require.NotNil(t, user.PlanExpiresAt)
	assert.Equal(t, f.now.AddDate(0, 0, 7), *user.PlanExpiresAt)

	payment, err := f.mem.GetPayment(ctx, "TX100")
	require.NoError(t, err)
	assert.True(t, payment.Matched)
	assert.Equal(t, "PRO_WEEK", payment.PlanCode)
	assert.NotEmpty(t, []byte(payment.PlanSnapshot))

	require.NotEmpty(t, f.notifier.sentTo("1001"))
	assert.Contains(t, f.notifier.sentTo("1001")[0], "Payment Received")
	assert.NotEmpty(t, f.notifier.sentTo("admin-chat"))
}

func TestProcessConfirmationRedeliveryIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	conf := confirmation("TX200", "1002", "300")
	raw, _ := json.Marshal(conf)
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, raw))

	user, err := f.mem.GetUser(ctx, "1002")
	require.NoError(t, err)
	firstExpiry := *user.PlanExpiresAt

	// The gateway redelivers; the expiry must not move.
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, raw))

	user, err = f.mem.GetUser(ctx, "1002")
	require.NoError(t, err)
	assert.Equal(t, firstExpiry, *user.PlanExpiresAt)
	assert.Len(t, f.notifier.sentTo("1002"), 1, "duplicate deliveries stay silent")
}

func TestProcessConfirmationRenewalExtends(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	first := confirmation("TX300", "1003", "300")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, first, nil))

	user, err := f.mem.GetUser(ctx, "1003")
	require.NoError(t, err)
	firstExpiry := *user.PlanExpiresAt

	// Renewing three days in keeps the remaining four days.
	*f.now = f.now.AddDate(0, 0, 3)
	second := confirmation("TX301", "1003", "300")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, second, nil))

	user, err = f.mem.GetUser(ctx, "1003")
	require.NoError(t, err)
	assert.Equal(t, firstExpiry.AddDate(0, 0, 7), *user.PlanExpiresAt)
}

func TestProcessConfirmationUnmatchedAmount(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	conf := confirmation("TX400", "1004", "275")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))

	user, err := f.mem.GetUser(ctx, "1004")
	require.NoError(t, err)
	assert.Empty(t, user.PlanCode, "no entitlement change on an unmatched amount")

	payment, err := f.mem.GetPayment(ctx, "TX400")
	require.NoError(t, err)
	assert.False(t, payment.Matched)
	assert.Equal(t, 275, payment.Amount)

	unmatched, err := f.svc.ListUnmatched(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "TX400", unmatched[0].TransactionID)

	require.NotEmpty(t, f.notifier.sentTo("1004"))
	assert.Contains(t, f.notifier.sentTo("1004")[0], "didn't match")
}

func TestProcessConfirmationInvalidPayloadIgnored(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	conf := confirmation("", "1005", "300")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))

	_, err := f.mem.GetUser(ctx, "1005")
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	conf = confirmation("TX500", "1005", "n/a")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))
	_, err = f.mem.GetPayment(ctx, "TX500")
	assert.ErrorIs(t, err, store.ErrPaymentNotFound)
}

func TestProcessConfirmationPromoSoldOut(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	promo, ok := plan.NewCatalog().ByCode("FIRST100")
	require.True(t, ok)
	for i := 0; i < promo.BuyerCap; i++ {
		_, err := f.mem.IncrementPromo(ctx, "promo:first100")
		require.NoError(t, err)
	}

	conf := confirmation("TX600", "1006", "1500")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))

	user, err := f.mem.GetUser(ctx, "1006")
	require.NoError(t, err)
	assert.Equal(t, "PLUS_MONTH", user.PlanCode, "sold-out promo credits the fallback")
	assert.Equal(t, f.now.AddDate(0, 0, 30), *user.PlanExpiresAt)

	payment, err := f.mem.GetPayment(ctx, "TX600")
	require.NoError(t, err)
	assert.Equal(t, "PLUS_MONTH", payment.PlanCode)

	messages := f.notifier.sentTo("1006")
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "sold out")
}

func TestProcessConfirmationPromoWithinCap(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	conf := confirmation("TX700", "1007", "1500")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))

	user, err := f.mem.GetUser(ctx, "1007")
	require.NoError(t, err)
	assert.Equal(t, "FIRST100", user.PlanCode)
	assert.Equal(t, f.now.AddDate(0, 0, 60), *user.PlanExpiresAt)
}

func TestProcessConfirmationResetsDailyCounters(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	dateKey := clock.DateKey(*f.now, f.now.Location())
	require.NoError(t, f.mem.EnsureUser(ctx, "1008"))
	_, err := f.mem.ReserveBudget(ctx, "1008", dateKey, "math", 60, 120, 2)
	require.NoError(t, err)

	conf := confirmation("TX800", "1008", "2500")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))

	day, err := f.mem.GetOrCreateDay(ctx, "1008", dateKey)
	require.NoError(t, err)
	assert.Zero(t, day.MinutesUsed, "activation starts the paid allowance fresh")
	assert.Zero(t, day.SubjectsUsed)
	assert.Empty(t, day.Subjects())
}

func TestCreditManually(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	conf := confirmation("TX900", "1009", "275")
	require.NoError(t, f.svc.ProcessConfirmation(ctx, conf, nil))

	require.NoError(t, f.svc.CreditManually(ctx, "TX900", "plus_month"))

	user, err := f.mem.GetUser(ctx, "1009")
	require.NoError(t, err)
	assert.Equal(t, "PLUS_MONTH", user.PlanCode)

	payment, err := f.mem.GetPayment(ctx, "TX900")
	require.NoError(t, err)
	assert.True(t, payment.Matched)

	err = f.svc.CreditManually(ctx, "TX900", "PLUS_MONTH")
	assert.ErrorIs(t, err, ErrAlreadyMatched)

	err = f.svc.CreditManually(ctx, "TX900", "GOLD_YEAR")
	assert.ErrorIs(t, err, ErrAlreadyMatched, "matched check runs before plan lookup")

	err = f.svc.CreditManually(ctx, "MISSING", "PLUS_MONTH")
	assert.ErrorIs(t, err, store.ErrPaymentNotFound)
}

func TestActivationMessageMentionsPlanTerms(t *testing.T) {
	plus, ok := plan.NewCatalog().ByCode("PLUS_MONTH")
	require.True(t, ok)

	msg := activationMessage(1750, plus, time.Date(2025, 4, 9, 9, 0, 0, 0, time.UTC))
	assert.True(t, strings.Contains(msg, "KES 1750"))
	assert.True(t, strings.Contains(msg, plus.Label))
	assert.True(t, strings.Contains(msg, "5 hours/day"))
	assert.True(t, strings.Contains(msg, "09 Apr 2025"))
}
