package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/somaprep/somaprep-backend/internal/clock"
	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/logging"
	"github.com/somaprep/somaprep-backend/internal/models"
	"github.com/somaprep/somaprep-backend/internal/plan"
	"github.com/somaprep/somaprep-backend/internal/store"
)

var (
	ErrAlreadyMatched = errors.New("payment already matched")
	ErrUnknownPlan    = errors.New("unknown plan code")
)

// Notifier delivers user-facing and admin messages. Failures are logged
// and swallowed; crediting never waits on chat delivery.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// PaymentService turns gateway confirmations into plan activations. The
// gateway delivers at least once; the payment row keyed by transaction id
// is the idempotency gate, inserted before any entitlement mutation.
type PaymentService struct {
	ent         store.EntitlementStore
	payments    store.PaymentStore
	catalog     *plan.Catalog
	clk         *clock.Clock
	notifier    Notifier
	adminChatID string
}

func NewPaymentService(ent store.EntitlementStore, payments store.PaymentStore, catalog *plan.Catalog, clk *clock.Clock, notifier Notifier, adminChatID string) *PaymentService {
	return &PaymentService{
		ent:         ent,
		payments:    payments,
		catalog:     catalog,
		clk:         clk,
		notifier:    notifier,
		adminChatID: adminChatID,
	}
}

// ProcessConfirmation handles one C2B confirmation end to end. Redelivered
// webhooks stop at the idempotency gate; a crashed run leaves the payment
// row in place so the retry cannot double-credit.
func (s *PaymentService) ProcessConfirmation(ctx context.Context, conf *dto.MpesaConfirmation, raw []byte) error {
	transID := strings.TrimSpace(conf.TransID)
	billRef := strings.TrimSpace(conf.BillRefNumber)
	amount, amountOK := plan.NormalizeAmount(conf.TransAmount.String())

	if transID == "" || billRef == "" || !amountOK {
		slog.Log(ctx, logging.AuditLevel, "payment confirmation missing required fields",
			"action", "payment_invalid", "transaction_id", transID, "bill_ref", billRef)
		return nil
	}

	payment := &models.Payment{
		TransactionID: transID,
		BillRef:       billRef,
		Amount:        amount,
		Channel:       "mpesa_c2b",
		Msisdn:        conf.MSISDN.String(),
		FirstName:     conf.FirstName,
		LastName:      conf.LastName,
		Raw:           datatypes.JSON(raw),
	}
	created, err := s.payments.CreateIfAbsent(ctx, payment)
	if err != nil {
		return err
	}
	if !created {
		slog.Info("duplicate payment webhook ignored", "transaction_id", transID)
		return nil
	}

	s.notifyAdmin(ctx, fmt.Sprintf("🚨 *C2B Payment*\nKES %d from %s (tx %s)", amount, billRef, transID))

	selected, ok := s.catalog.ByAmount(amount)
	if !ok {
		// Recorded unmatched for manual reconciliation; no entitlement
		// change, and the gateway still gets its ack.
		slog.Log(ctx, logging.AuditLevel, "payment amount matched no plan",
			"action", "payment_unmatched", "telegram_id", billRef,
			"transaction_id", transID, "amount", amount)
		s.notify(ctx, billRef, fmt.Sprintf("⚠️ Your payment of KES %d didn't match any SomaPrep plan. Our team will sort it out shortly.", amount))
		return nil
	}

	granted := selected
	if selected.BuyerCap > 0 {
		// The post-increment slot number alone decides ownership; a
		// separate read would race with other deliveries.
		slot, err := s.payments.IncrementPromo(ctx, promoKey(selected.Code))
		if err != nil {
			return err
		}
		if slot > selected.BuyerCap {
			fallback, ok := s.catalog.ByCode(string(selected.FallbackCode))
			if !ok {
				return fmt.Errorf("promo %s: %w: %s", selected.Code, ErrUnknownPlan, selected.FallbackCode)
			}
			// Money was already received: substitute, never reject.
			slog.Info("promo sold out, substituting fallback plan",
				"promo", selected.Code, "fallback", fallback.Code, "slot", slot)
			s.notify(ctx, billRef, fmt.Sprintf("⏳ The %s is sold out. Crediting *%s* instead.", selected.Label, fallback.Label))
			granted = fallback
		}
	}

	expiresAt, err := s.credit(ctx, transID, billRef, granted)
	if err != nil {
		return err
	}

	s.notify(ctx, billRef, activationMessage(amount, granted, expiresAt))
	slog.Info("payment credited",
		"transaction_id", transID, "telegram_id", billRef,
		"plan", granted.Code, "expires_at", expiresAt)
	return nil
}

// CreditManually resolves an unmatched payment to an explicit plan. Used
// by the admin reconciliation endpoint.
func (s *PaymentService) CreditManually(ctx context.Context, transactionID, planCode string) error {
	payment, err := s.payments.GetPayment(ctx, transactionID)
	if err != nil {
		return err
	}
	if payment.Matched {
		return ErrAlreadyMatched
	}
	selected, ok := s.catalog.ByCode(planCode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, planCode)
	}

	expiresAt, err := s.credit(ctx, payment.TransactionID, payment.BillRef, selected)
	if err != nil {
		return err
	}

	s.notify(ctx, payment.BillRef, activationMessage(payment.Amount, selected, expiresAt))
	slog.Info("payment credited manually", "transaction_id", transactionID, "plan", selected.Code)
	return nil
}

func (s *PaymentService) ListUnmatched(ctx context.Context, limit int) ([]models.Payment, error) {
	return s.payments.ListUnmatched(ctx, limit)
}

// credit activates the plan and finalizes the payment row.
func (s *PaymentService) credit(ctx context.Context, transactionID, telegramID string, granted plan.Plan) (time.Time, error) {
	if err := s.ent.EnsureUser(ctx, telegramID); err != nil {
		return time.Time{}, err
	}
	expiresAt, err := s.ent.ActivatePlan(ctx, telegramID, store.PlanActivation{
		Code:           string(granted.Code),
		Label:          granted.Label,
		Amount:         granted.Amount,
		DurationDays:   granted.DurationDays,
		HoursPerDay:    granted.HoursPerDay,
		SubjectsPerDay: granted.SubjectsPerDay,
	}, s.clk.TodayKey(), s.clk.Now())
	if err != nil {
		return time.Time{}, err
	}

	snapshot, err := json.Marshal(granted)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to snapshot plan terms: %w", err)
	}
	if err := s.payments.FinalizeMatch(ctx, transactionID, string(granted.Code), snapshot); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

func (s *PaymentService) notify(ctx context.Context, chatID, text string) {
	if s.notifier == nil || chatID == "" {
		return
	}
	if err := s.notifier.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("failed to send payment notification", "chat_id", chatID, "error", err)
	}
}

func (s *PaymentService) notifyAdmin(ctx context.Context, text string) {
	s.notify(ctx, s.adminChatID, text)
}

func promoKey(code plan.Code) string {
	return "promo:" + strings.ToLower(string(code))
}

func activationMessage(amount int, granted plan.Plan, expiresAt time.Time) string {
	return fmt.Sprintf(
		"✅ *Payment Received – KES %d*\nPlan: *%s*\n\nToday you can study:\n• ⏱️ *%d hours/day*\n• 📚 *%d subjects/day*\n• 🗓️ Expires: *%s*\n\nStart now: type /study",
		amount, granted.Label, granted.HoursPerDay, granted.SubjectsPerDay, expiresAt.Format("Mon, 02 Jan 2006"))
}
