package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"talentlink/internal/domain"
	"talentlink/internal/engine/auth"
	"talentlink/internal/events"
	"talentlink/internal/repo"
)

const (
	maxMethodLength      = 100
	maxTransactionLength = 200
)

type PaymentLogOptions struct {
	WorkspaceID   string
	Amount        decimal.Decimal
	Description   string
	PaymentMethod string
	TransactionID string
	// RequestID optionally links the payment to an approved request.
	RequestID string
	ActorID   string
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return invalid("amount", "must have at most two decimal places")
	}
	return nil
}

// ParseAmount parses a decimal amount from its string form.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, invalid("amount", "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, invalid("amount", "%q is not a decimal number", raw)
	}
	return d, nil
}

func (e Engine) validatePaymentFields(method, transactionID string) error {
	if len(method) > maxMethodLength {
		return invalid("payment_method", "must be at most %d characters", maxMethodLength)
	}
	if len(transactionID) > maxTransactionLength {
		return invalid("transaction_id", "must be at most %d characters", maxTransactionLength)
	}
	if !e.Config.PaymentMethodAllowed(method) {
		return invalid("payment_method", "%q is not an accepted payment method", method)
	}
	return nil
}

// LogPayment records a client payment. It counts toward paid totals only
// after the contractor confirms it.
func (e Engine) LogPayment(ctx context.Context, opts PaymentLogOptions) (domain.Payment, error) {
	if err := validateAmount(opts.Amount); err != nil {
		return domain.Payment{}, err
	}
	opts.PaymentMethod = strings.TrimSpace(opts.PaymentMethod)
	opts.TransactionID = strings.TrimSpace(opts.TransactionID)
	if err := e.validatePaymentFields(opts.PaymentMethod, opts.TransactionID); err != nil {
		return domain.Payment{}, err
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, opts.WorkspaceID, opts.ActorID, "payment.log", auth.RoleClient)
	if err != nil {
		return domain.Payment{}, err
	}
	p := domain.Payment{
		ID:            uuid.NewString(),
		WorkspaceID:   w.ID,
		Amount:        opts.Amount,
		Description:   strings.TrimSpace(opts.Description),
		PaymentMethod: opts.PaymentMethod,
		TransactionID: opts.TransactionID,
		PaidBy:        opts.ActorID,
		ReceivedBy:    w.ContractorID,
		CreatedAt:     e.stamp(),
	}
	if opts.RequestID != "" {
		pr, err := e.Repo.GetRequestTx(ctx, tx, w.ID, opts.RequestID)
		if err != nil {
			return domain.Payment{}, notFound(err, "payment request", opts.RequestID)
		}
		if pr.Status != domain.RequestApproved {
			return domain.Payment{}, conflict(CodeRequestNotApproved, "payment request %s is %s, not approved", pr.ID, pr.Status)
		}
		linked, err := e.Repo.PaymentByRequestTx(ctx, tx, pr.ID)
		if err == nil {
			return domain.Payment{}, conflict(CodeRequestLinked, "payment request %s is already settled by payment %s", pr.ID, linked.ID)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Payment{}, err
		}
		p.RequestID = &pr.ID
	}
	if err := e.Repo.InsertPaymentTx(ctx, tx, p); err != nil {
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	payload := events.EventPayload{"amount": p.Amount.String(), "currency": w.Currency}
	if p.RequestID != nil {
		payload["request_id"] = *p.RequestID
	}
	if err := ev.Append(ctx, tx, "payment.logged", w.ID, "payment", p.ID, opts.ActorID, payload); err != nil {
		return domain.Payment{}, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: w.ContractorID,
		WorkspaceID: w.ID,
		Kind:        "payment",
		Title:       "Payment Logged",
		Message:     fmt.Sprintf("%s logged a payment of %s %s. Please confirm.", w.PartyName(opts.ActorID), w.Currency, p.Amount.StringFixed(2)),
		EntityKind:  "payment",
		EntityID:    p.ID,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

// ConfirmPayment marks a payment as received. A second confirmation is a
// conflict, and concurrent confirmations resolve to exactly one success.
func (e Engine) ConfirmPayment(ctx context.Context, workspaceID, paymentID, actorID string) (domain.Payment, error) {
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, workspaceID, actorID, "payment.confirm", auth.RoleContractor)
	if err != nil {
		return domain.Payment{}, err
	}
	p, err := e.Repo.GetPaymentTx(ctx, tx, w.ID, paymentID)
	if err != nil {
		return domain.Payment{}, notFound(err, "payment", paymentID)
	}
	if p.FreelancerConfirmed {
		return domain.Payment{}, conflict(CodeAlreadyConfirmed, "payment %s is already confirmed", p.ID)
	}
	now := e.stamp()
	ok, err := e.Repo.ConfirmPaymentTx(ctx, tx, w.ID, p.ID, now)
	if err != nil {
		return domain.Payment{}, err
	}
	if !ok {
		return domain.Payment{}, conflict(CodeAlreadyConfirmed, "payment %s is already confirmed", p.ID)
	}
	p.FreelancerConfirmed = true
	p.ConfirmedAt = &now
	if err := ev.Append(ctx, tx, "payment.confirmed", w.ID, "payment", p.ID, actorID, events.EventPayload{"amount": p.Amount.String()}); err != nil {
		return domain.Payment{}, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: p.PaidBy,
		WorkspaceID: w.ID,
		Kind:        "payment",
		Title:       "Payment Confirmed",
		Message:     fmt.Sprintf("%s confirmed receipt of %s %s.", w.PartyName(actorID), w.Currency, p.Amount.StringFixed(2)),
		EntityKind:  "payment",
		EntityID:    p.ID,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

type PaymentListOptions struct {
	WorkspaceID string
	Confirmed   *bool
	Limit       int
	Cursor      repo.Cursor
	ActorID     string
}

func (e Engine) ListPayments(ctx context.Context, opts PaymentListOptions) ([]domain.Payment, error) {
	if _, _, err := e.GetWorkspace(ctx, opts.WorkspaceID, opts.ActorID); err != nil {
		return nil, err
	}
	return e.Repo.ListPayments(ctx, repo.PaymentFilters{
		WorkspaceID: opts.WorkspaceID,
		Confirmed:   opts.Confirmed,
		Limit:       opts.Limit,
		Cursor:      opts.Cursor,
	})
}

// ExternalPayment is a settled charge reported by a payment processor.
type ExternalPayment struct {
	WorkspaceID   string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	TransactionID string
	Description   string
}

// RecordExternalPayment logs a processor-settled payment on behalf of the
// workspace client. Replays of the same transaction return the existing
// payment with created=false.
func (e Engine) RecordExternalPayment(ctx context.Context, ext ExternalPayment, actorID string) (domain.Payment, bool, error) {
	if err := validateAmount(ext.Amount); err != nil {
		return domain.Payment{}, false, err
	}
	if strings.TrimSpace(ext.TransactionID) == "" {
		return domain.Payment{}, false, invalid("transaction_id", "is required")
	}
	if err := e.validatePaymentFields(ext.Method, ext.TransactionID); err != nil {
		return domain.Payment{}, false, err
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Payment{}, false, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkspaceTx(ctx, tx, ext.WorkspaceID)
	if err != nil {
		return domain.Payment{}, false, notFound(err, "workspace", ext.WorkspaceID)
	}
	if ext.Currency != "" && !strings.EqualFold(ext.Currency, w.Currency) {
		return domain.Payment{}, false, invalid("currency", "%s does not match workspace currency %s", strings.ToUpper(ext.Currency), w.Currency)
	}
	existing, err := e.Repo.PaymentByTransactionTx(ctx, tx, w.ID, ext.Method, ext.TransactionID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Payment{}, false, err
	}
	p := domain.Payment{
		ID:            uuid.NewString(),
		WorkspaceID:   w.ID,
		Amount:        ext.Amount,
		Description:   ext.Description,
		PaymentMethod: ext.Method,
		TransactionID: ext.TransactionID,
		PaidBy:        w.ClientID,
		ReceivedBy:    w.ContractorID,
		CreatedAt:     e.stamp(),
	}
	if err := e.Repo.InsertPaymentTx(ctx, tx, p); err != nil {
		return domain.Payment{}, false, fmt.Errorf("insert payment: %w", err)
	}
	if err := ev.Append(ctx, tx, "payment.logged", w.ID, "payment", p.ID, actorID, events.EventPayload{
		"amount":         p.Amount.String(),
		"currency":       w.Currency,
		"method":         p.PaymentMethod,
		"transaction_id": p.TransactionID,
	}); err != nil {
		return domain.Payment{}, false, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: w.ContractorID,
		WorkspaceID: w.ID,
		Kind:        "payment",
		Title:       "Payment Logged",
		Message:     fmt.Sprintf("A %s payment of %s %s was received. Please confirm.", p.PaymentMethod, w.Currency, p.Amount.StringFixed(2)),
		EntityKind:  "payment",
		EntityID:    p.ID,
	}); err != nil {
		return domain.Payment{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, false, err
	}
	return p, true, nil
}
