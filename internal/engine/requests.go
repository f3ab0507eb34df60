package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"talentlink/internal/domain"
	"talentlink/internal/engine/auth"
	"talentlink/internal/events"
	"talentlink/internal/repo"
)

type RequestCreateOptions struct {
	WorkspaceID string
	Amount      decimal.Decimal
	Message     string
	ActorID     string
}

// CreateRequest files a pending payment request. Only the contractor may ask.
func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (domain.PaymentRequest, error) {
	if err := validateAmount(opts.Amount); err != nil {
		return domain.PaymentRequest{}, err
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, opts.WorkspaceID, opts.ActorID, "request.create", auth.RoleContractor)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	pr := domain.PaymentRequest{
		ID:          uuid.NewString(),
		WorkspaceID: w.ID,
		Amount:      opts.Amount,
		Message:     strings.TrimSpace(opts.Message),
		Status:      domain.RequestPending,
		RequestedBy: opts.ActorID,
		CreatedAt:   e.stamp(),
	}
	if err := e.Repo.InsertRequestTx(ctx, tx, pr); err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("insert payment request: %w", err)
	}
	if err := ev.Append(ctx, tx, "request.created", w.ID, "payment_request", pr.ID, opts.ActorID, events.EventPayload{"amount": pr.Amount.String()}); err != nil {
		return domain.PaymentRequest{}, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: w.ClientID,
		WorkspaceID: w.ID,
		Kind:        "payment",
		Title:       "Payment Requested",
		Message:     fmt.Sprintf("%s requested %s %s.", w.PartyName(opts.ActorID), w.Currency, pr.Amount.StringFixed(2)),
		EntityKind:  "payment_request",
		EntityID:    pr.ID,
	}); err != nil {
		return domain.PaymentRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentRequest{}, err
	}
	return pr, nil
}

// ApproveRequest declares intent to pay. It does not create a Payment; the
// client logs one separately and may reference the request from it.
func (e Engine) ApproveRequest(ctx context.Context, workspaceID, requestID, actorID string) (domain.PaymentRequest, error) {
	return e.resolveRequest(ctx, workspaceID, requestID, domain.RequestApproved, nil, actorID)
}

// RejectRequest closes the request with an optional reason.
func (e Engine) RejectRequest(ctx context.Context, workspaceID, requestID, reason, actorID string) (domain.PaymentRequest, error) {
	var r *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		r = &trimmed
	}
	return e.resolveRequest(ctx, workspaceID, requestID, domain.RequestRejected, r, actorID)
}

// resolveRequest applies the one-shot pending -> approved|rejected transition.
func (e Engine) resolveRequest(ctx context.Context, workspaceID, requestID, status string, reason *string, actorID string) (domain.PaymentRequest, error) {
	action := "request.approve"
	if status == domain.RequestRejected {
		action = "request.reject"
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, workspaceID, actorID, action, auth.RoleClient)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	pr, err := e.Repo.GetRequestTx(ctx, tx, w.ID, requestID)
	if err != nil {
		return domain.PaymentRequest{}, notFound(err, "payment request", requestID)
	}
	if pr.Status != domain.RequestPending {
		return domain.PaymentRequest{}, conflict(CodeNotPending, "payment request %s is already %s", pr.ID, pr.Status)
	}
	now := e.stamp()
	ok, err := e.Repo.ResolveRequestTx(ctx, tx, w.ID, pr.ID, status, reason, actorID, now)
	if err != nil {
		return domain.PaymentRequest{}, err
	}
	if !ok {
		return domain.PaymentRequest{}, conflict(CodeNotPending, "payment request %s is no longer pending", pr.ID)
	}
	pr.Status = status
	pr.RejectionReason = reason
	pr.ResolvedBy = &actorID
	pr.ResolvedAt = &now

	payload := events.EventPayload{"amount": pr.Amount.String()}
	title := "Payment Request Approved"
	message := fmt.Sprintf("%s approved your request for %s %s.", w.PartyName(actorID), w.Currency, pr.Amount.StringFixed(2))
	if reason != nil {
		payload["reason"] = *reason
	}
	if status == domain.RequestRejected {
		title = "Payment Request Rejected"
		message = fmt.Sprintf("%s rejected your request for %s %s.", w.PartyName(actorID), w.Currency, pr.Amount.StringFixed(2))
		if reason != nil {
			message += " Reason: " + *reason
		}
	}
	if err := ev.Append(ctx, tx, "request."+status, w.ID, "payment_request", pr.ID, actorID, payload); err != nil {
		return domain.PaymentRequest{}, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: pr.RequestedBy,
		WorkspaceID: w.ID,
		Kind:        "payment",
		Title:       title,
		Message:     message,
		EntityKind:  "payment_request",
		EntityID:    pr.ID,
	}); err != nil {
		return domain.PaymentRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentRequest{}, err
	}
	return pr, nil
}

type RequestListOptions struct {
	WorkspaceID string
	Status      string
	Limit       int
	Cursor      repo.Cursor
	ActorID     string
}

func (e Engine) ListRequests(ctx context.Context, opts RequestListOptions) ([]domain.PaymentRequest, error) {
	switch opts.Status {
	case "", domain.RequestPending, domain.RequestApproved, domain.RequestRejected:
	default:
		return nil, invalid("status", "unknown status %q", opts.Status)
	}
	if _, _, err := e.GetWorkspace(ctx, opts.WorkspaceID, opts.ActorID); err != nil {
		return nil, err
	}
	return e.Repo.ListRequests(ctx, repo.RequestFilters{
		WorkspaceID: opts.WorkspaceID,
		Status:      opts.Status,
		Limit:       opts.Limit,
		Cursor:      opts.Cursor,
	})
}
