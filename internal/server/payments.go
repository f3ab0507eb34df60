package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"talentlink/internal/engine"
	"talentlink/internal/repo"
)

type paymentBody struct {
	Body PaymentResponse `json:"body"`
}

type requestBody struct {
	Body PaymentRequestResponse `json:"body"`
}

type requestPath struct {
	WorkspaceID string `path:"workspace_id"`
	RequestID   string `path:"request_id"`
}

func registerPayments(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-payment",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/payments",
		Summary:       "Log a payment to the contractor",
		Description:   "Client only. The payment counts toward paid totals once the contractor confirms it.",
		DefaultStatus: http.StatusCreated,
		Errors:        defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		Body        LogPaymentRequest `json:"body"`
	}) (*paymentBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		amount, err := engine.ParseAmount(input.Body.Amount)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		p, err := h.e.LogPayment(ctx, engine.PaymentLogOptions{
			WorkspaceID:   input.WorkspaceID,
			Amount:        amount,
			Description:   input.Body.Description,
			PaymentMethod: input.Body.PaymentMethod,
			TransactionID: input.Body.TransactionID,
			RequestID:     input.Body.RequestID,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &paymentBody{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/payments",
		Summary:     "List payments, newest first",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:"pending,confirmed"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedPayments `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursor, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		var confirmed *bool
		if input.Status != "" {
			v := input.Status == "confirmed"
			confirmed = &v
		}
		limit := normalizeLimit(input.Limit)
		items, err := h.e.ListPayments(ctx, engine.PaymentListOptions{
			WorkspaceID: input.WorkspaceID,
			Confirmed:   confirmed,
			Limit:       limit + 1,
			Cursor:      cursor,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		res := make([]PaymentResponse, 0, len(items))
		for _, p := range items {
			res = append(res, paymentResponse(p))
		}
		res, next := page(res, limit, func(p PaymentResponse) repo.Cursor {
			return repo.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
		})
		return &struct {
			Body paginatedPayments `json:"body"`
		}{Body: paginatedPayments{Items: res, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-payment",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/payments/{payment_id}/confirm",
		Summary:     "Confirm receipt of a payment",
		Description: "Contractor only. A second confirmation returns 409 already_confirmed.",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		PaymentID   string `path:"payment_id"`
	}) (*paymentBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.e.ConfirmPayment(ctx, input.WorkspaceID, input.PaymentID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &paymentBody{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-stats",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/payments/stats",
		Summary:     "Paid and remaining totals with the confirmed-payment timeline",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *workspacePath) (*struct {
		Body PaymentStatsResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := h.e.PaymentStats(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body PaymentStatsResponse `json:"body"`
		}{Body: paymentStatsResponse(stats)}, nil
	})
}

func registerRequests(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-payment-request",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/payment-requests",
		Summary:       "Ask the client for a payment",
		Description:   "Contractor only.",
		DefaultStatus: http.StatusCreated,
		Errors:        defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string               `path:"workspace_id"`
		Body        CreateRequestRequest `json:"body"`
	}) (*requestBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		amount, err := engine.ParseAmount(input.Body.Amount)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		pr, err := h.e.CreateRequest(ctx, engine.RequestCreateOptions{
			WorkspaceID: input.WorkspaceID,
			Amount:      amount,
			Message:     input.Body.Message,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &requestBody{Body: paymentRequestResponse(pr)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payment-requests",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/payment-requests",
		Summary:     "List payment requests, newest first",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:"pending,approved,rejected"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedRequests `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursor, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := h.e.ListRequests(ctx, engine.RequestListOptions{
			WorkspaceID: input.WorkspaceID,
			Status:      input.Status,
			Limit:       limit + 1,
			Cursor:      cursor,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		res := make([]PaymentRequestResponse, 0, len(items))
		for _, pr := range items {
			res = append(res, paymentRequestResponse(pr))
		}
		res, next := page(res, limit, func(pr PaymentRequestResponse) repo.Cursor {
			return repo.Cursor{CreatedAt: pr.CreatedAt, ID: pr.ID}
		})
		return &struct {
			Body paginatedRequests `json:"body"`
		}{Body: paginatedRequests{Items: res, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-payment-request",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/payment-requests/{request_id}/approve",
		Summary:     "Approve a pending request",
		Description: "Client only. Approval records intent and does not create a payment.",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *requestPath) (*requestBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pr, err := h.e.ApproveRequest(ctx, input.WorkspaceID, input.RequestID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &requestBody{Body: paymentRequestResponse(pr)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-payment-request",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/payment-requests/{request_id}/reject",
		Summary:     "Reject a pending request",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string                `path:"workspace_id"`
		RequestID   string                `path:"request_id"`
		Body        *RejectRequestRequest `json:"body,omitempty" required:"false"`
	}) (*requestBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var reason string
		if input.Body != nil {
			reason = input.Body.Reason
		}
		pr, err := h.e.RejectRequest(ctx, input.WorkspaceID, input.RequestID, reason, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &requestBody{Body: paymentRequestResponse(pr)}, nil
	})
}
