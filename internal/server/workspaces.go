package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"talentlink/internal/engine"
)

type workspacePath struct {
	WorkspaceID string `path:"workspace_id"`
}

func registerWorkspaces(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List the caller's workspaces",
		Errors:      defaultErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WorkspaceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.e.ListWorkspaces(ctx, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		res := make([]WorkspaceResponse, 0, len(items))
		for _, w := range items {
			res = append(res, workspaceResponse(w))
		}
		return &struct {
			Body []WorkspaceResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "open-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Open the workspace for an active contract",
		Description:   "Idempotent per contract_id: repeating the call returns the existing workspace with created=false.",
		DefaultStatus: http.StatusCreated,
		Errors:        defaultErrors,
	}, func(ctx context.Context, input *struct {
		Body OpenWorkspaceRequest `json:"body"`
	}) (*struct {
		Status int
		Body   OpenWorkspaceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		total := decimal.Zero
		if input.Body.TotalAmount != "" {
			d, err := engine.ParseAmount(input.Body.TotalAmount)
			if err != nil {
				return nil, h.handleError(ctx, err)
			}
			total = d
		}
		w, created, err := h.e.OpenWorkspace(ctx, engine.ContractActivation{
			ContractID:     input.Body.ContractID,
			Title:          input.Body.Title,
			Type:           input.Body.Type,
			ClientID:       input.Body.ClientID,
			ClientName:     input.Body.ClientName,
			ContractorID:   input.Body.ContractorID,
			ContractorName: input.Body.ContractorName,
			TotalAmount:    total,
			Currency:       input.Body.Currency,
			Status:         input.Body.Status,
		}, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		return &struct {
			Status int
			Body   OpenWorkspaceResponse `json:"body"`
		}{Status: status, Body: OpenWorkspaceResponse{Workspace: workspaceResponse(w), Created: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}",
		Summary:     "Workspace dashboard with task counts and payment totals",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *workspacePath) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := h.e.Summary(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: summaryResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-workspace",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/complete",
		Summary:     "Mark the engagement complete for the calling party",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *workspacePath) (*struct {
		Body WorkspaceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := h.e.MarkComplete(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body WorkspaceResponse `json:"body"`
		}{Body: workspaceResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-analytics",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/analytics",
		Summary:     "Task distribution, completion timeline and payment progress",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *workspacePath) (*struct {
		Body AnalyticsResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := h.e.Analytics(ctx, input.WorkspaceID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body AnalyticsResponse `json:"body"`
		}{Body: analyticsResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspace-events",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/events",
		Summary:     "Workspace audit trail, newest first",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Type        string `query:"type"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := h.e.ListEvents(ctx, input.WorkspaceID, actorID, input.Type, normalizeLimit(input.Limit))
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}
