package server

import (
	"encoding/json"
	"time"

	"talentlink/internal/analytics"
	"talentlink/internal/domain"
	"talentlink/internal/engine"
)

// Amounts travel as decimal strings so no precision is lost in JSON numbers.

// Request payloads

type OpenWorkspaceRequest struct {
	ContractID     string `json:"contract_id"`
	Title          string `json:"title,omitempty"`
	Type           string `json:"type,omitempty" enum:"project,job,general"`
	ClientID       string `json:"client_id"`
	ClientName     string `json:"client_name,omitempty"`
	ContractorID   string `json:"contractor_id"`
	ContractorName string `json:"contractor_name,omitempty"`
	TotalAmount    string `json:"total_amount" example:"25000.00"`
	Currency       string `json:"currency,omitempty" example:"INR"`
	Status         string `json:"status" enum:"active,completed"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title" maxLength:"300"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty" enum:"low,medium,high"`
	Status      string     `json:"status,omitempty" enum:"todo,in_progress,completed"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

type UpdateTaskRequest struct {
	Title         *string    `json:"title,omitempty" maxLength:"300"`
	Description   *string    `json:"description,omitempty"`
	Priority      *string    `json:"priority,omitempty" enum:"low,medium,high"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	ClearDeadline bool       `json:"clear_deadline,omitempty"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

type LogPaymentRequest struct {
	Amount        string `json:"amount" example:"5000.00"`
	Description   string `json:"description,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

type CreateRequestRequest struct {
	Amount  string `json:"amount" example:"2000.00"`
	Message string `json:"message,omitempty"`
}

type RejectRequestRequest struct {
	Reason string `json:"reason,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type WorkspaceResponse struct {
	ID                       string  `json:"id"`
	ContractID               string  `json:"contract_id"`
	Title                    string  `json:"title"`
	Type                     string  `json:"type" enum:"project,job,general"`
	ClientID                 string  `json:"client_id"`
	ClientName               string  `json:"client_name,omitempty"`
	ContractorID             string  `json:"contractor_id"`
	ContractorName           string  `json:"contractor_name,omitempty"`
	TotalAmount              string  `json:"total_amount"`
	Currency                 string  `json:"currency"`
	ContractStatus           string  `json:"contract_status" enum:"active,completed"`
	ClientMarkedComplete     bool    `json:"client_marked_complete"`
	ContractorMarkedComplete bool    `json:"contractor_marked_complete"`
	IsFullyCompleted         bool    `json:"is_fully_completed"`
	CreatedAt                string  `json:"created_at" format:"date-time"`
	CompletedAt              *string `json:"completed_at,omitempty" format:"date-time"`
}

type OpenWorkspaceResponse struct {
	Workspace WorkspaceResponse `json:"workspace"`
	Created   bool              `json:"created"`
}

type TaskCountsResponse struct {
	Total      int `json:"total_tasks"`
	Completed  int `json:"completed_tasks"`
	Pending    int `json:"pending_tasks"`
	Overdue    int `json:"overdue_tasks"`
	Todo       int `json:"todo_tasks"`
	InProgress int `json:"in_progress_tasks"`
}

type PaymentPointResponse struct {
	PaymentID   string `json:"payment_id"`
	Date        string `json:"date" format:"date"`
	Amount      string `json:"amount"`
	Cumulative  string `json:"cumulative"`
	Description string `json:"description,omitempty"`
}

type PaymentStatsResponse struct {
	Total        string                 `json:"total_amount"`
	Paid         string                 `json:"paid_amount"`
	Remaining    string                 `json:"remaining_amount"`
	Unconfirmed  string                 `json:"unconfirmed_amount"`
	Percentage   string                 `json:"payment_percentage"`
	PaymentCount int                    `json:"payment_count"`
	PendingCount int                    `json:"pending_count"`
	Overpaid     bool                   `json:"overpaid"`
	Timeline     []PaymentPointResponse `json:"timeline"`
}

type SummaryResponse struct {
	Workspace WorkspaceResponse    `json:"workspace"`
	Role      string               `json:"role" enum:"client,contractor"`
	Tasks     TaskCountsResponse   `json:"tasks"`
	Payments  PaymentStatsResponse `json:"payments"`
}

type AmountShareResponse struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type AnalyticsResponse struct {
	Tasks               TaskCountsResponse          `json:"tasks"`
	StatusDistribution  []analytics.StatusCount     `json:"status_distribution"`
	CompletionTimeline  []analytics.CompletionPoint `json:"completion_timeline"`
	Payments            PaymentStatsResponse        `json:"payments"`
	PaymentDistribution []AmountShareResponse       `json:"payment_distribution"`
}

type TaskResponse struct {
	ID              string           `json:"id"`
	WorkspaceID     string           `json:"workspace_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Priority        string           `json:"priority" enum:"low,medium,high"`
	Status          string           `json:"status" enum:"todo,in_progress,completed"`
	EffectiveStatus string           `json:"effective_status" enum:"todo,in_progress,completed,overdue"`
	IsOverdue       bool             `json:"is_overdue"`
	Deadline        *string          `json:"deadline,omitempty" format:"date-time"`
	AssignedTo      string           `json:"assigned_to"`
	CreatedBy       string           `json:"created_by"`
	CreatedAt       string           `json:"created_at" format:"date-time"`
	UpdatedAt       string           `json:"updated_at" format:"date-time"`
	CompletedAt     *string          `json:"completed_at,omitempty" format:"date-time"`
	CommentsCount   int              `json:"comments_count"`
	Comments        []domain.Comment `json:"comments,omitempty"`
}

type PaymentResponse struct {
	ID                  string  `json:"id"`
	WorkspaceID         string  `json:"workspace_id"`
	Amount              string  `json:"amount"`
	Description         string  `json:"description,omitempty"`
	PaymentMethod       string  `json:"payment_method,omitempty"`
	TransactionID       string  `json:"transaction_id,omitempty"`
	PaidBy              string  `json:"paid_by"`
	ReceivedBy          string  `json:"received_by"`
	RequestID           *string `json:"request_id,omitempty"`
	Status              string  `json:"status" enum:"pending,confirmed"`
	FreelancerConfirmed bool    `json:"freelancer_confirmed"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	ConfirmedAt         *string `json:"confirmed_at,omitempty" format:"date-time"`
}

type PaymentRequestResponse struct {
	ID              string  `json:"id"`
	WorkspaceID     string  `json:"workspace_id"`
	Amount          string  `json:"amount"`
	Message         string  `json:"message,omitempty"`
	Status          string  `json:"status" enum:"pending,approved,rejected"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	RequestedBy     string  `json:"requested_by"`
	ResolvedBy      *string `json:"resolved_by,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	ResolvedAt      *string `json:"resolved_at,omitempty" format:"date-time"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source" enum:"jwt,api_key,actor_header"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present on creation.
	Key string `json:"key,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedPayments struct {
	Items      []PaymentResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedRequests struct {
	Items      []PaymentRequestResponse `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// Conversion helpers

func workspaceResponse(w domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:                       w.ID,
		ContractID:               w.ContractID,
		Title:                    w.Title,
		Type:                     w.Type,
		ClientID:                 w.ClientID,
		ClientName:               w.ClientName,
		ContractorID:             w.ContractorID,
		ContractorName:           w.ContractorName,
		TotalAmount:              w.TotalAmount.StringFixed(2),
		Currency:                 w.Currency,
		ContractStatus:           w.ContractStatus,
		ClientMarkedComplete:     w.ClientMarkedComplete,
		ContractorMarkedComplete: w.ContractorMarkedComplete,
		IsFullyCompleted:         w.IsFullyCompleted(),
		CreatedAt:                w.CreatedAt,
		CompletedAt:              w.CompletedAt,
	}
}

func taskCountsResponse(c analytics.TaskCounts) TaskCountsResponse {
	return TaskCountsResponse(c)
}

func paymentStatsResponse(s analytics.PaymentStats) PaymentStatsResponse {
	res := PaymentStatsResponse{
		Total:        s.Total.StringFixed(2),
		Paid:         s.Paid.StringFixed(2),
		Remaining:    s.Remaining.StringFixed(2),
		Unconfirmed:  s.Unconfirmed.StringFixed(2),
		Percentage:   s.Percentage.StringFixed(2),
		PaymentCount: s.PaymentCount,
		PendingCount: s.PendingCount,
		Overpaid:     s.Overpaid,
		Timeline:     make([]PaymentPointResponse, 0, len(s.Timeline)),
	}
	for _, p := range s.Timeline {
		res.Timeline = append(res.Timeline, PaymentPointResponse{
			PaymentID:   p.PaymentID,
			Date:        p.Date,
			Amount:      p.Amount.StringFixed(2),
			Cumulative:  p.Cumulative.StringFixed(2),
			Description: p.Description,
		})
	}
	return res
}

func summaryResponse(s engine.Summary) SummaryResponse {
	return SummaryResponse{
		Workspace: workspaceResponse(s.Workspace),
		Role:      string(s.Role),
		Tasks:     taskCountsResponse(s.Tasks),
		Payments:  paymentStatsResponse(s.Payments),
	}
}

func analyticsResponse(r analytics.Report) AnalyticsResponse {
	res := AnalyticsResponse{
		Tasks:               taskCountsResponse(r.Tasks),
		StatusDistribution:  nonNilSlice(r.StatusDistribution),
		CompletionTimeline:  nonNilSlice(r.CompletionTimeline),
		Payments:            paymentStatsResponse(r.Payments),
		PaymentDistribution: []AmountShareResponse{},
	}
	for _, s := range r.PaymentDistribution {
		res.PaymentDistribution = append(res.PaymentDistribution, AmountShareResponse{Label: s.Label, Amount: s.Amount.StringFixed(2)})
	}
	return res
}

func taskResponse(t domain.Task, now time.Time, comments int) TaskResponse {
	if len(t.Comments) > comments {
		comments = len(t.Comments)
	}
	return TaskResponse{
		ID:              t.ID,
		WorkspaceID:     t.WorkspaceID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        t.Priority,
		Status:          t.Status,
		EffectiveStatus: t.EffectiveStatus(now),
		IsOverdue:       t.IsOverdue(now),
		Deadline:        t.Deadline,
		AssignedTo:      t.AssignedTo,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
		CommentsCount:   comments,
		Comments:        t.Comments,
	}
}

func paymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                  p.ID,
		WorkspaceID:         p.WorkspaceID,
		Amount:              p.Amount.StringFixed(2),
		Description:         p.Description,
		PaymentMethod:       p.PaymentMethod,
		TransactionID:       p.TransactionID,
		PaidBy:              p.PaidBy,
		ReceivedBy:          p.ReceivedBy,
		RequestID:           p.RequestID,
		Status:              p.Status(),
		FreelancerConfirmed: p.FreelancerConfirmed,
		CreatedAt:           p.CreatedAt,
		ConfirmedAt:         p.ConfirmedAt,
	}
}

func paymentRequestResponse(pr domain.PaymentRequest) PaymentRequestResponse {
	return PaymentRequestResponse{
		ID:              pr.ID,
		WorkspaceID:     pr.WorkspaceID,
		Amount:          pr.Amount.StringFixed(2),
		Message:         pr.Message,
		Status:          pr.Status,
		RejectionReason: pr.RejectionReason,
		RequestedBy:     pr.RequestedBy,
		ResolvedBy:      pr.ResolvedBy,
		CreatedAt:       pr.CreatedAt,
		ResolvedAt:      pr.ResolvedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		WorkspaceID: e.WorkspaceID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Payload:     decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
