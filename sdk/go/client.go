package talentlinksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal talentlink HTTP API client scoped to one workspace.
// Amounts are decimal strings, exactly as the API sends them.
type Client struct {
	BaseURL     string
	WorkspaceID string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path, e.g. http://host/v0.
func New(baseURL, workspaceID string) *Client {
	return &Client{
		BaseURL:     baseURL,
		WorkspaceID: workspaceID,
		Timeout:     10 * time.Second,
	}
}

type Task struct {
	ID              string  `json:"id"`
	WorkspaceID     string  `json:"workspace_id"`
	Title           string  `json:"title"`
	Priority        string  `json:"priority"`
	Status          string  `json:"status"`
	EffectiveStatus string  `json:"effective_status"`
	Deadline        *string `json:"deadline,omitempty"`
	AssignedTo      string  `json:"assigned_to"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

type Payment struct {
	ID                  string `json:"id"`
	Amount              string `json:"amount"`
	PaymentMethod       string `json:"payment_method,omitempty"`
	TransactionID       string `json:"transaction_id,omitempty"`
	Status              string `json:"status"`
	FreelancerConfirmed bool   `json:"freelancer_confirmed"`
}

type PaymentRequest struct {
	ID              string  `json:"id"`
	Amount          string  `json:"amount"`
	Message         string  `json:"message,omitempty"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

type PaymentStats struct {
	Total        string `json:"total_amount"`
	Paid         string `json:"paid_amount"`
	Remaining    string `json:"remaining_amount"`
	Percentage   string `json:"payment_percentage"`
	PaymentCount int    `json:"payment_count"`
	PendingCount int    `json:"pending_count"`
}

type Workspace struct {
	ID                       string `json:"id"`
	ContractID               string `json:"contract_id"`
	ContractStatus           string `json:"contract_status"`
	ClientMarkedComplete     bool   `json:"client_marked_complete"`
	ContractorMarkedComplete bool   `json:"contractor_marked_complete"`
	IsFullyCompleted         bool   `json:"is_fully_completed"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code carries the envelope's error code,
// e.g. already_confirmed.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task. priority may be empty.
func (c *Client) CreateTask(ctx context.Context, title, priority string) (Task, error) {
	body := map[string]any{"title": title}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.workspacePath("tasks"), body, &resp)
	return resp, err
}

// SetTaskStatus moves a task; only the contractor may call it.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	endpoint := c.workspacePath(fmt.Sprintf("tasks/%s/status", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// LogPayment records a client payment that still needs contractor confirmation.
func (c *Client) LogPayment(ctx context.Context, amount, method, transactionID string) (Payment, error) {
	body := map[string]any{"amount": amount}
	if method != "" {
		body["payment_method"] = method
	}
	if transactionID != "" {
		body["transaction_id"] = transactionID
	}
	var resp Payment
	err := c.do(ctx, http.MethodPost, c.workspacePath("payments"), body, &resp)
	return resp, err
}

func (c *Client) ConfirmPayment(ctx context.Context, paymentID string) (Payment, error) {
	var resp Payment
	endpoint := c.workspacePath(fmt.Sprintf("payments/%s/confirm", url.PathEscape(paymentID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) PaymentStats(ctx context.Context) (PaymentStats, error) {
	var resp PaymentStats
	err := c.do(ctx, http.MethodGet, c.workspacePath("payments/stats"), nil, &resp)
	return resp, err
}

func (c *Client) RequestPayment(ctx context.Context, amount, message string) (PaymentRequest, error) {
	var resp PaymentRequest
	err := c.do(ctx, http.MethodPost, c.workspacePath("payment-requests"), map[string]any{"amount": amount, "message": message}, &resp)
	return resp, err
}

func (c *Client) ApproveRequest(ctx context.Context, requestID string) (PaymentRequest, error) {
	var resp PaymentRequest
	endpoint := c.workspacePath(fmt.Sprintf("payment-requests/%s/approve", url.PathEscape(requestID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) RejectRequest(ctx context.Context, requestID, reason string) (PaymentRequest, error) {
	var resp PaymentRequest
	endpoint := c.workspacePath(fmt.Sprintf("payment-requests/%s/reject", url.PathEscape(requestID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, &resp)
	return resp, err
}

// MarkComplete records the caller's completion flag.
func (c *Client) MarkComplete(ctx context.Context) (Workspace, error) {
	var resp Workspace
	err := c.do(ctx, http.MethodPost, c.workspacePath("complete"), nil, &resp)
	return resp, err
}

// Events returns recent audit events, optionally filtered by type.
func (c *Client) Events(ctx context.Context, eventType string, limit int) ([]Event, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.workspacePath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) workspacePath(p string) string {
	return fmt.Sprintf("workspaces/%s/%s", url.PathEscape(c.WorkspaceID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
