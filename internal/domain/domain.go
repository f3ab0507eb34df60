package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the storage and wire format for every timestamp.
const TimeLayout = time.RFC3339

const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskOverdue    = "overdue"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
)

const (
	ContractActive    = "active"
	ContractCompleted = "completed"
)

const (
	WorkspaceProject = "project"
	WorkspaceJob     = "job"
	WorkspaceGeneral = "general"
)

type Workspace struct {
	ID                       string          `json:"id"`
	ContractID               string          `json:"contract_id"`
	Title                    string          `json:"title"`
	Type                     string          `json:"type" enum:"project,job,general"`
	ClientID                 string          `json:"client_id"`
	ClientName               string          `json:"client_name,omitempty"`
	ContractorID             string          `json:"contractor_id"`
	ContractorName           string          `json:"contractor_name,omitempty"`
	TotalAmount              decimal.Decimal `json:"total_amount"`
	Currency                 string          `json:"currency"`
	ContractStatus           string          `json:"contract_status" enum:"active,completed"`
	ClientMarkedComplete     bool            `json:"client_marked_complete"`
	ContractorMarkedComplete bool            `json:"contractor_marked_complete"`
	CreatedAt                string          `json:"created_at" format:"date-time"`
	CompletedAt              *string         `json:"completed_at,omitempty" format:"date-time"`
}

// IsFullyCompleted is derived from both acknowledgement flags and never stored.
func (w Workspace) IsFullyCompleted() bool {
	return w.ClientMarkedComplete && w.ContractorMarkedComplete
}

// PartyName returns the display name recorded for a party, falling back to the id.
func (w Workspace) PartyName(actorID string) string {
	switch actorID {
	case w.ClientID:
		if w.ClientName != "" {
			return w.ClientName
		}
	case w.ContractorID:
		if w.ContractorName != "" {
			return w.ContractorName
		}
	}
	return actorID
}

// Counterparty returns the other party of the workspace, or "" for outsiders.
func (w Workspace) Counterparty(actorID string) string {
	switch actorID {
	case w.ClientID:
		return w.ContractorID
	case w.ContractorID:
		return w.ClientID
	}
	return ""
}

type Task struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority" enum:"low,medium,high"`
	Status      string    `json:"status" enum:"todo,in_progress,completed"`
	Deadline    *string   `json:"deadline,omitempty" format:"date-time"`
	AssignedTo  string    `json:"assigned_to"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
	CompletedAt *string   `json:"completed_at,omitempty" format:"date-time"`
	Comments    []Comment `json:"comments,omitempty"`
}

// IsOverdue reports whether the deadline has passed on a task that is not completed.
func (t Task) IsOverdue(now time.Time) bool {
	if t.Status == TaskCompleted || t.Deadline == nil {
		return false
	}
	deadline, err := ParseTime(*t.Deadline)
	if err != nil {
		return false
	}
	return deadline.Before(now)
}

// EffectiveStatus overlays the overdue condition on the stored status.
func (t Task) EffectiveStatus(now time.Time) string {
	if t.IsOverdue(now) {
		return TaskOverdue
	}
	return t.Status
}

type Comment struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Payment struct {
	ID                  string          `json:"id"`
	WorkspaceID         string          `json:"workspace_id"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description,omitempty"`
	PaymentMethod       string          `json:"payment_method,omitempty"`
	TransactionID       string          `json:"transaction_id,omitempty"`
	PaidBy              string          `json:"paid_by"`
	ReceivedBy          string          `json:"received_by"`
	RequestID           *string         `json:"request_id,omitempty"`
	FreelancerConfirmed bool            `json:"freelancer_confirmed"`
	CreatedAt           string          `json:"created_at" format:"date-time"`
	ConfirmedAt         *string         `json:"confirmed_at,omitempty" format:"date-time"`
}

func (p Payment) Status() string {
	if p.FreelancerConfirmed {
		return PaymentConfirmed
	}
	return PaymentPending
}

type PaymentRequest struct {
	ID              string          `json:"id"`
	WorkspaceID     string          `json:"workspace_id"`
	Amount          decimal.Decimal `json:"amount"`
	Message         string          `json:"message,omitempty"`
	Status          string          `json:"status" enum:"pending,approved,rejected"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	RequestedBy     string          `json:"requested_by"`
	ResolvedBy      *string         `json:"resolved_by,omitempty"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	ResolvedAt      *string         `json:"resolved_at,omitempty" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload,omitempty"`
}

type Notification struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	WorkspaceID string `json:"workspace_id"`
	Kind        string `json:"kind" enum:"workspace,task,payment"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	EntityKind  string `json:"entity_kind,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}
