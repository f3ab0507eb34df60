package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"talentlink/internal/analytics"
	"talentlink/internal/config"
	"talentlink/internal/domain"
	"talentlink/internal/engine/auth"
	"talentlink/internal/events"
	"talentlink/internal/repo"
)

// SystemActor attributes mutations that originate outside a party's request,
// such as contract activation backfills.
const SystemActor = "system"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// begin opens a write transaction whose event writer shares the engine clock.
func (e Engine) begin(ctx context.Context) (*sql.Tx, events.Writer, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, events.Writer{}, err
	}
	w := e.Events
	w.Now = e.now
	return tx, w, nil
}

// ContractActivation describes a contract entering the active state.
type ContractActivation struct {
	ContractID     string          `json:"contract_id" yaml:"contract_id"`
	Title          string          `json:"title" yaml:"title"`
	Type           string          `json:"type,omitempty" yaml:"type"`
	ClientID       string          `json:"client_id" yaml:"client_id"`
	ClientName     string          `json:"client_name,omitempty" yaml:"client_name"`
	ContractorID   string          `json:"contractor_id" yaml:"contractor_id"`
	ContractorName string          `json:"contractor_name,omitempty" yaml:"contractor_name"`
	TotalAmount    decimal.Decimal `json:"total_amount" yaml:"total_amount"`
	Currency       string          `json:"currency,omitempty" yaml:"currency"`
	Status         string          `json:"status" yaml:"status"`
}

func (c ContractActivation) validate() error {
	switch {
	case strings.TrimSpace(c.ContractID) == "":
		return invalid("contract_id", "is required")
	case strings.TrimSpace(c.ClientID) == "":
		return invalid("client_id", "is required")
	case strings.TrimSpace(c.ContractorID) == "":
		return invalid("contractor_id", "is required")
	case c.ClientID == c.ContractorID:
		return invalid("contractor_id", "must differ from client_id")
	case c.Status != domain.ContractActive:
		return invalid("status", "contract must be %s to open a workspace, got %q", domain.ContractActive, c.Status)
	case c.TotalAmount.IsNegative():
		return invalid("total_amount", "must not be negative")
	}
	switch c.Type {
	case "", domain.WorkspaceProject, domain.WorkspaceJob, domain.WorkspaceGeneral:
	default:
		return invalid("type", "must be one of project, job, general")
	}
	if c.Currency != "" && len(c.Currency) != 3 {
		return invalid("currency", "must be a 3-letter ISO code")
	}
	return nil
}

// OpenWorkspace creates the workspace for an activated contract. It is
// idempotent per contract: a repeated activation returns the existing
// workspace with created=false.
func (e Engine) OpenWorkspace(ctx context.Context, c ContractActivation, actorID string) (domain.Workspace, bool, error) {
	if err := c.validate(); err != nil {
		return domain.Workspace{}, false, err
	}
	if actorID != SystemActor && actorID != c.ClientID && actorID != c.ContractorID {
		return domain.Workspace{}, false, auth.ForbiddenError{Action: "workspace.open"}
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Workspace{}, false, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.GetWorkspaceByContractTx(ctx, tx, c.ContractID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workspace{}, false, err
	}
	w := domain.Workspace{
		ID:             uuid.NewString(),
		ContractID:     c.ContractID,
		Title:          strings.TrimSpace(c.Title),
		Type:           c.Type,
		ClientID:       c.ClientID,
		ClientName:     c.ClientName,
		ContractorID:   c.ContractorID,
		ContractorName: c.ContractorName,
		TotalAmount:    c.TotalAmount,
		Currency:       strings.ToUpper(c.Currency),
		ContractStatus: domain.ContractActive,
		CreatedAt:      e.stamp(),
	}
	if w.Type == "" {
		w.Type = domain.WorkspaceProject
	}
	if w.Currency == "" {
		w.Currency = strings.ToUpper(e.Config.Ledger.Currency)
	}
	if w.Title == "" {
		w.Title = "Contract " + c.ContractID
	}
	if err := e.Repo.InsertWorkspaceTx(ctx, tx, w); err != nil {
		return domain.Workspace{}, false, fmt.Errorf("insert workspace: %w", err)
	}
	if err := ev.Append(ctx, tx, "workspace.opened", w.ID, "workspace", w.ID, actorID, events.EventPayload{
		"contract_id":  w.ContractID,
		"total_amount": w.TotalAmount.String(),
		"currency":     w.Currency,
	}); err != nil {
		return domain.Workspace{}, false, err
	}
	for _, party := range []string{w.ClientID, w.ContractorID} {
		if err := ev.Notify(ctx, tx, events.Notice{
			RecipientID: party,
			WorkspaceID: w.ID,
			Kind:        "workspace",
			Title:       "Workspace Ready",
			Message:     fmt.Sprintf("A workspace is open for %s.", w.Title),
			EntityKind:  "workspace",
			EntityID:    w.ID,
		}); err != nil {
			return domain.Workspace{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, false, err
	}
	return w, true, nil
}

// BackfillResult reports the outcome of opening workspaces for a batch of contracts.
type BackfillResult struct {
	Created []string          `json:"created"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Backfill opens workspaces for active contracts that lack one. Non-active
// contracts are skipped and per-contract failures do not stop the batch.
func (e Engine) Backfill(ctx context.Context, contracts []ContractActivation) (BackfillResult, error) {
	res := BackfillResult{Created: []string{}, Skipped: []string{}}
	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.Status != domain.ContractActive {
			res.Skipped = append(res.Skipped, c.ContractID)
			continue
		}
		_, created, err := e.OpenWorkspace(ctx, c, SystemActor)
		if err != nil {
			if res.Failed == nil {
				res.Failed = map[string]string{}
			}
			res.Failed[c.ContractID] = err.Error()
			e.logger().Warn("backfill contract failed", "contract_id", c.ContractID, "error", err)
			continue
		}
		if created {
			res.Created = append(res.Created, c.ContractID)
		} else {
			res.Skipped = append(res.Skipped, c.ContractID)
		}
	}
	return res, nil
}

// GetWorkspace returns the workspace and the caller's role in it.
func (e Engine) GetWorkspace(ctx context.Context, workspaceID, actorID string) (domain.Workspace, auth.Role, error) {
	w, err := e.Repo.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return w, auth.RoleNone, notFound(err, "workspace", workspaceID)
	}
	role, err := auth.Require(w, actorID, "workspace.read")
	if err != nil {
		return domain.Workspace{}, role, err
	}
	return w, role, nil
}

func (e Engine) ListWorkspaces(ctx context.Context, actorID string) ([]domain.Workspace, error) {
	if actorID == "" {
		return nil, invalid("actor_id", "is required")
	}
	return e.Repo.ListWorkspacesForActor(ctx, actorID)
}

// workspaceTx loads the workspace inside tx and checks the caller's role.
func (e Engine) workspaceTx(ctx context.Context, tx *sql.Tx, workspaceID, actorID, action string, allowed ...auth.Role) (domain.Workspace, auth.Role, error) {
	w, err := e.Repo.GetWorkspaceTx(ctx, tx, workspaceID)
	if err != nil {
		return w, auth.RoleNone, notFound(err, "workspace", workspaceID)
	}
	role, err := auth.Require(w, actorID, action, allowed...)
	if err != nil {
		return w, role, err
	}
	return w, role, nil
}

// snapshot reads a workspace with all of its tasks and payments inside one
// transaction so derived figures never mix pre- and post-mutation state.
func (e Engine) snapshot(ctx context.Context, workspaceID, actorID, action string) (analytics.Snapshot, auth.Role, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return analytics.Snapshot{}, auth.RoleNone, err
	}
	defer tx.Rollback()
	w, role, err := e.workspaceTx(ctx, tx, workspaceID, actorID, action)
	if err != nil {
		return analytics.Snapshot{}, role, err
	}
	tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{WorkspaceID: w.ID})
	if err != nil {
		return analytics.Snapshot{}, role, err
	}
	payments, err := e.Repo.ListPaymentsTx(ctx, tx, repo.PaymentFilters{WorkspaceID: w.ID})
	if err != nil {
		return analytics.Snapshot{}, role, err
	}
	if err := tx.Commit(); err != nil {
		return analytics.Snapshot{}, role, err
	}
	return analytics.Snapshot{Workspace: w, Tasks: tasks, Payments: payments, Now: e.now()}, role, nil
}

func (e Engine) paymentStats(s analytics.Snapshot) analytics.PaymentStats {
	stats := analytics.ComputePaymentStats(s.Workspace.TotalAmount, s.Payments)
	if stats.Overpaid {
		e.logger().Warn("confirmed payments exceed contracted total",
			"workspace_id", s.Workspace.ID,
			"total_amount", s.Workspace.TotalAmount.String(),
			"paid_amount", stats.Paid.String())
	}
	return stats
}

// PaymentStats returns paid/remaining totals and the cumulative confirmed-payment series.
func (e Engine) PaymentStats(ctx context.Context, workspaceID, actorID string) (analytics.PaymentStats, error) {
	s, _, err := e.snapshot(ctx, workspaceID, actorID, "payment.stats")
	if err != nil {
		return analytics.PaymentStats{}, err
	}
	return e.paymentStats(s), nil
}

// Analytics computes every derived view over one snapshot.
func (e Engine) Analytics(ctx context.Context, workspaceID, actorID string) (analytics.Report, error) {
	s, _, err := e.snapshot(ctx, workspaceID, actorID, "workspace.analytics")
	if err != nil {
		return analytics.Report{}, err
	}
	report := analytics.Compute(s)
	report.Payments = e.paymentStats(s)
	return report, nil
}

// Summary is the workspace dashboard: flags, task counts and ledger totals.
type Summary struct {
	Workspace        domain.Workspace       `json:"workspace"`
	Role             auth.Role              `json:"role"`
	IsFullyCompleted bool                   `json:"is_fully_completed"`
	Tasks            analytics.TaskCounts   `json:"tasks"`
	Payments         analytics.PaymentStats `json:"payments"`
}

func (e Engine) Summary(ctx context.Context, workspaceID, actorID string) (Summary, error) {
	s, role, err := e.snapshot(ctx, workspaceID, actorID, "workspace.read")
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Workspace:        s.Workspace,
		Role:             role,
		IsFullyCompleted: s.Workspace.IsFullyCompleted(),
		Tasks:            analytics.CountTasks(s.Tasks, s.Now),
		Payments:         e.paymentStats(s),
	}, nil
}

// ListEvents returns the workspace audit trail, newest first.
func (e Engine) ListEvents(ctx context.Context, workspaceID, actorID, evtType string, limit int) ([]domain.Event, error) {
	if _, _, err := e.GetWorkspace(ctx, workspaceID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, workspaceID, evtType, limit)
}
