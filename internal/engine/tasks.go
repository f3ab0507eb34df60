package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"talentlink/internal/domain"
	"talentlink/internal/engine/auth"
	"talentlink/internal/events"
	"talentlink/internal/repo"
)

const maxTitleLength = 300

// TaskCreateOptions are parameters for creating a task. There is no assignee
// field: tasks are always assigned to the workspace contractor.
type TaskCreateOptions struct {
	WorkspaceID string
	Title       string
	Description string
	Priority    string
	Status      string
	Deadline    *time.Time
	ActorID     string
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", invalid("title", "must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

func validatePriority(p string) (string, error) {
	switch p {
	case "":
		return domain.PriorityMedium, nil
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh:
		return p, nil
	}
	return "", invalid("priority", "must be one of low, medium, high")
}

// ensureTaskTransition accepts any move among the settable statuses. overdue
// is derived from the deadline and can never be set.
func ensureTaskTransition(old, next string) error {
	switch next {
	case domain.TaskTodo, domain.TaskInProgress, domain.TaskCompleted:
	case domain.TaskOverdue:
		return invalid("status", "overdue is derived from the deadline and cannot be set")
	default:
		return invalid("status", "unknown status %q", next)
	}
	switch old {
	case "", domain.TaskTodo, domain.TaskInProgress, domain.TaskCompleted:
		return nil
	}
	return fmt.Errorf("task has unknown stored status %q", old)
}

// applyStatus keeps completed_at in step with the status.
func applyStatus(t *domain.Task, status, now string) {
	switch {
	case status == domain.TaskCompleted && t.Status != domain.TaskCompleted:
		t.CompletedAt = &now
	case status != domain.TaskCompleted:
		t.CompletedAt = nil
	}
	t.Status = status
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title, err := validateTitle(opts.Title)
	if err != nil {
		return domain.Task{}, err
	}
	priority, err := validatePriority(opts.Priority)
	if err != nil {
		return domain.Task{}, err
	}
	status := opts.Status
	if status == "" {
		status = domain.TaskTodo
	}
	if err := ensureTaskTransition("", status); err != nil {
		return domain.Task{}, err
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, opts.WorkspaceID, opts.ActorID, "task.create")
	if err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	t := domain.Task{
		ID:          uuid.NewString(),
		WorkspaceID: w.ID,
		Title:       title,
		Description: strings.TrimSpace(opts.Description),
		Priority:    priority,
		AssignedTo:  w.ContractorID,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.Deadline != nil {
		d := domain.FormatTime(*opts.Deadline)
		t.Deadline = &d
	}
	applyStatus(&t, status, now)
	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := ev.Append(ctx, tx, "task.created", w.ID, "task", t.ID, opts.ActorID, events.EventPayload{
		"title":    t.Title,
		"status":   t.Status,
		"priority": t.Priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if opts.ActorID != w.ContractorID {
		if err := ev.Notify(ctx, tx, events.Notice{
			RecipientID: w.ContractorID,
			WorkspaceID: w.ID,
			Kind:        "task",
			Title:       "New Task Assigned",
			Message:     fmt.Sprintf("You have been assigned: %s", t.Title),
			EntityKind:  "task",
			EntityID:    t.ID,
		}); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed field edits. Nil fields are left unchanged.
type TaskUpdateOptions struct {
	WorkspaceID   string
	ID            string
	Title         *string
	Description   *string
	Priority      *string
	Deadline      *time.Time
	ClearDeadline bool
	ActorID       string
}

// UpdateTask edits task fields. Either party may edit; status has its own operation.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, opts.WorkspaceID, opts.ActorID, "task.update")
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, w.ID, opts.ID)
	if err != nil {
		return domain.Task{}, notFound(err, "task", opts.ID)
	}
	changed := []string{}
	if opts.Title != nil {
		title, err := validateTitle(*opts.Title)
		if err != nil {
			return domain.Task{}, err
		}
		t.Title = title
		changed = append(changed, "title")
	}
	if opts.Description != nil {
		t.Description = strings.TrimSpace(*opts.Description)
		changed = append(changed, "description")
	}
	if opts.Priority != nil {
		p, err := validatePriority(*opts.Priority)
		if err != nil {
			return domain.Task{}, err
		}
		t.Priority = p
		changed = append(changed, "priority")
	}
	switch {
	case opts.ClearDeadline:
		t.Deadline = nil
		changed = append(changed, "deadline")
	case opts.Deadline != nil:
		d := domain.FormatTime(*opts.Deadline)
		t.Deadline = &d
		changed = append(changed, "deadline")
	}
	if len(changed) == 0 {
		return t, nil
	}
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, notFound(err, "task", t.ID)
	}
	if err := ev.Append(ctx, tx, "task.updated", w.ID, "task", t.ID, opts.ActorID, events.EventPayload{"fields": changed}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTaskStatus moves a task among todo, in_progress and completed.
// Only the contractor drives task status.
func (e Engine) UpdateTaskStatus(ctx context.Context, workspaceID, taskID, status, actorID string) (domain.Task, error) {
	if err := ensureTaskTransition("", status); err != nil {
		return domain.Task{}, err
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, workspaceID, actorID, "task.status", auth.RoleContractor)
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, w.ID, taskID)
	if err != nil {
		return domain.Task{}, notFound(err, "task", taskID)
	}
	if err := ensureTaskTransition(t.Status, status); err != nil {
		return domain.Task{}, err
	}
	old := t.Status
	now := e.stamp()
	applyStatus(&t, status, now)
	t.UpdatedAt = now
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, notFound(err, "task", t.ID)
	}
	if err := ev.Append(ctx, tx, "task.status", w.ID, "task", t.ID, actorID, events.EventPayload{"from": old, "to": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.TaskCompleted && old != domain.TaskCompleted {
		if err := ev.Notify(ctx, tx, events.Notice{
			RecipientID: w.ClientID,
			WorkspaceID: w.ID,
			Kind:        "task",
			Title:       "Task Completed",
			Message:     fmt.Sprintf("%s completed: %s", w.PartyName(actorID), t.Title),
			EntityKind:  "task",
			EntityID:    t.ID,
		}); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AddComment appends to the task's comment sequence without touching its status.
func (e Engine) AddComment(ctx context.Context, workspaceID, taskID, text, actorID string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, invalid("text", "is required")
	}
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, workspaceID, actorID, "task.comment")
	if err != nil {
		return domain.Comment{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, w.ID, taskID)
	if err != nil {
		return domain.Comment{}, notFound(err, "task", taskID)
	}
	c := domain.Comment{
		ID:         uuid.NewString(),
		TaskID:     t.ID,
		AuthorID:   actorID,
		AuthorName: w.PartyName(actorID),
		Text:       text,
		CreatedAt:  e.stamp(),
	}
	if err := e.Repo.InsertCommentTx(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := ev.Append(ctx, tx, "task.comment", w.ID, "task", t.ID, actorID, events.EventPayload{"comment_id": c.ID}); err != nil {
		return domain.Comment{}, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: w.Counterparty(actorID),
		WorkspaceID: w.ID,
		Kind:        "task",
		Title:       "New Comment",
		Message:     fmt.Sprintf("%s commented on %s", c.AuthorName, t.Title),
		EntityKind:  "task",
		EntityID:    t.ID,
	}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// DeleteTask removes the task and its comments. Nothing about it is retained.
func (e Engine) DeleteTask(ctx context.Context, workspaceID, taskID, actorID string) error {
	tx, _, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	w, _, err := e.workspaceTx(ctx, tx, workspaceID, actorID, "task.delete")
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTaskTx(ctx, tx, w.ID, taskID); err != nil {
		return notFound(err, "task", taskID)
	}
	return tx.Commit()
}

func (e Engine) GetTask(ctx context.Context, workspaceID, taskID, actorID string) (domain.Task, error) {
	if _, _, err := e.GetWorkspace(ctx, workspaceID, actorID); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, workspaceID, taskID)
	if err != nil {
		return domain.Task{}, notFound(err, "task", taskID)
	}
	return t, nil
}

// TaskListOptions filter a task listing. Status matches the effective status,
// so "overdue" selects past-deadline tasks that are not completed.
type TaskListOptions struct {
	WorkspaceID string
	Status      string
	Priority    string
	Limit       int
	Cursor      repo.Cursor
	ActorID     string
}

func (e Engine) ListTasks(ctx context.Context, opts TaskListOptions) ([]domain.Task, error) {
	if _, _, err := e.GetWorkspace(ctx, opts.WorkspaceID, opts.ActorID); err != nil {
		return nil, err
	}
	f := repo.TaskFilters{WorkspaceID: opts.WorkspaceID, Priority: opts.Priority, Cursor: opts.Cursor}
	switch opts.Status {
	case "":
		f.Limit = opts.Limit
		return e.Repo.ListTasks(ctx, f)
	case domain.TaskTodo, domain.TaskInProgress, domain.TaskCompleted:
		f.Status = opts.Status
	case domain.TaskOverdue:
	default:
		return nil, invalid("status", "unknown status %q", opts.Status)
	}
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	now := e.now()
	res := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.EffectiveStatus(now) != opts.Status {
			continue
		}
		res = append(res, t)
		if opts.Limit > 0 && len(res) == opts.Limit {
			break
		}
	}
	return res, nil
}
