package repo

import (
	"context"
	"database/sql"
	"strings"

	"talentlink/internal/domain"
)

const taskColumns = `id,workspace_id,title,COALESCE(description,''),priority,status,deadline,assigned_to,created_by,created_at,updated_at,completed_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var deadline, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Priority, &t.Status, &deadline,
		&t.AssignedTo, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Deadline = stringPtr(deadline)
	t.CompletedAt = stringPtr(completedAt)
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,workspace_id,title,description,priority,status,deadline,assigned_to,created_by,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Title, nullable(t.Description), t.Priority, t.Status, nullableStringPtr(t.Deadline),
		t.AssignedTo, t.CreatedBy, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

// UpdateTaskTx rewrites the mutable fields of a task. assigned_to and created_by are fixed at creation.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, status=?, deadline=?, updated_at=?, completed_at=? WHERE id=? AND workspace_id=?`,
		t.Title, nullable(t.Description), t.Priority, t.Status, nullableStringPtr(t.Deadline), t.UpdatedAt, nullableStringPtr(t.CompletedAt),
		t.ID, t.WorkspaceID)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, workspaceID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND workspace_id=?`, id, workspaceID)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, workspaceID, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, workspaceID, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, workspaceID, id string) (domain.Task, error) {
	return getTask(ctx, tx, workspaceID, id)
}

func getTask(ctx context.Context, q querier, workspaceID, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND workspace_id=?`, id, workspaceID))
	if err != nil {
		return t, err
	}
	comments, err := listComments(ctx, q, t.ID)
	if err != nil {
		return t, err
	}
	t.Comments = comments
	return t, nil
}

// TaskFilters narrows task listings. Status filters on the stored status;
// the overdue overlay is applied by the caller.
type TaskFilters struct {
	WorkspaceID string
	Status      string
	Priority    string
	Limit       int
	Cursor      Cursor
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return listTasks(ctx, r.DB, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	return listTasks(ctx, tx, f)
}

func listTasks(ctx context.Context, q querier, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if !f.Cursor.IsZero() {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertCommentTx(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_comments(id,task_id,author_id,author_name,text,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.AuthorName, c.Text, c.CreatedAt)
	return err
}

// ListComments returns a task's comments in insertion order.
func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	return listComments(ctx, r.DB, taskID)
}

func listComments(ctx context.Context, q querier, taskID string) ([]domain.Comment, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,task_id,author_id,author_name,text,created_at FROM task_comments WHERE task_id=? ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountCommentsByWorkspace maps task id to comment count.
func (r Repo) CountCommentsByWorkspace(ctx context.Context, workspaceID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.task_id, COUNT(*) FROM task_comments c JOIN tasks t ON t.id=c.task_id WHERE t.workspace_id=? GROUP BY c.task_id`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
