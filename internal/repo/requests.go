package repo

import (
	"context"
	"database/sql"
	"strings"

	"talentlink/internal/domain"
)

const requestColumns = `id,workspace_id,amount,COALESCE(message,''),status,rejection_reason,requested_by,resolved_by,created_at,resolved_at`

func scanRequest(row rowScanner) (domain.PaymentRequest, error) {
	var pr domain.PaymentRequest
	var reason, resolvedBy, resolvedAt sql.NullString
	err := row.Scan(&pr.ID, &pr.WorkspaceID, &pr.Amount, &pr.Message, &pr.Status, &reason, &pr.RequestedBy, &resolvedBy, &pr.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return pr, ErrNotFound
	}
	if err != nil {
		return pr, err
	}
	pr.RejectionReason = stringPtr(reason)
	pr.ResolvedBy = stringPtr(resolvedBy)
	pr.ResolvedAt = stringPtr(resolvedAt)
	return pr, nil
}

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, pr domain.PaymentRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payment_requests(id,workspace_id,amount,message,status,rejection_reason,requested_by,resolved_by,created_at,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		pr.ID, pr.WorkspaceID, pr.Amount.String(), nullable(pr.Message), pr.Status, nullableStringPtr(pr.RejectionReason),
		pr.RequestedBy, nullableStringPtr(pr.ResolvedBy), pr.CreatedAt, nullableStringPtr(pr.ResolvedAt))
	return err
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, workspaceID, id string) (domain.PaymentRequest, error) {
	return scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id=? AND workspace_id=?`, id, workspaceID))
}

// ResolveRequestTx moves a pending request to a terminal status.
// It reports false when the request was no longer pending.
func (r Repo) ResolveRequestTx(ctx context.Context, tx *sql.Tx, workspaceID, id, status string, reason *string, resolvedBy, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE payment_requests SET status=?, rejection_reason=?, resolved_by=?, resolved_at=?
WHERE id=? AND workspace_id=? AND status=?`,
		status, nullableStringPtr(reason), resolvedBy, resolvedAt, id, workspaceID, domain.RequestPending)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

type RequestFilters struct {
	WorkspaceID string
	Status      string
	Limit       int
	Cursor      Cursor
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.PaymentRequest, error) {
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
	if !f.Cursor.IsZero() {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM payment_requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PaymentRequest
	for rows.Next() {
		pr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, pr)
	}
	return res, rows.Err()
}
