package repo

import (
	"context"
	"database/sql"
	"strings"

	"talentlink/internal/domain"
)

const paymentColumns = `id,workspace_id,amount,COALESCE(description,''),COALESCE(payment_method,''),COALESCE(transaction_id,''),paid_by,received_by,request_id,freelancer_confirmed,created_at,confirmed_at`

func scanPayment(row rowScanner) (domain.Payment, error) {
	var p domain.Payment
	var requestID, confirmedAt sql.NullString
	var confirmed int
	err := row.Scan(&p.ID, &p.WorkspaceID, &p.Amount, &p.Description, &p.PaymentMethod, &p.TransactionID,
		&p.PaidBy, &p.ReceivedBy, &requestID, &confirmed, &p.CreatedAt, &confirmedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.RequestID = stringPtr(requestID)
	p.FreelancerConfirmed = confirmed == 1
	p.ConfirmedAt = stringPtr(confirmedAt)
	return p, nil
}

func (r Repo) InsertPaymentTx(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(id,workspace_id,amount,description,payment_method,transaction_id,paid_by,received_by,request_id,freelancer_confirmed,created_at,confirmed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.WorkspaceID, p.Amount.String(), nullable(p.Description), nullable(p.PaymentMethod), nullable(p.TransactionID),
		p.PaidBy, p.ReceivedBy, nullableStringPtr(p.RequestID), boolInt(p.FreelancerConfirmed), p.CreatedAt, nullableStringPtr(p.ConfirmedAt))
	return err
}

func (r Repo) GetPaymentTx(ctx context.Context, tx *sql.Tx, workspaceID, id string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=? AND workspace_id=?`, id, workspaceID))
}

// ConfirmPaymentTx sets the confirmation flag only if it is still unset.
// It reports false when another caller confirmed first.
func (r Repo) ConfirmPaymentTx(ctx context.Context, tx *sql.Tx, workspaceID, id, confirmedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE payments SET freelancer_confirmed=1, confirmed_at=? WHERE id=? AND workspace_id=? AND freelancer_confirmed=0`,
		confirmedAt, id, workspaceID)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// PaymentByRequestTx returns the payment linked to a request, if any.
func (r Repo) PaymentByRequestTx(ctx context.Context, tx *sql.Tx, requestID string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE request_id=?`, requestID))
}

func (r Repo) PaymentByTransactionTx(ctx context.Context, tx *sql.Tx, workspaceID, method, transactionID string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE workspace_id=? AND payment_method=? AND transaction_id=?`,
		workspaceID, method, transactionID))
}

type PaymentFilters struct {
	WorkspaceID string
	// Confirmed narrows to confirmed (true) or unconfirmed (false) payments when set.
	Confirmed *bool
	Limit     int
	Cursor    Cursor
}

func (r Repo) ListPayments(ctx context.Context, f PaymentFilters) ([]domain.Payment, error) {
	return listPayments(ctx, r.DB, f)
}

func (r Repo) ListPaymentsTx(ctx context.Context, tx *sql.Tx, f PaymentFilters) ([]domain.Payment, error) {
	return listPayments(ctx, tx, f)
}

func listPayments(ctx context.Context, q querier, f PaymentFilters) ([]domain.Payment, error) {
	var clauses []string
	var args []any
	if f.WorkspaceID != "" {
		clauses = append(clauses, "workspace_id=?")
		args = append(args, f.WorkspaceID)
	}
	if f.Confirmed != nil {
		clauses = append(clauses, "freelancer_confirmed=?")
		args = append(args, boolInt(*f.Confirmed))
	}
	if !f.Cursor.IsZero() {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.Cursor.CreatedAt, f.Cursor.CreatedAt, f.Cursor.ID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + paymentColumns + ` FROM payments ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
