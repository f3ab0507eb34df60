package repo

import (
	"context"
	"database/sql"

	"talentlink/internal/domain"
)

const workspaceColumns = `id,contract_id,title,type,client_id,COALESCE(client_name,''),contractor_id,COALESCE(contractor_name,''),total_amount,currency,contract_status,client_marked_complete,contractor_marked_complete,created_at,completed_at`

func scanWorkspace(row rowScanner) (domain.Workspace, error) {
	var w domain.Workspace
	var clientMarked, contractorMarked int
	var completedAt sql.NullString
	err := row.Scan(&w.ID, &w.ContractID, &w.Title, &w.Type, &w.ClientID, &w.ClientName, &w.ContractorID, &w.ContractorName,
		&w.TotalAmount, &w.Currency, &w.ContractStatus, &clientMarked, &contractorMarked, &w.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.ClientMarkedComplete = clientMarked == 1
	w.ContractorMarkedComplete = contractorMarked == 1
	w.CompletedAt = stringPtr(completedAt)
	return w, nil
}

func (r Repo) InsertWorkspaceTx(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workspaces(id,contract_id,title,type,client_id,client_name,contractor_id,contractor_name,total_amount,currency,contract_status,client_marked_complete,contractor_marked_complete,created_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.ContractID, w.Title, w.Type, w.ClientID, nullable(w.ClientName), w.ContractorID, nullable(w.ContractorName),
		w.TotalAmount.String(), w.Currency, w.ContractStatus, boolInt(w.ClientMarkedComplete), boolInt(w.ContractorMarkedComplete),
		w.CreatedAt, nullableStringPtr(w.CompletedAt))
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	return getWorkspace(ctx, r.DB, id)
}

func (r Repo) GetWorkspaceTx(ctx context.Context, tx *sql.Tx, id string) (domain.Workspace, error) {
	return getWorkspace(ctx, tx, id)
}

func getWorkspace(ctx context.Context, q querier, id string) (domain.Workspace, error) {
	return scanWorkspace(q.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id=?`, id))
}

func (r Repo) GetWorkspaceByContractTx(ctx context.Context, tx *sql.Tx, contractID string) (domain.Workspace, error) {
	return scanWorkspace(tx.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE contract_id=?`, contractID))
}

// ListWorkspacesForActor returns workspaces where the actor is either party, newest first.
func (r Repo) ListWorkspacesForActor(ctx context.Context, actorID string) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE client_id=? OR contractor_id=? ORDER BY created_at DESC, id DESC`, actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// MarkPartyCompleteTx flips one completion flag if it is still unset.
// It reports false when the flag was already set.
func (r Repo) MarkPartyCompleteTx(ctx context.Context, tx *sql.Tx, workspaceID string, client bool) (bool, error) {
	column := "contractor_marked_complete"
	if client {
		column = "client_marked_complete"
	}
	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET `+column+`=1 WHERE id=? AND `+column+`=0`, workspaceID)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// CompleteWorkspaceTx stamps completion once both flags are set.
func (r Repo) CompleteWorkspaceTx(ctx context.Context, tx *sql.Tx, workspaceID, completedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE workspaces SET completed_at=?, contract_status=?
WHERE id=? AND client_marked_complete=1 AND contractor_marked_complete=1 AND completed_at IS NULL`,
		completedAt, domain.ContractCompleted, workspaceID)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}
