package repo

import (
	"context"

	"talentlink/internal/domain"
)

// ListNotifications returns the recipient's notifications, newest first.
func (r Repo) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id,recipient_id,workspace_id,kind,title,message,COALESCE(entity_kind,''),COALESCE(entity_id,''),read,created_at FROM notifications WHERE recipient_id=?`
	args := []any{recipientID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.WorkspaceID, &n.Kind, &n.Title, &n.Message, &n.EntityKind, &n.EntityID, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read == 1
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead marks one of the recipient's notifications as read.
func (r Repo) MarkNotificationRead(ctx context.Context, recipientID, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND recipient_id=?`, id, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
