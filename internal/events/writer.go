package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Writer appends audit events inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, workspaceID, entityKind, entityID, actorID string, payload EventPayload) error {
	ts := w.now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,workspace_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(workspaceID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Notice is an in-app message for one party of a workspace.
type Notice struct {
	RecipientID string
	WorkspaceID string
	Kind        string
	Title       string
	Message     string
	EntityKind  string
	EntityID    string
}

// Notify stores a notification for the recipient. An empty recipient is a no-op.
func (w Writer) Notify(ctx context.Context, tx *sql.Tx, n Notice) error {
	if n.RecipientID == "" {
		return nil
	}
	ts := w.now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,recipient_id,workspace_id,kind,title,message,entity_kind,entity_id,read,created_at) VALUES (?,?,?,?,?,?,?,?,0,?)`,
		uuid.NewString(), n.RecipientID, n.WorkspaceID, n.Kind, n.Title, n.Message, nullable(n.EntityKind), nullable(n.EntityID), ts)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
