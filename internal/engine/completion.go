package engine

import (
	"context"
	"fmt"

	"talentlink/internal/domain"
	"talentlink/internal/engine/auth"
	"talentlink/internal/events"
)

// MarkComplete records the caller's acknowledgement that the engagement is
// done. Task and payment state are advisory and do not gate it. When the
// second party marks, the workspace is stamped completed.
func (e Engine) MarkComplete(ctx context.Context, workspaceID, actorID string) (domain.Workspace, error) {
	tx, ev, err := e.begin(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()

	w, role, err := e.workspaceTx(ctx, tx, workspaceID, actorID, "workspace.complete", auth.RoleClient, auth.RoleContractor)
	if err != nil {
		return domain.Workspace{}, err
	}
	ok, err := e.Repo.MarkPartyCompleteTx(ctx, tx, w.ID, role == auth.RoleClient)
	if err != nil {
		return domain.Workspace{}, err
	}
	if !ok {
		return domain.Workspace{}, conflict(CodeAlreadyMarked, "%s has already marked this workspace complete", role)
	}
	marker := w.PartyName(actorID)
	if err := ev.Append(ctx, tx, "workspace.marked_complete", w.ID, "workspace", w.ID, actorID, events.EventPayload{"role": string(role)}); err != nil {
		return domain.Workspace{}, err
	}
	if err := ev.Notify(ctx, tx, events.Notice{
		RecipientID: w.Counterparty(actorID),
		WorkspaceID: w.ID,
		Kind:        "workspace",
		Title:       "Workspace Completion Confirmation",
		Message:     fmt.Sprintf("%s has marked this engagement as complete.", marker),
		EntityKind:  "workspace",
		EntityID:    w.ID,
	}); err != nil {
		return domain.Workspace{}, err
	}

	now := e.stamp()
	completed, err := e.Repo.CompleteWorkspaceTx(ctx, tx, w.ID, now)
	if err != nil {
		return domain.Workspace{}, err
	}
	if completed {
		if err := ev.Append(ctx, tx, "workspace.completed", w.ID, "workspace", w.ID, actorID, nil); err != nil {
			return domain.Workspace{}, err
		}
		for _, party := range []string{w.ClientID, w.ContractorID} {
			if err := ev.Notify(ctx, tx, events.Notice{
				RecipientID: party,
				WorkspaceID: w.ID,
				Kind:        "workspace",
				Title:       "Workspace Completed!",
				Message:     "Both parties confirmed completion of this engagement.",
				EntityKind:  "workspace",
				EntityID:    w.ID,
			}); err != nil {
				return domain.Workspace{}, err
			}
		}
	}
	updated, err := e.Repo.GetWorkspaceTx(ctx, tx, w.ID)
	if err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return updated, nil
}
