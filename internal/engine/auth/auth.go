package auth

import (
	"fmt"
	"strings"

	"talentlink/internal/domain"
)

// Role is the caller's relation to a workspace. It is always derived from the
// workspace's stored party ids, never from credentials.
type Role string

const (
	RoleNone       Role = ""
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

// ForbiddenError indicates the caller lacks the role an action requires.
type ForbiddenError struct {
	Action   string
	Required []Role
}

func (e ForbiddenError) Error() string {
	if len(e.Required) == 0 {
		return fmt.Sprintf("%s requires workspace membership", e.Action)
	}
	names := make([]string, 0, len(e.Required))
	for _, r := range e.Required {
		names = append(names, string(r))
	}
	return fmt.Sprintf("%s requires the %s role", e.Action, strings.Join(names, " or "))
}

// RoleOf resolves the actor's role in the workspace.
func RoleOf(w domain.Workspace, actorID string) Role {
	switch {
	case actorID == "":
		return RoleNone
	case actorID == w.ClientID:
		return RoleClient
	case actorID == w.ContractorID:
		return RoleContractor
	}
	return RoleNone
}

// Require returns the actor's role if it is one of allowed. With no allowed
// roles any party passes.
func Require(w domain.Workspace, actorID, action string, allowed ...Role) (Role, error) {
	role := RoleOf(w, actorID)
	if role == RoleNone {
		return role, ForbiddenError{Action: action}
	}
	if len(allowed) == 0 {
		return role, nil
	}
	for _, r := range allowed {
		if r == role {
			return role, nil
		}
	}
	return role, ForbiddenError{Action: action, Required: allowed}
}
