package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"talentlink/internal/domain"
	"talentlink/internal/engine"
	"talentlink/internal/repo"
)

type taskPath struct {
	WorkspaceID string `path:"workspace_id"`
	TaskID      string `path:"task_id"`
}

type taskBody struct {
	Body TaskResponse `json:"body"`
}

func taskCursor(t TaskResponse) repo.Cursor {
	return repo.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

func registerTasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/tasks",
		Summary:       "Create task",
		Description:   "Tasks are always assigned to the workspace contractor.",
		DefaultStatus: http.StatusCreated,
		Errors:        defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		Body        CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.CreateTask(ctx, engine.TaskCreateOptions{
			WorkspaceID: input.WorkspaceID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			Status:      input.Body.Status,
			Deadline:    input.Body.Deadline,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: taskResponse(t, h.now(), 0)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks",
		Summary:     "List tasks, newest first",
		Description: "status filters on the effective status, so overdue selects past-deadline tasks that are not completed.",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string `path:"workspace_id"`
		Status      string `query:"status" enum:"todo,in_progress,completed,overdue"`
		Priority    string `query:"priority" enum:"low,medium,high"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursor, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := h.e.ListTasks(ctx, engine.TaskListOptions{
			WorkspaceID: input.WorkspaceID,
			Status:      input.Status,
			Priority:    input.Priority,
			Limit:       limit + 1,
			Cursor:      cursor,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		counts, err := h.e.Repo.CountCommentsByWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		now := h.now()
		res := make([]TaskResponse, 0, len(items))
		for _, t := range items {
			res = append(res, taskResponse(t, now, counts[t.ID]))
		}
		res, next := page(res, limit, taskCursor)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: paginatedTasks{Items: res, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace_id}/tasks/{task_id}",
		Summary:     "Get task with comments",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.GetTask(ctx, input.WorkspaceID, input.TaskID, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: taskResponse(t, h.now(), len(t.Comments))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/workspaces/{workspace_id}/tasks/{task_id}",
		Summary:     "Edit task fields",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		TaskID      string            `path:"task_id"`
		Body        UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.UpdateTask(ctx, engine.TaskUpdateOptions{
			WorkspaceID:   input.WorkspaceID,
			ID:            input.TaskID,
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Priority:      input.Body.Priority,
			Deadline:      input.Body.Deadline,
			ClearDeadline: input.Body.ClearDeadline,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: taskResponse(t, h.now(), 0)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/workspaces/{workspace_id}/tasks/{task_id}/status",
		Summary:     "Move a task between todo, in_progress and completed",
		Description: "Contractor only. overdue is derived from the deadline and is rejected.",
		Errors:      defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string               `path:"workspace_id"`
		TaskID      string               `path:"task_id"`
		Body        SetTaskStatusRequest `json:"body"`
	}) (*taskBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.UpdateTaskStatus(ctx, input.WorkspaceID, input.TaskID, input.Body.Status, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &taskBody{Body: taskResponse(t, h.now(), 0)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-task-comment",
		Method:        http.MethodPost,
		Path:          "/workspaces/{workspace_id}/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        defaultErrors,
	}, func(ctx context.Context, input *struct {
		WorkspaceID string            `path:"workspace_id"`
		TaskID      string            `path:"task_id"`
		Body        AddCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := h.e.AddComment(ctx, input.WorkspaceID, input.TaskID, input.Body.Text, actorID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/workspaces/{workspace_id}/tasks/{task_id}",
		Summary:       "Delete a task and its comments",
		DefaultStatus: http.StatusNoContent,
		Errors:        defaultErrors,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteTask(ctx, input.WorkspaceID, input.TaskID, actorID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		return nil, nil
	})
}
