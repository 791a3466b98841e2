package client

import (
	"context"
	"net/http"
	"net/url"

	"wolfpack-sync/domain"
)

// ListTasks returns all tasks of a project.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	var out []domain.Task
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTask creates a task and returns the server copy. The task keeps the
// client-assigned id.
func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(t.ProjectID)+"/tasks", t, &out)
	return out, err
}

// UpdateTask replaces task fields wholesale.
func (c *Client) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(t.ID), t, &out)
	return out, err
}

type statusChange struct {
	Status string `json:"status"`
}

// UpdateTaskStatus moves a task to another board column.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(taskID)+"/status", statusChange{Status: status}, &out)
	return out, err
}

// CompleteTask marks a task done. The response carries the refreshed task,
// project and gameboard, mirroring the task_completed delta payload.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (domain.TaskCompletedData, error) {
	var out domain.TaskCompletedData
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/complete", nil, &out)
	return out, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}
