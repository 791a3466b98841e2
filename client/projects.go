package client

import (
	"context"
	"net/http"
	"net/url"

	"wolfpack-sync/domain"
)

// ListProjects returns the projects visible to the session user.
func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject fetches one project with its member list.
func (c *Client) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	var out domain.Project
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID), nil, &out)
	return out, err
}

// CreateProject creates a project and returns the server copy.
func (c *Client) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	var out domain.Project
	err := c.do(ctx, http.MethodPost, "/api/projects", p, &out)
	return out, err
}

// UpdateProject replaces mutable project fields.
func (c *Client) UpdateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	var out domain.Project
	err := c.do(ctx, http.MethodPut, "/api/projects/"+url.PathEscape(p.ID), p, &out)
	return out, err
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(projectID), nil, nil)
}

// GetGameboard fetches the 40-slot gameboard of a project.
func (c *Client) GetGameboard(ctx context.Context, projectID string) (domain.Gameboard, error) {
	var out domain.Gameboard
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/gameboard", nil, &out)
	return out, err
}

// GetLeaderboard fetches the current leaderboard.
func (c *Client) GetLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, "/api/leaderboard", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
