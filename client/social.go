package client

import (
	"context"
	"net/http"
	"net/url"

	"wolfpack-sync/domain"
)

// ListMatches returns the radar matchmaking hits for the session user.
func (c *Client) ListMatches(ctx context.Context) ([]domain.Match, error) {
	var out []domain.Match
	if err := c.do(ctx, http.MethodGet, "/api/matches", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptMatch confirms a match, creating a connection between the users.
func (c *Client) AcceptMatch(ctx context.Context, matchID string) error {
	return c.do(ctx, http.MethodPost, "/api/matches/"+url.PathEscape(matchID)+"/accept", nil, nil)
}

// ListConnections returns the accepted connections of the session user.
func (c *Client) ListConnections(ctx context.Context) ([]domain.Match, error) {
	var out []domain.Match
	if err := c.do(ctx, http.MethodGet, "/api/connections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPacks returns the packs the session user belongs to.
func (c *Client) ListPacks(ctx context.Context) ([]domain.Pack, error) {
	var out []domain.Pack
	if err := c.do(ctx, http.MethodGet, "/api/packs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePack forms a new pack.
func (c *Client) CreatePack(ctx context.Context, p domain.Pack) (domain.Pack, error) {
	var out domain.Pack
	err := c.do(ctx, http.MethodPost, "/api/packs", p, &out)
	return out, err
}

// JoinPack adds the session user to a pack.
func (c *Client) JoinPack(ctx context.Context, packID string) error {
	return c.do(ctx, http.MethodPost, "/api/packs/"+url.PathEscape(packID)+"/join", nil, nil)
}
