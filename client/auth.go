package client

import (
	"context"
	"net/http"

	"wolfpack-sync/domain"
)

// Credentials carry a sign-in request.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse is the token plus the signed-in user record.
type SignInResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// SignIn exchanges credentials for a bearer token.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (SignInResponse, error) {
	var out SignInResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", creds, &out)
	return out, err
}

// SignOut invalidates the current bearer token server-side.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
}

// Me returns the profile of the bearer token's user.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &out)
	return out, err
}
