package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/liliang-cn/moviechat/internal/domain"
)

// Login exchanges username and password for a token pair
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login/", body: req, anon: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its token pair
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register/", body: req, anon: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout blacklists the refresh token
func (c *Client) Logout(ctx context.Context, refresh string) error {
	body := map[string]string{"refresh_token": refresh}
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/logout/", body: body}, nil)
}

// RefreshToken trades a refresh token for a new access token. When the
// backend does not rotate refresh tokens the old one is kept.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (domain.Tokens, error) {
	var tokens domain.Tokens
	body := map[string]string{"refresh": refresh}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/token/refresh/", body: body, anon: true}, &tokens); err != nil {
		return domain.Tokens{}, err
	}
	if tokens.Access == "" {
		return domain.Tokens{}, fmt.Errorf("refresh response carried no access token")
	}
	if tokens.Refresh == "" {
		tokens.Refresh = refresh
	}
	return tokens, nil
}

// Profile returns the current user
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/profile/"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes the editable profile fields
func (c *Client) UpdateProfile(ctx context.Context, user domain.User) (*domain.User, error) {
	var updated domain.User
	if err := c.do(ctx, request{method: http.MethodPut, path: "/auth/profile/update/", body: user}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
