package service

import (
	"context"

	"github.com/liliang-cn/moviechat/internal/auth"
	"github.com/liliang-cn/moviechat/internal/domain"
	"go.uber.org/zap"
)

// AuthBackend is the subset of the backend API used for accounts
type AuthBackend interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error)
	Logout(ctx context.Context, refresh string) error
	Profile(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, user domain.User) (*domain.User, error)
}

// AuthService handles login state
type AuthService struct {
	backend  AuthBackend
	provider *auth.Provider
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(backend AuthBackend, provider *auth.Provider, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{backend: backend, provider: provider, logger: logger}
}

// Login authenticates and stores the returned tokens
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	resp, err := s.backend.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.provider.Set(resp.Tokens, &resp.User); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", zap.String("username", resp.User.Username))
	return &resp.User, nil
}

// Register creates an account and logs in
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if req.Password != req.Password2 {
		return nil, domain.ErrInvalidRequest
	}
	resp, err := s.backend.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.provider.Set(resp.Tokens, &resp.User); err != nil {
		return nil, err
	}
	s.logger.Info("registered", zap.String("username", resp.User.Username))
	return &resp.User, nil
}

// Logout revokes the refresh token and always drops the local login
func (s *AuthService) Logout(ctx context.Context) error {
	if refresh := s.provider.RefreshToken(); refresh != "" {
		if err := s.backend.Logout(ctx, refresh); err != nil {
			s.logger.Warn("logout request failed", zap.Error(err))
		}
	}
	return s.provider.Clear()
}

// Profile fetches the current user and refreshes the stored copy
func (s *AuthService) Profile(ctx context.Context) (*domain.User, error) {
	if !s.provider.LoggedIn() {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.backend.Profile(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.provider.SetUser(user); err != nil {
		s.logger.Warn("failed to store profile", zap.Error(err))
	}
	return user, nil
}

// UpdateProfile changes the editable profile fields of the current user
func (s *AuthService) UpdateProfile(ctx context.Context, user domain.User) (*domain.User, error) {
	if !s.provider.LoggedIn() {
		return nil, domain.ErrUnauthorized
	}
	updated, err := s.backend.UpdateProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.provider.SetUser(updated); err != nil {
		s.logger.Warn("failed to store profile", zap.Error(err))
	}
	return updated, nil
}

// EnsureLogin logs in with the configured account unless already logged in
func (s *AuthService) EnsureLogin(ctx context.Context, username, password string) error {
	if username == "" || s.provider.LoggedIn() {
		return nil
	}
	_, err := s.Login(ctx, domain.LoginRequest{Username: username, Password: password})
	return err
}

// User returns the stored user, or nil when logged out
func (s *AuthService) User() *domain.User {
	return s.provider.User()
}
