// Package auth keeps the login state and hands out fresh access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/liliang-cn/moviechat/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenStore persists credentials
type TokenStore interface {
	Save(creds *domain.Credentials) error
	Load() (*domain.Credentials, error)
	Delete() error
}

// Refresher exchanges a refresh token for a new pair
type Refresher interface {
	RefreshToken(ctx context.Context, refresh string) (domain.Tokens, error)
}

// Provider supplies access tokens, refreshing them shortly before they expire
type Provider struct {
	store     TokenStore
	refresher Refresher
	leeway    time.Duration
	now       func() time.Time
	logger    *zap.Logger

	group singleflight.Group

	mu     sync.Mutex
	creds  *domain.Credentials
	loaded bool
}

// Option configures a Provider
type Option func(*Provider)

// WithLeeway refreshes tokens expiring within d
func WithLeeway(d time.Duration) Option {
	return func(p *Provider) {
		p.leeway = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithLogger sets the provider logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a provider backed by store
func NewProvider(store TokenStore, refresher Refresher, opts ...Option) *Provider {
	p := &Provider{
		store:     store,
		refresher: refresher,
		leeway:    30 * time.Second,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AccessToken returns a usable access token. It returns an empty token when
// nobody is logged in and domain.ErrUnauthorized when a refresh fails.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	creds, err := p.current()
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", nil
	}
	if p.fresh(creds.Tokens.Access) {
		return creds.Tokens.Access, nil
	}

	// Waiters share one refresh, so it runs detached from the caller that
	// started it. The refresher's HTTP timeout bounds it.
	refreshCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan("refresh", func() (any, error) {
		return p.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (p *Provider) refresh(ctx context.Context) (string, error) {
	creds, err := p.current()
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", domain.ErrUnauthorized
	}
	// a concurrent caller may already have refreshed
	if p.fresh(creds.Tokens.Access) {
		return creds.Tokens.Access, nil
	}

	tokens, err := p.refresher.RefreshToken(ctx, creds.Tokens.Refresh)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		p.logger.Warn("token refresh failed, clearing credentials", zap.Error(err))
		if clearErr := p.Clear(); clearErr != nil {
			p.logger.Error("failed to clear credentials", zap.Error(clearErr))
		}
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}

	updated := &domain.Credentials{Tokens: tokens, User: creds.User, UpdatedAt: p.now()}
	if err := p.save(updated); err != nil {
		return "", err
	}
	p.logger.Debug("access token refreshed")
	return tokens.Access, nil
}

// fresh reports whether token stays valid past the leeway. Tokens without a
// readable exp claim are used as is and left for the backend to judge.
func (p *Provider) fresh(token string) bool {
	exp, ok := expiry(token)
	if !ok {
		return true
	}
	return p.now().Add(p.leeway).Before(exp)
}

func expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Set stores a new login
func (p *Provider) Set(tokens domain.Tokens, user *domain.User) error {
	return p.save(&domain.Credentials{Tokens: tokens, User: user, UpdatedAt: p.now()})
}

// SetUser replaces the stored profile, keeping the tokens
func (p *Provider) SetUser(user *domain.User) error {
	creds, err := p.current()
	if err != nil {
		return err
	}
	if creds == nil {
		return domain.ErrUnauthorized
	}
	return p.save(&domain.Credentials{Tokens: creds.Tokens, User: user, UpdatedAt: p.now()})
}

// Clear logs out
func (p *Provider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Delete(); err != nil {
		return err
	}
	p.creds = nil
	p.loaded = true
	return nil
}

// User returns the logged in user, or nil
func (p *Provider) User() *domain.User {
	creds, err := p.current()
	if err != nil || creds == nil || creds.User == nil {
		return nil
	}
	u := *creds.User
	return &u
}

// RefreshToken returns the stored refresh token, or "" when logged out
func (p *Provider) RefreshToken() string {
	creds, err := p.current()
	if err != nil || creds == nil {
		return ""
	}
	return creds.Tokens.Refresh
}

// LoggedIn reports whether credentials are stored
func (p *Provider) LoggedIn() bool {
	creds, err := p.current()
	return err == nil && creds != nil
}

func (p *Provider) current() (*domain.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		creds, err := p.store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		p.creds = creds
		p.loaded = true
	}
	return p.creds, nil
}

func (p *Provider) save(creds *domain.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Save(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	p.creds = creds
	p.loaded = true
	return nil
}
