package service

import (
	"context"

	"github.com/liliang-cn/moviechat/internal/auth"
	"github.com/liliang-cn/moviechat/internal/domain"
)

// HistoryBackend is the subset of the backend API that lists stored conversations
type HistoryBackend interface {
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)
}

// HistoryService reads the conversations the backend recorded for the
// logged-in user. Mounted sessions never load from it.
type HistoryService struct {
	backend  HistoryBackend
	provider *auth.Provider
}

// NewHistoryService creates a new history service
func NewHistoryService(backend HistoryBackend, provider *auth.Provider) *HistoryService {
	return &HistoryService{backend: backend, provider: provider}
}

func (s *HistoryService) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	if !s.provider.LoggedIn() {
		return nil, domain.ErrUnauthorized
	}
	return s.backend.ListConversations(ctx)
}

func (s *HistoryService) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	if !s.provider.LoggedIn() {
		return nil, domain.ErrUnauthorized
	}
	return s.backend.GetConversation(ctx, id)
}
