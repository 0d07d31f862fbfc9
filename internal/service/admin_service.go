package service

import (
	"context"

	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/repository"
)

// AdminService exposes operational views of the server
type AdminService struct {
	chatService    *ChatService
	catalogService *CatalogService
	movieRepo      *repository.MovieRepository
	authService    *AuthService
}

// NewAdminService creates a new admin service
func NewAdminService(
	chatService *ChatService,
	catalogService *CatalogService,
	movieRepo *repository.MovieRepository,
	authService *AuthService,
) *AdminService {
	return &AdminService{
		chatService:    chatService,
		catalogService: catalogService,
		movieRepo:      movieRepo,
		authService:    authService,
	}
}

// Sessions

func (s *AdminService) ListSessions(ctx context.Context) []domain.SessionSummary {
	return s.chatService.List()
}

func (s *AdminService) CloseSession(ctx context.Context, id string) error {
	return s.chatService.Unmount(id)
}

// Cache

func (s *AdminService) PurgeCache(ctx context.Context) (int64, error) {
	return s.catalogService.PurgeCache()
}

// Stats

func (s *AdminService) GetStats(ctx context.Context) (*domain.Stats, error) {
	sessions := s.chatService.List()
	pending := 0
	for _, sess := range sessions {
		if sess.Pending {
			pending++
		}
	}

	var cached int
	if s.movieRepo != nil {
		n, err := s.movieRepo.Count()
		if err != nil {
			return nil, err
		}
		cached = n
	}

	stats := &domain.Stats{
		MountedSessions: len(sessions),
		PendingSessions: pending,
		CachedMovies:    cached,
	}
	if user := s.authService.User(); user != nil {
		stats.LoggedIn = true
		stats.Username = user.Username
	}
	return stats, nil
}
