package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CatalogBackend is the subset of the backend API the catalog needs
type CatalogBackend interface {
	ListMovies(ctx context.Context, q domain.MovieQuery) (*domain.MoviePage, error)
	GetMovie(ctx context.Context, id int64) (*domain.Movie, error)
	GetMovieSections(ctx context.Context, id int64) ([]domain.MovieSection, error)
	MarkViewed(ctx context.Context, id int64) error
	Trending(ctx context.Context) ([]domain.Movie, error)
	RecentlyViewed(ctx context.Context) ([]domain.Movie, error)
	Genres(ctx context.Context) ([]domain.Genre, error)
}

// CatalogService serves the movie catalog, caching movie details locally
type CatalogService struct {
	backend CatalogBackend
	repo    *repository.MovieRepository
	ttl     time.Duration
	logger  *zap.Logger
	group   singleflight.Group
}

// NewCatalogService creates a new catalog service. A nil repo disables caching.
func NewCatalogService(backend CatalogBackend, repo *repository.MovieRepository, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		backend: backend,
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
	}
}

// GetMovie returns a movie, from cache when fresh
func (s *CatalogService) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	if s.repo != nil {
		cached, err := s.repo.Get(id, s.ttl)
		if err != nil {
			s.logger.Warn("movie cache read failed", zap.Int64("movie_id", id), zap.Error(err))
		} else if cached != nil {
			movie := cached.Movie
			return &movie, nil
		}
	}

	// The fetch is shared, so it must outlive any single caller. The
	// backend client's own timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		return s.fetchMovie(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		movie := *res.Val.(*domain.Movie)
		return &movie, nil
	}
}

func (s *CatalogService) fetchMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	movie, err := s.backend.GetMovie(ctx, id)
	if err != nil {
		if s.repo != nil && errors.Is(err, domain.ErrNotFound) {
			// drop a stale copy of a movie the backend no longer has
			if err := s.repo.Delete(id); err != nil {
				s.logger.Warn("movie cache delete failed", zap.Int64("movie_id", id), zap.Error(err))
			}
		}
		return nil, err
	}
	if s.repo != nil {
		if err := s.repo.Put(movie, time.Now()); err != nil {
			s.logger.Warn("movie cache write failed", zap.Int64("movie_id", id), zap.Error(err))
		}
	}
	return movie, nil
}

// ListMovies returns one page of the catalog
func (s *CatalogService) ListMovies(ctx context.Context, q domain.MovieQuery) (*domain.MoviePage, error) {
	return s.backend.ListMovies(ctx, q)
}

// GetMovieSections returns the analysis sections of a movie
func (s *CatalogService) GetMovieSections(ctx context.Context, id int64) ([]domain.MovieSection, error) {
	return s.backend.GetMovieSections(ctx, id)
}

// MarkViewed records a movie view
func (s *CatalogService) MarkViewed(ctx context.Context, id int64) error {
	return s.backend.MarkViewed(ctx, id)
}

// Trending returns trending movies
func (s *CatalogService) Trending(ctx context.Context) ([]domain.Movie, error) {
	return s.backend.Trending(ctx)
}

// RecentlyViewed returns the movies the user opened last
func (s *CatalogService) RecentlyViewed(ctx context.Context) ([]domain.Movie, error) {
	return s.backend.RecentlyViewed(ctx)
}

// Genres returns the genre list
func (s *CatalogService) Genres(ctx context.Context) ([]domain.Genre, error) {
	return s.backend.Genres(ctx)
}

// PurgeCache drops cached movies older than the TTL
func (s *CatalogService) PurgeCache() (int64, error) {
	if s.repo == nil || s.ttl <= 0 {
		return 0, nil
	}
	return s.repo.Purge(time.Now().Add(-s.ttl))
}
