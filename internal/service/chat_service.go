package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/liliang-cn/moviechat/internal/chat"
	"github.com/liliang-cn/moviechat/internal/config"
	"github.com/liliang-cn/moviechat/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MovieLookup resolves a movie by ID
type MovieLookup interface {
	GetMovie(ctx context.Context, id int64) (*domain.Movie, error)
}

// MountRequest describes a chat surface being opened
type MountRequest struct {
	MovieID      *int64 `json:"movie_id"`
	SeedQuestion string `json:"initial_question"`
}

// Mounted is a freshly mounted session and the movie it is bound to
type Mounted struct {
	Session *chat.Session
	Movie   *domain.Movie
}

// ChatService keeps the chat sessions of mounted surfaces. Sessions live in
// memory only and are discarded on unmount or after sitting idle.
type ChatService struct {
	cfg       config.ChatConfig
	limits    config.RateLimitConfig
	assistant chat.Assistant
	movies    MovieLookup
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*chat.Session
}

// NewChatService creates a new chat service
func NewChatService(cfg *config.Config, assistant chat.Assistant, movies MovieLookup, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		cfg:       cfg.Chat,
		limits:    cfg.RateLimit,
		assistant: assistant,
		movies:    movies,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*chat.Session),
	}
}

// Mount creates a session for a chat surface. A movie-bound surface fails
// with domain.ErrNotFound when the movie does not exist. A seed question is
// submitted immediately.
func (s *ChatService) Mount(ctx context.Context, req MountRequest) (*Mounted, error) {
	opts := []chat.Option{
		chat.WithLogger(s.logger.With(zap.String("component", "session"))),
		chat.WithRequestTimeout(s.cfg.RequestTimeout),
		chat.WithClock(s.now),
	}

	var movie *domain.Movie
	if req.MovieID != nil {
		var err error
		movie, err = s.movies.GetMovie(ctx, *req.MovieID)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			chat.WithMovieID(*req.MovieID),
			chat.WithReveal(s.cfg.RevealInterval),
			chat.WithSuggestions(s.cfg.QuickQuestions),
		)
	} else {
		opts = append(opts, chat.WithSuggestions(s.cfg.Suggestions))
	}

	if s.limits.Enabled {
		perSecond := rate.Limit(float64(s.limits.RequestsPerMinute) / 60)
		opts = append(opts, chat.WithLimiter(rate.NewLimiter(perSecond, max(s.limits.Burst, 1))))
	}

	sess := chat.NewSession(s.assistant, opts...)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	fields := []zap.Field{zap.String("session_id", sess.ID())}
	if req.MovieID != nil {
		fields = append(fields, zap.Int64("movie_id", *req.MovieID))
	}
	s.logger.Info("session mounted", fields...)

	sess.Bootstrap(strings.TrimSpace(req.SeedQuestion))

	return &Mounted{Session: sess, Movie: movie}, nil
}

// Get returns a mounted session
func (s *ChatService) Get(id string) (*chat.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Submit sends text on a session, explaining why it was rejected
func (s *ChatService) Submit(id, text string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.TrySubmit(text)
}

// SubmitSuggestion sends the quick suggestion at index
func (s *ChatService) SubmitSuggestion(id string, index int) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	return sess.TrySubmitSuggestion(index)
}

// Unmount discards a session
func (s *ChatService) Unmount(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Close()
	s.logger.Info("session unmounted", zap.String("session_id", id))
	return nil
}

// List summarizes the mounted sessions, most recently active first
func (s *ChatService) List() []domain.SessionSummary {
	s.mu.RLock()
	summaries := make([]domain.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, domain.SessionSummary{
			ID:         sess.ID(),
			MovieID:    sess.MovieID(),
			Messages:   sess.Transcript().Len(),
			Pending:    sess.Pending(),
			LastActive: sess.LastActive(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActive.After(summaries[j].LastActive)
	})
	return summaries
}

// Count returns the number of mounted sessions
func (s *ChatService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep discards sessions idle for longer than the configured TTL. Sessions
// waiting on the assistant are kept.
func (s *ChatService) Sweep(now time.Time) int {
	ttl := s.cfg.SessionIdleTTL
	if ttl <= 0 {
		return 0
	}

	var expired []*chat.Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.Pending() || now.Sub(sess.LastActive()) < ttl {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, sess)
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
		s.logger.Info("idle session discarded", zap.String("session_id", sess.ID()))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done
func (s *ChatService) Run(ctx context.Context) {
	ttl := s.cfg.SessionIdleTTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Close discards every session and waits for their requests to settle
func (s *ChatService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*chat.Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	// cancelled requests still settle; let them finish publishing
	for _, sess := range sessions {
		sess.Wait()
	}
}
