package service

import (
	"context"
	"fmt"
	"time"

	"github.com/liliang-cn/moviechat/internal/config"
)

// WidgetConfigResponse is the response for widget config
type WidgetConfigResponse struct {
	MovieID          int64    `json:"movie_id"`
	Title            string   `json:"title"`
	Greeting         string   `json:"greeting"`
	QuickQuestions   []string `json:"quick_questions"`
	RevealIntervalMS int64    `json:"reveal_interval_ms"`
	BaseURL          string   `json:"base_url"`
}

// WidgetService handles the per-movie chat widget
type WidgetService struct {
	cfg         *config.Config
	movies      MovieLookup
	chatService *ChatService
}

// NewWidgetService creates a new widget service
func NewWidgetService(cfg *config.Config, movies MovieLookup, chatService *ChatService) *WidgetService {
	return &WidgetService{
		cfg:         cfg,
		movies:      movies,
		chatService: chatService,
	}
}

// Greeting is the opening line the widget shows for a movie
func Greeting(title string) string {
	return fmt.Sprintf("Hi! I'm here to help you explore this movie. Ask me anything about %s!", title)
}

// GetWidgetConfig returns the widget configuration for a movie
func (s *WidgetService) GetWidgetConfig(ctx context.Context, movieID int64) (*WidgetConfigResponse, error) {
	movie, err := s.movies.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}

	interval := s.cfg.Chat.RevealInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}

	return &WidgetConfigResponse{
		MovieID:          movie.ID,
		Title:            movie.Title,
		Greeting:         Greeting(movie.Title),
		QuickQuestions:   append([]string(nil), s.cfg.Chat.QuickQuestions...),
		RevealIntervalMS: interval.Milliseconds(),
		BaseURL:          s.cfg.Server.BaseURL,
	}, nil
}

// Mount opens a widget session bound to movieID
func (s *WidgetService) Mount(ctx context.Context, movieID int64, seed string) (*Mounted, error) {
	return s.chatService.Mount(ctx, MountRequest{MovieID: &movieID, SeedQuestion: seed})
}
