package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/liliang-cn/moviechat/internal/domain"
)

// ListMovies returns one page of the catalog
func (c *Client) ListMovies(ctx context.Context, q domain.MovieQuery) (*domain.MoviePage, error) {
	query := url.Values{}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Genre != "" {
		query.Set("genre", q.Genre)
	}

	data, err := c.raw(ctx, request{method: http.MethodGet, path: "/movies/", query: query})
	if err != nil {
		return nil, err
	}

	page := &domain.MoviePage{}
	if err := decodeList(data, &page.Results); err != nil {
		return nil, fmt.Errorf("failed to decode movies: %w", err)
	}
	if err := decodePageMeta(data, page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetMovie returns a movie by ID. A missing movie yields domain.ErrNotFound.
func (c *Client) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	var movie domain.Movie
	path := fmt.Sprintf("/movies/%d/", id)
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetMovieSections returns the AI-generated analysis sections of a movie
func (c *Client) GetMovieSections(ctx context.Context, id int64) ([]domain.MovieSection, error) {
	data, err := c.raw(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/movies/%d/sections/", id)})
	if err != nil {
		return nil, err
	}
	var sections []domain.MovieSection
	if err := decodeList(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to decode sections: %w", err)
	}
	return sections, nil
}

// MarkViewed records that the current user opened a movie
func (c *Client) MarkViewed(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodPost, path: fmt.Sprintf("/movies/%d/view/", id)}, nil)
}

// Trending returns the trending movies
func (c *Client) Trending(ctx context.Context) ([]domain.Movie, error) {
	return c.movieList(ctx, "/movies/trending/")
}

// RecentlyViewed returns the movies the current user opened last
func (c *Client) RecentlyViewed(ctx context.Context) ([]domain.Movie, error) {
	return c.movieList(ctx, "/movies/recently_viewed/")
}

// Genres returns the genre list
func (c *Client) Genres(ctx context.Context) ([]domain.Genre, error) {
	data, err := c.raw(ctx, request{method: http.MethodGet, path: "/genres/"})
	if err != nil {
		return nil, err
	}
	var genres []domain.Genre
	if err := decodeList(data, &genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres: %w", err)
	}
	return genres, nil
}

func (c *Client) movieList(ctx context.Context, path string) ([]domain.Movie, error) {
	data, err := c.raw(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	var movies []domain.Movie
	if err := decodeList(data, &movies); err != nil {
		return nil, fmt.Errorf("failed to decode movies: %w", err)
	}
	return movies, nil
}

func decodePageMeta(data []byte, page *domain.MoviePage) error {
	var meta struct {
		Count    int    `json:"count"`
		Next     string `json:"next"`
		Previous string `json:"previous"`
	}
	if len(data) > 0 && data[0] == '[' {
		page.Count = len(page.Results)
		return nil
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to decode page: %w", err)
	}
	page.Count = meta.Count
	page.Next = meta.Next
	page.Previous = meta.Previous
	return nil
}
