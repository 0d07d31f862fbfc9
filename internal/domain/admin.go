package domain

import "time"

// Stats represents server statistics
type Stats struct {
	MountedSessions int    `json:"mounted_sessions"`
	PendingSessions int    `json:"pending_sessions"`
	CachedMovies    int    `json:"cached_movies"`
	LoggedIn        bool   `json:"logged_in"`
	Username        string `json:"username,omitempty"`
}

// SessionSummary describes a mounted chat session
type SessionSummary struct {
	ID         string    `json:"id"`
	MovieID    *int64    `json:"movie_id,omitempty"`
	Messages   int       `json:"messages"`
	Pending    bool      `json:"pending"`
	LastActive time.Time `json:"last_active"`
}
