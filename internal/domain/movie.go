package domain

import "time"

// Genre represents a movie genre
type Genre struct {
	ID     int64  `json:"id"`
	TMDBID int64  `json:"tmdb_id"`
	Name   string `json:"name"`
}

// Movie represents a catalog entry
type Movie struct {
	ID            int64    `json:"id"`
	TMDBID        int64    `json:"tmdb_id"`
	Title         string   `json:"title"`
	Year          int      `json:"year"`
	Director      string   `json:"director,omitempty"`
	Genres        []Genre  `json:"genres,omitempty"`
	GenreList     string   `json:"genre_list,omitempty"`
	IMDBRating    *float64 `json:"imdb_rating,omitempty"`
	PlotSummary   string   `json:"plot_summary,omitempty"`
	PosterURL     string   `json:"poster_url,omitempty"`
	BackdropURL   string   `json:"backdrop_url,omitempty"`
	Runtime       *int     `json:"runtime,omitempty"`
	SectionsCount int      `json:"sections_count,omitempty"`
}

// MovieSection is an AI-generated analysis section of a movie
type MovieSection struct {
	ID                 int64    `json:"id"`
	SectionType        string   `json:"section_type"`
	SectionTypeDisplay string   `json:"section_type_display"`
	Content            string   `json:"content"`
	WordCount          int      `json:"word_count"`
	KeyTopics          []string `json:"key_topics,omitempty"`
}

// MoviePage is one page of the catalog listing
type MoviePage struct {
	Count    int     `json:"count"`
	Next     string  `json:"next,omitempty"`
	Previous string  `json:"previous,omitempty"`
	Results  []Movie `json:"results"`
}

// MovieQuery filters the catalog listing
type MovieQuery struct {
	Search string `form:"search"`
	Page   int    `form:"page"`
	Genre  string `form:"genre"`
}

// CachedMovie is a movie detail held in the local cache
type CachedMovie struct {
	Movie     Movie
	FetchedAt time.Time
}
