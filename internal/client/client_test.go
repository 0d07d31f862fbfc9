package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) {
	return string(s), nil
}

type failingToken struct{}

func (failingToken) AccessToken(context.Context) (string, error) {
	return "", domain.ErrUnauthorized
}

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/api/")
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/message/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"It is about dreams.","conversation_id":9,"sources":[{"section_id":3,"similarity":0.91,"movie_title":"Inception","section_type":"themes"}]}`))
	})
	c.SetCredentials(staticToken("tok"))

	movieID := int64(27205)
	resp, err := c.SendMessage(context.Background(), domain.ChatRequest{Message: "What is it about?", MovieID: &movieID})
	require.NoError(t, err)

	assert.Equal(t, "What is it about?", got["message"])
	assert.Equal(t, float64(27205), got["movie_id"])
	assert.Nil(t, got["conversation_id"])
	assert.Contains(t, got, "conversation_id")

	assert.Equal(t, "It is about dreams.", resp.Message)
	assert.Equal(t, int64(9), resp.ConversationID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "Inception", resp.Sources[0].MovieTitle)
}

func TestSendMessageFailureIsAssistantError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model unavailable"}`))
	})

	_, err := c.SendMessage(context.Background(), domain.ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAssistantRequestFailed)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestSendMessageTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(srv.URL)
	_, err := c.SendMessage(context.Background(), domain.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrAssistantRequestFailed)
}

func TestCredentialFailureSendsAnonymously(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"message":"ok"}`))
	})
	c.SetCredentials(failingToken{})

	resp, err := c.SendMessage(context.Background(), domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message)
}

func TestGetMovieNotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/movies/42/", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not found."}`))
	})

	_, err := c.GetMovie(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Not found.", se.Message)
}

func TestListMoviesPaginated(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "matrix", r.URL.Query().Get("search"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Empty(t, r.URL.Query().Get("genre"))
		w.Write([]byte(`{"count":21,"next":"http://x/api/movies/?page=3","previous":null,"results":[{"id":1,"title":"The Matrix","year":1999}]}`))
	})

	page, err := c.ListMovies(context.Background(), domain.MovieQuery{Search: "matrix", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 21, page.Count)
	assert.Equal(t, "http://x/api/movies/?page=3", page.Next)
	assert.Empty(t, page.Previous)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "The Matrix", page.Results[0].Title)
}

func TestListsAcceptBareArrays(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/genres/":
			w.Write([]byte(`{"count":2,"results":[{"id":1,"name":"Drama"},{"id":2,"name":"Crime"}]}`))
		case "/api/movies/trending/":
			w.Write([]byte(`[{"id":7,"title":"Heat"}]`))
		case "/api/movies/7/sections/":
			w.Write([]byte(`[{"id":1,"section_type":"themes","content":"Obsession."}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	genres, err := c.Genres(ctx)
	require.NoError(t, err)
	assert.Len(t, genres, 2)

	movies, err := c.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "Heat", movies[0].Title)

	sections, err := c.GetMovieSections(ctx, 7)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "themes", sections[0].SectionType)

	_, err = c.RecentlyViewed(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoginIsAnonymous(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"user":{"id":1,"username":"neo","email":"neo@zion.io"},"tokens":{"access":"a1","refresh":"r1"}}`))
	})
	c.SetCredentials(staticToken("stale"))

	resp, err := c.Login(context.Background(), domain.LoginRequest{Username: "neo", Password: "red pill"})
	require.NoError(t, err)
	assert.Equal(t, "neo", resp.User.Username)
	assert.Equal(t, domain.Tokens{Access: "a1", Refresh: "r1"}, resp.Tokens)
}

func TestRegisterFieldError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"username":["A user with that username already exists."]}`))
	})

	_, err := c.Register(context.Background(), domain.RegisterRequest{Username: "neo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRefreshTokenKeepsRefresh(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["refresh"])
		w.Write([]byte(`{"access":"a2"}`))
	})

	tokens, err := c.RefreshToken(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens{Access: "a2", Refresh: "r1"}, tokens)
}

func TestRefreshTokenRejected(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token is invalid or expired","code":"token_not_valid"}`))
	})

	_, err := c.RefreshToken(context.Background(), "r1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"error":"boom"}`)))
	assert.Equal(t, "Not found.", errorMessage([]byte(`{"detail":"Not found."}`)))
	assert.Equal(t, "Bad Gateway", errorMessage([]byte("Bad Gateway\n")))
	assert.Empty(t, errorMessage([]byte(`{}`)))
}
