package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "moviechat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moviechat.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCredentialRepository(t *testing.T) {
	repo := NewCredentialRepository(newTestDB(t))

	creds, err := repo.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)

	updated := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, repo.Save(&domain.Credentials{
		Tokens:    domain.Tokens{Access: "a1", Refresh: "r1"},
		User:      &domain.User{ID: 1, Username: "neo"},
		UpdatedAt: updated,
	}))

	creds, err = repo.Load()
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, domain.Tokens{Access: "a1", Refresh: "r1"}, creds.Tokens)
	require.NotNil(t, creds.User)
	assert.Equal(t, "neo", creds.User.Username)
	assert.True(t, creds.UpdatedAt.Equal(updated))

	// replacing keeps a single row and drops the user when absent
	require.NoError(t, repo.Save(&domain.Credentials{Tokens: domain.Tokens{Access: "a2", Refresh: "r2"}}))
	creds, err = repo.Load()
	require.NoError(t, err)
	assert.Equal(t, "a2", creds.Tokens.Access)
	assert.Nil(t, creds.User)

	require.NoError(t, repo.Delete())
	creds, err = repo.Load()
	require.NoError(t, err)
	assert.Nil(t, creds)

	require.NoError(t, repo.Delete())
}

func TestMovieRepository(t *testing.T) {
	repo := NewMovieRepository(newTestDB(t))
	rating := 8.8

	cached, err := repo.Get(27205, 0)
	require.NoError(t, err)
	assert.Nil(t, cached)

	movie := &domain.Movie{ID: 27205, Title: "Inception", Year: 2010, IMDBRating: &rating}
	require.NoError(t, repo.Put(movie, time.Now()))

	cached, err = repo.Get(27205, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Inception", cached.Movie.Title)
	require.NotNil(t, cached.Movie.IMDBRating)
	assert.Equal(t, 8.8, *cached.Movie.IMDBRating)

	movie.Title = "Inception (2010)"
	require.NoError(t, repo.Put(movie, time.Now()))
	cached, err = repo.Get(27205, 0)
	require.NoError(t, err)
	assert.Equal(t, "Inception (2010)", cached.Movie.Title)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMovieRepositoryStaleEntries(t *testing.T) {
	repo := NewMovieRepository(newTestDB(t))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, repo.Put(&domain.Movie{ID: 1, Title: "Heat"}, old))
	require.NoError(t, repo.Put(&domain.Movie{ID: 2, Title: "Ronin"}, time.Now()))

	cached, err := repo.Get(1, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, cached)

	cached, err = repo.Get(1, 0)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Heat", cached.Movie.Title)

	removed, err := repo.Purge(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, repo.Delete(2))
	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}
