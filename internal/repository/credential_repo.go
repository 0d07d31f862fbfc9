package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liliang-cn/moviechat/internal/domain"
)

const defaultProfile = "default"

// CredentialRepository persists the login state
type CredentialRepository struct {
	db      *DB
	profile string
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db, profile: defaultProfile}
}

// Save stores creds, replacing any previous login
func (r *CredentialRepository) Save(creds *domain.Credentials) error {
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = time.Now()
	}

	var userJSON sql.NullString
	if creds.User != nil {
		data, err := json.Marshal(creds.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		userJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO credentials (profile, access_token, refresh_token, user, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user = excluded.user,
			updated_at = excluded.updated_at
	`, r.profile, creds.Tokens.Access, creds.Tokens.Refresh, userJSON, creds.UpdatedAt.UnixMilli())

	return err
}

// Load returns the stored login state, or nil when logged out
func (r *CredentialRepository) Load() (*domain.Credentials, error) {
	creds := &domain.Credentials{}
	var userJSON sql.NullString
	var updatedAt int64

	err := r.db.QueryRow(`
		SELECT access_token, refresh_token, user, updated_at
		FROM credentials WHERE profile = ?
	`, r.profile).Scan(&creds.Tokens.Access, &creds.Tokens.Refresh, &userJSON, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	creds.UpdatedAt = time.UnixMilli(updatedAt)
	if userJSON.Valid && userJSON.String != "" {
		creds.User = &domain.User{}
		if err := json.Unmarshal([]byte(userJSON.String), creds.User); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
	}

	return creds, nil
}

// Delete removes the stored login state
func (r *CredentialRepository) Delete() error {
	_, err := r.db.Exec(`DELETE FROM credentials WHERE profile = ?`, r.profile)
	return err
}
