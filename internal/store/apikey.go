package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"trackio.app/trackio/internal/model"
)

type apiKeyStore struct {
	db DBTX
}

func newAPIKeyStore(db DBTX) APIKeyStore {
	return &apiKeyStore{db: db}
}

func (s *apiKeyStore) GetUserIDByHash(ctx context.Context, hashedKey string) (string, error) {
	var userID string
	err := s.db.QueryRow(ctx,
		`SELECT user_id FROM extension_api_keys WHERE hashed_key = $1`,
		hashedKey,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

func (s *apiKeyStore) Create(ctx context.Context, key *model.APIKey) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO extension_api_keys (hashed_key, user_id)
		 VALUES ($1, $2)
		 RETURNING created_at`,
		key.HashedKey, key.UserID,
	).Scan(&key.CreatedAt)
}
