package model

import "time"

// APIKey is the hashed extension credential mapping to a user. The plaintext
// key never touches storage; only the SHA-256 hex digest is persisted.
type APIKey struct {
	HashedKey string
	UserID    string
	CreatedAt time.Time
}
