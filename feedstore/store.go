package feedstore

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
)

// Store wraps the feedpipe database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// FeedID derives the deterministic feed id from the canonical item URL.
// The id doubles as the ingestion idempotency token.
func FeedID(itemURL string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(itemURL)))
	return fmt.Sprintf("%x", h)
}
