package feedstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const writerColumns = `id, nickname, ordinal, domain, profile_image_url,
	blog_title, blog_url, is_push_on, created_at`

// InsertWriter registers a writer.
func (s *Store) InsertWriter(ctx context.Context, w *Writer) error {
	if w.CreatedAt == 0 {
		w.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO writers (id, nickname, ordinal, domain, profile_image_url,
		blog_title, blog_url, is_push_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Nickname, w.Ordinal, w.Domain, w.ProfileImageURL,
		w.BlogTitle, w.BlogURL, boolInt(w.IsPushOn), w.CreatedAt,
	)
	return err
}

// GetWriter retrieves a writer by id, or (nil, nil) if absent.
func (s *Store) GetWriter(ctx context.Context, id string) (*Writer, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+writerColumns+` FROM writers WHERE id = ?`, id)
	return scanWriter(row)
}

// ListWriters returns all registered writers, oldest registration first.
func (s *Store) ListWriters(ctx context.Context) ([]*Writer, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+writerColumns+` FROM writers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var writers []*Writer
	for rows.Next() {
		w, err := scanWriterRows(rows)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, rows.Err()
}

// DeleteWriter removes a writer's identity record.
func (s *Store) DeleteWriter(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM writers WHERE id = ?`, id)
	return err
}

// ResolveWriterByBlogURL finds the writer owning a blog URL. The URL may
// arrive with or without a trailing slash, so matching is a range scan
// between the trimmed URL and the trimmed URL plus separator.
// Returns ErrNoWriter when no registered writer matches.
func (s *Store) ResolveWriterByBlogURL(ctx context.Context, blogURL string) (*Writer, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(blogURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrNoWriter)
	}
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+writerColumns+` FROM writers
		WHERE blog_url >= ? AND blog_url <= ?
		ORDER BY blog_url ASC LIMIT 1`, trimmed, trimmed+"/")
	w, err := scanWriter(row)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWriter, blogURL)
	}
	return w, nil
}

// SetPushToken upserts the push delivery token for a user.
func (s *Store) SetPushToken(ctx context.Context, userID, token string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO push_tokens (user_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET token = excluded.token,
		updated_at = excluded.updated_at`,
		userID, token, time.Now().UnixMilli())
	return err
}

// GetPushToken returns the push token for a user, or "" if none is stored.
func (s *Store) GetPushToken(ctx context.Context, userID string) (string, error) {
	var token string
	err := s.DB.QueryRowContext(ctx,
		`SELECT token FROM push_tokens WHERE user_id = ?`, userID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return token, err
}

// DeletePushToken removes a user's push token record.
func (s *Store) DeletePushToken(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM push_tokens WHERE user_id = ?`, userID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanWriter(row *sql.Row) (*Writer, error) {
	var w Writer
	var pushOn int
	err := row.Scan(&w.ID, &w.Nickname, &w.Ordinal, &w.Domain, &w.ProfileImageURL,
		&w.BlogTitle, &w.BlogURL, &pushOn, &w.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan writer: %w", err)
	}
	w.IsPushOn = pushOn != 0
	return &w, nil
}

func scanWriterRows(rows *sql.Rows) (*Writer, error) {
	var w Writer
	var pushOn int
	err := rows.Scan(&w.ID, &w.Nickname, &w.Ordinal, &w.Domain, &w.ProfileImageURL,
		&w.BlogTitle, &w.BlogURL, &pushOn, &w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan writer: %w", err)
	}
	w.IsPushOn = pushOn != 0
	return &w, nil
}
