package feedstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const feedColumns = `id, writer_id, title, url, thumbnail_url, content,
	published_at, registered_at`

// FeedExists reports whether a feed with the given id is stored.
// This is the ingestion idempotency check.
func (s *Store) FeedExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx,
		`SELECT 1 FROM feeds WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// InsertFeed writes a new feed record. Feeds are immutable: the primary
// key conflict on a duplicate id is a caller bug, not an update path.
func (s *Store) InsertFeed(ctx context.Context, f *Feed) error {
	if f.RegisteredAt == 0 {
		f.RegisteredAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO feeds (id, writer_id, title, url, thumbnail_url, content,
		published_at, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.WriterID, f.Title, f.URL, f.ThumbnailURL, f.Content,
		f.PublishedAt, f.RegisteredAt,
	)
	return err
}

// GetFeed retrieves a feed by id, or (nil, nil) if absent.
func (s *Store) GetFeed(ctx context.Context, id string) (*Feed, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	return scanFeed(row)
}

// DeleteFeed removes the feed record itself. Callers that need the full
// cascade (edges first) go through scrap.Manager.DeleteFeed.
func (s *Store) DeleteFeed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id)
	return err
}

// TopFeeds returns the most recently published feeds, ties broken by id
// ascending for determinism.
func (s *Store) TopFeeds(ctx context.Context, limit int) ([]*Feed, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds
		ORDER BY published_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// ListFeedsPage returns one publish-ordered page. A nil cursor means the
// first page; otherwise the page strictly after the cursor position.
func (s *Store) ListFeedsPage(ctx context.Context, cursor *Cursor, limit int) ([]*Feed, error) {
	var rows *sql.Rows
	var err error
	if cursor == nil {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT `+feedColumns+` FROM feeds
			ORDER BY published_at DESC, id ASC LIMIT ?`, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx,
			`SELECT `+feedColumns+` FROM feeds
			WHERE published_at < ? OR (published_at = ? AND id > ?)
			ORDER BY published_at DESC, id ASC LIMIT ?`,
			cursor.PublishedAt, cursor.PublishedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// FeedsByWriter returns all feeds authored by a writer.
func (s *Store) FeedsByWriter(ctx context.Context, writerID string) ([]*Feed, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE writer_id = ?
		ORDER BY published_at DESC, id ASC`, writerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeeds(rows)
}

func collectFeeds(rows *sql.Rows) ([]*Feed, error) {
	var feeds []*Feed
	for rows.Next() {
		f, err := scanFeedRows(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func scanFeed(row *sql.Row) (*Feed, error) {
	var f Feed
	err := row.Scan(&f.ID, &f.WriterID, &f.Title, &f.URL, &f.ThumbnailURL,
		&f.Content, &f.PublishedAt, &f.RegisteredAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	return &f, nil
}

func scanFeedRows(rows *sql.Rows) (*Feed, error) {
	var f Feed
	err := rows.Scan(&f.ID, &f.WriterID, &f.Title, &f.URL, &f.ThumbnailURL,
		&f.Content, &f.PublishedAt, &f.RegisteredAt)
	if err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	return &f, nil
}
