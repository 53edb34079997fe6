package feedstore

import (
	"context"
	"time"
)

// InsertScrap creates one scrap edge. Scrapping an already-scrapped feed
// is a no-op (the edge either exists or it doesn't).
func (s *Store) InsertScrap(ctx context.Context, feedID, userID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO feed_scraps (feed_id, user_id, scrapped_at) VALUES (?, ?, ?)
		ON CONFLICT(feed_id, user_id) DO NOTHING`,
		feedID, userID, time.Now().UnixMilli())
	return err
}

// DeleteScrap removes one scrap edge. Removing an absent edge is a no-op.
func (s *Store) DeleteScrap(ctx context.Context, feedID, userID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM feed_scraps WHERE feed_id = ? AND user_id = ?`, feedID, userID)
	return err
}

// CountScraps returns the number of scrap edges for a feed. The count is
// always derived from the edge set, never read from a stored counter.
func (s *Store) CountScraps(ctx context.Context, feedID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feed_scraps WHERE feed_id = ?`, feedID).Scan(&count)
	return count, err
}

// DeleteScrapsByFeed removes every scrap edge referencing a feed.
func (s *Store) DeleteScrapsByFeed(ctx context.Context, feedID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM feed_scraps WHERE feed_id = ?`, feedID)
	return err
}

// DeleteScrapsByUser removes every scrap edge a user holds, across all feeds.
func (s *Store) DeleteScrapsByUser(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM feed_scraps WHERE user_id = ?`, userID)
	return err
}

// ScrapFeedIDsByUser returns the ids of all feeds a user has scrapped.
func (s *Store) ScrapFeedIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT feed_id FROM feed_scraps WHERE user_id = ? ORDER BY scrapped_at ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
