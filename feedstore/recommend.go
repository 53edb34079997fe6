package feedstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/burstcamp/feedpipe/dbopen"
)

// ListRecommend returns the current derived view entries, most recent first.
func (s *Store) ListRecommend(ctx context.Context) ([]*Feed, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM recommend_feeds
		ORDER BY published_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// RebuildRecommend replaces the derived view with the given feeds in one
// committed batch: clear the scrap sub-relation, clear the entries, insert
// the new entries. On any failure the transaction rolls back and the view
// keeps its previous contents.
func (s *Store) RebuildRecommend(ctx context.Context, feeds []*Feed) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommend_scraps`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommend_feeds`); err != nil {
			return err
		}
		for _, f := range feeds {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO recommend_feeds (id, writer_id, title, url,
				thumbnail_url, content, published_at, registered_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				f.ID, f.WriterID, f.Title, f.URL, f.ThumbnailURL, f.Content,
				f.PublishedAt, f.RegisteredAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertRecommendScrap mirrors a scrap edge onto the view copy of a feed,
// if the feed is currently in the view. Absence is a no-op: the view is
// transient and the feed_scraps table remains the source of truth.
func (s *Store) InsertRecommendScrap(ctx context.Context, feedID, userID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO recommend_scraps (feed_id, user_id, scrapped_at)
		SELECT id, ?, ? FROM recommend_feeds WHERE id = ?
		ON CONFLICT(feed_id, user_id) DO NOTHING`,
		userID, time.Now().UnixMilli(), feedID)
	return err
}

// DeleteRecommendScrap removes the mirrored edge from the view copy.
func (s *Store) DeleteRecommendScrap(ctx context.Context, feedID, userID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM recommend_scraps WHERE feed_id = ? AND user_id = ?`,
		feedID, userID)
	return err
}

// CountRecommendScraps returns the number of mirrored edges on a view entry.
func (s *Store) CountRecommendScraps(ctx context.Context, feedID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recommend_scraps WHERE feed_id = ?`, feedID).Scan(&count)
	return count, err
}
