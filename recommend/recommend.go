// Package recommend maintains the derived view of the most recent feeds.
//
// The view is a denormalized copy, never the source of truth: every
// refresh discards it wholesale and repopulates it from the feed store.
package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/burstcamp/feedpipe/feedstore"
)

// DefaultLimit is how many feeds the view holds.
const DefaultLimit = 3

// View exposes the recommendation slice of the feed store.
type View struct {
	store  *feedstore.Store
	limit  int
	logger *slog.Logger
}

// New creates a View. limit <= 0 selects DefaultLimit.
func New(store *feedstore.Store, limit int, logger *slog.Logger) *View {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &View{store: store, limit: limit, logger: logger}
}

// Rebuild snapshots the most recent feeds and replaces the view with
// them in one committed batch. On failure the previous contents stay
// visible. Concurrent rebuilds are safe; the last commit wins.
func (v *View) Rebuild(ctx context.Context) error {
	top, err := v.store.TopFeeds(ctx, v.limit)
	if err != nil {
		return fmt.Errorf("snapshot top feeds: %w", err)
	}
	if err := v.store.RebuildRecommend(ctx, top); err != nil {
		return fmt.Errorf("rebuild view: %w", err)
	}
	v.logger.Debug("recommend: rebuilt", "entries", len(top))
	return nil
}

// Entries returns the current view contents, most recent first.
func (v *View) Entries(ctx context.Context) ([]*feedstore.Feed, error) {
	return v.store.ListRecommend(ctx)
}
