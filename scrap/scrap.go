// Package scrap keeps the many-to-many user↔feed bookmark edges
// consistent, including the cascades when a feed or a user goes away.
package scrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/burstcamp/feedpipe/feedstore"
	"github.com/burstcamp/feedpipe/recommend"
)

// ErrNotFound is returned when an operation targets a feed that is not
// stored.
var ErrNotFound = errors.New("scrap: feed not found")

// Manager coordinates scrap edges across the feed store and the
// recommendation view's mirrored copy.
type Manager struct {
	store  *feedstore.Store
	view   *recommend.View
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(store *feedstore.Store, view *recommend.View, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, view: view, logger: logger}
}

// Scrap records that a user bookmarked a feed. Scrapping twice is a
// no-op. Scrapping a feed that does not exist returns ErrNotFound.
func (m *Manager) Scrap(ctx context.Context, feedID, userID string) error {
	exists, err := m.store.FeedExists(ctx, feedID)
	if err != nil {
		return fmt.Errorf("exists check: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, feedID)
	}
	if err := m.store.InsertScrap(ctx, feedID, userID); err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	// Mirror onto the view copy if the feed is currently recommended.
	if err := m.store.InsertRecommendScrap(ctx, feedID, userID); err != nil {
		m.logger.Warn("scrap: view mirror failed", "feed_id", feedID, "error", err)
	}
	return nil
}

// Unscrap removes one user's bookmark on one feed. Other users' edges on
// the same feed are untouched. Removing an absent edge is a no-op.
func (m *Manager) Unscrap(ctx context.Context, feedID, userID string) error {
	if err := m.store.DeleteScrap(ctx, feedID, userID); err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if err := m.store.DeleteRecommendScrap(ctx, feedID, userID); err != nil {
		m.logger.Warn("scrap: view mirror failed", "feed_id", feedID, "error", err)
	}
	return nil
}

// CountScraps returns the number of users who scrapped a feed, derived
// from the edge set. Returns ErrNotFound for a feed that is not stored.
func (m *Manager) CountScraps(ctx context.Context, feedID string) (int, error) {
	exists, err := m.store.FeedExists(ctx, feedID)
	if err != nil {
		return 0, fmt.Errorf("exists check: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, feedID)
	}
	return m.store.CountScraps(ctx, feedID)
}

// DeleteFeed removes a feed and every scrap edge referencing it, edges
// first so no edge ever points at a missing feed. The view is rebuilt
// afterwards so a recommended feed disappears from the view too.
// Deleting an absent feed is a no-op.
func (m *Manager) DeleteFeed(ctx context.Context, feedID string) error {
	if err := m.deleteFeedCascade(ctx, feedID); err != nil {
		return err
	}
	if err := m.view.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild view: %w", err)
	}
	return nil
}

// deleteFeedCascade is the edge-then-record deletion without the view
// rebuild, shared by DeleteFeed and DeleteUser.
func (m *Manager) deleteFeedCascade(ctx context.Context, feedID string) error {
	if err := m.store.DeleteScrapsByFeed(ctx, feedID); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	if err := m.store.DeleteFeed(ctx, feedID); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return nil
}

// DeleteUser removes everything tied to a user: each feed they authored
// (with its full edge cascade), their own scrap edges on other feeds,
// their push token, and the writer record. The view is rebuilt once at
// the end.
func (m *Manager) DeleteUser(ctx context.Context, userID string) error {
	authored, err := m.store.FeedsByWriter(ctx, userID)
	if err != nil {
		return fmt.Errorf("list authored feeds: %w", err)
	}
	for _, f := range authored {
		if err := m.deleteFeedCascade(ctx, f.ID); err != nil {
			return fmt.Errorf("cascade feed %s: %w", f.ID, err)
		}
	}

	if err := m.store.DeleteScrapsByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user edges: %w", err)
	}
	if err := m.store.DeletePushToken(ctx, userID); err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	if err := m.store.DeleteWriter(ctx, userID); err != nil {
		return fmt.Errorf("delete writer: %w", err)
	}

	if err := m.view.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild view: %w", err)
	}
	m.logger.Info("scrap: user deleted", "user_id", userID, "authored_feeds", len(authored))
	return nil
}
