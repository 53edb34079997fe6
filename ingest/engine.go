package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/burstcamp/feedpipe/feedstore"
)

// Store is the persistence surface the engine writes through.
// *feedstore.Store satisfies it.
type Store interface {
	ListWriters(ctx context.Context) ([]*feedstore.Writer, error)
	ResolveWriterByBlogURL(ctx context.Context, blogURL string) (*feedstore.Writer, error)
	FeedExists(ctx context.Context, id string) (bool, error)
	InsertFeed(ctx context.Context, f *feedstore.Feed) error
}

// Rebuilder refreshes the recommendation view after an ingestion pass.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// Config configures the engine.
type Config struct {
	// Interval between ingestion passes. Default: 30 minutes.
	Interval time.Duration
	// Concurrency bounds how many writers are ingested at once. Default: 4.
	Concurrency int
	// MaxItems caps the entries taken from one source per pass. Default: 30.
	MaxItems int
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 30
	}
}

// Engine walks every registered writer's RSS source and converts new
// entries into feed records. Passes are idempotent: a record keyed by
// hash of the entry link is written at most once, ever.
type Engine struct {
	store     Store
	fetcher   *Fetcher
	content   *ContentFetcher
	rebuilder Rebuilder
	config    Config
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store Store, fetcher *Fetcher, content *ContentFetcher, rebuilder Rebuilder, cfg Config, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		fetcher:   fetcher,
		content:   content,
		rebuilder: rebuilder,
		config:    cfg,
		logger:    logger,
	}
}

// IngestAll runs one full pass: every writer's source, bounded fan-out,
// one recommendation rebuild at the end. A writer whose source is
// unreachable or malformed is logged and skipped; it never poisons the
// rest of the pass.
func (e *Engine) IngestAll(ctx context.Context) error {
	start := time.Now()

	writers, err := e.store.ListWriters(ctx)
	if err != nil {
		return fmt.Errorf("list writers: %w", err)
	}

	var inserted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for _, w := range writers {
		g.Go(func() error {
			n, err := e.ingestWriter(gctx, w)
			if err != nil {
				e.logger.Warn("ingest: writer pass failed",
					"writer_id", w.ID, "blog_url", w.BlogURL, "error", err)
				return nil // isolate per-writer failures
			}
			inserted.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.rebuilder.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild recommendations: %w", err)
	}

	e.logger.Info("ingest: pass complete",
		"writers", len(writers), "new_feeds", inserted.Load(),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// ingestWriter fetches and parses one writer's source, then ingests its
// entries. Returns the number of records inserted.
func (e *Engine) ingestWriter(ctx context.Context, w *feedstore.Writer) (int, error) {
	rssURL, err := FeedURL(w.BlogURL)
	if err != nil {
		return 0, err
	}

	body, err := e.fetcher.Fetch(ctx, rssURL)
	if err != nil {
		return 0, fmt.Errorf("fetch source: %w", err)
	}

	src, err := ParseSource(body)
	if err != nil {
		return 0, err
	}

	// The channel link decides ownership, not the registration record:
	// blogs move, channel links carry the slash convention of the host.
	owner := w
	if src.BlogURL != "" {
		resolved, err := e.store.ResolveWriterByBlogURL(ctx, src.BlogURL)
		if err != nil {
			if errors.Is(err, feedstore.ErrNoWriter) {
				return 0, fmt.Errorf("channel link %s matches no writer", src.BlogURL)
			}
			return 0, fmt.Errorf("resolve writer: %w", err)
		}
		owner = resolved
	}

	items := src.Items
	if len(items) > e.config.MaxItems {
		items = items[:e.config.MaxItems]
	}

	var inserted int
	for _, item := range items {
		ok, err := e.IngestOne(ctx, owner, item)
		if err != nil {
			e.logger.Warn("ingest: item skipped",
				"writer_id", owner.ID, "link", item.Link, "error", err)
			continue
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// IngestOne writes one entry as a feed record, keyed by the hash of its
// link. Returns false if the record already exists; existing records are
// never touched.
func (e *Engine) IngestOne(ctx context.Context, owner *feedstore.Writer, item Item) (bool, error) {
	id := feedstore.FeedID(item.Link)

	exists, err := e.store.FeedExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	if exists {
		return false, nil
	}

	content, err := e.content.FetchContent(ctx, item.Link)
	if err != nil {
		return false, fmt.Errorf("fetch content: %w", err)
	}

	f := &feedstore.Feed{
		ID:           id,
		WriterID:     owner.ID,
		Title:        item.Title,
		URL:          item.Link,
		ThumbnailURL: item.ThumbnailURL,
		Content:      content,
		PublishedAt:  item.PublishedAt,
		RegisteredAt: time.Now().UnixMilli(),
	}
	if err := e.store.InsertFeed(ctx, f); err != nil {
		return false, fmt.Errorf("insert feed: %w", err)
	}
	return true, nil
}

// Run executes passes on a ticker until ctx is cancelled. The first pass
// starts immediately.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	if err := e.IngestAll(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("ingest: pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.IngestAll(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("ingest: pass failed", "error", err)
			}
		}
	}
}
