// Package aggregate assembles display-ready feed cells: each feed joined
// with its writer and its scrap count, fetched concurrently.
//
// The Aggregator is a small state machine. At most one fetch is in
// flight at a time; a failed fetch revokes pagination until the next
// successful full fetch.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/burstcamp/feedpipe/feedstore"
)

var (
	// ErrFetchInFlight is returned when a fetch is requested while
	// another one is still running.
	ErrFetchInFlight = errors.New("aggregate: fetch already in flight")
	// ErrPaginationStopped is returned by PaginateMore after a failure
	// or once the last page has been reached.
	ErrPaginationStopped = errors.New("aggregate: pagination stopped")
)

// Source is the read surface the aggregator joins across.
// *feedstore.Store satisfies it.
type Source interface {
	ListRecommend(ctx context.Context) ([]*feedstore.Feed, error)
	ListFeedsPage(ctx context.Context, cursor *feedstore.Cursor, limit int) ([]*feedstore.Feed, error)
	GetWriter(ctx context.Context, id string) (*feedstore.Writer, error)
	CountScraps(ctx context.Context, feedID string) (int, error)
}

// Cell is one display-ready feed: the record plus everything joined in.
type Cell struct {
	Feed       *feedstore.Feed   `json:"feed"`
	Writer     *feedstore.Writer `json:"writer"`
	ScrapCount int               `json:"scrap_count"`
}

type state int

const (
	stateIdle state = iota
	stateFetching
	stateFailed
)

// Config configures the aggregator.
type Config struct {
	// PageSize is how many feeds one page holds. Default: 20.
	PageSize int
	// JoinConcurrency bounds the per-cell join fan-out. Default: 8.
	JoinConcurrency int
}

func (c *Config) defaults() {
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.JoinConcurrency <= 0 {
		c.JoinConcurrency = 8
	}
}

// Aggregator holds the assembled snapshot and the fetch state.
type Aggregator struct {
	source Source
	config Config
	logger *slog.Logger

	mu          sync.Mutex
	state       state
	canPaginate bool
	cursor      *feedstore.Cursor
	recommend   []*Cell
	feeds       []*Cell
}

// New creates an Aggregator.
func New(source Source, cfg Config, logger *slog.Logger) *Aggregator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{source: source, config: cfg, logger: logger}
}

// FetchAll loads the recommendation cells and the first feed page,
// concurrently, replacing any previous snapshot. While it runs, further
// FetchAll and PaginateMore calls return ErrFetchInFlight. On failure
// the aggregator enters the failed state and pagination stays revoked
// until a later FetchAll succeeds.
func (a *Aggregator) FetchAll(ctx context.Context) error {
	if err := a.begin(); err != nil {
		return err
	}

	var recommend, firstPage []*Cell
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		feeds, err := a.source.ListRecommend(gctx)
		if err != nil {
			return fmt.Errorf("list recommend: %w", err)
		}
		recommend, err = a.buildCells(gctx, feeds)
		return err
	})
	g.Go(func() error {
		feeds, err := a.source.ListFeedsPage(gctx, nil, a.config.PageSize)
		if err != nil {
			return fmt.Errorf("list feeds: %w", err)
		}
		firstPage, err = a.buildCells(gctx, feeds)
		return err
	})
	if err := g.Wait(); err != nil {
		a.fail(err)
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.recommend = recommend
	a.feeds = firstPage
	a.cursor = cursorAfter(firstPage)
	a.canPaginate = len(firstPage) == a.config.PageSize
	a.state = stateIdle
	return nil
}

// PaginateMore appends the next feed page to the snapshot. Returns
// ErrPaginationStopped when the last page was already reached or a
// previous fetch failed, and ErrFetchInFlight while any fetch runs.
func (a *Aggregator) PaginateMore(ctx context.Context) error {
	a.mu.Lock()
	if a.state == stateFetching {
		a.mu.Unlock()
		return ErrFetchInFlight
	}
	if !a.canPaginate {
		a.mu.Unlock()
		return ErrPaginationStopped
	}
	cursor := a.cursor
	a.state = stateFetching
	a.mu.Unlock()

	feeds, err := a.source.ListFeedsPage(ctx, cursor, a.config.PageSize)
	if err != nil {
		a.fail(fmt.Errorf("list feeds page: %w", err))
		return err
	}
	cells, err := a.buildCells(ctx, feeds)
	if err != nil {
		a.fail(err)
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds = append(a.feeds, cells...)
	if next := cursorAfter(cells); next != nil {
		a.cursor = next
	}
	a.canPaginate = len(cells) == a.config.PageSize
	a.state = stateIdle
	return nil
}

// Recommend returns the recommendation cells from the last snapshot.
func (a *Aggregator) Recommend() []*Cell {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Cell(nil), a.recommend...)
}

// Feeds returns the accumulated feed cells from the last snapshot.
func (a *Aggregator) Feeds() []*Cell {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Cell(nil), a.feeds...)
}

// CanPaginate reports whether a further page may be requested.
func (a *Aggregator) CanPaginate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canPaginate
}

// begin moves idle/failed to fetching, or rejects a concurrent fetch.
func (a *Aggregator) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateFetching {
		return ErrFetchInFlight
	}
	a.state = stateFetching
	return nil
}

func (a *Aggregator) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = stateFailed
	a.canPaginate = false
	a.logger.Warn("aggregate: fetch failed", "error", err)
}

// buildCells joins writer and scrap count onto each feed concurrently.
// Any single join failure fails the whole batch.
func (a *Aggregator) buildCells(ctx context.Context, feeds []*feedstore.Feed) ([]*Cell, error) {
	cells := make([]*Cell, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.JoinConcurrency)
	for i, f := range feeds {
		g.Go(func() error {
			writer, err := a.source.GetWriter(gctx, f.WriterID)
			if err != nil {
				return fmt.Errorf("writer %s: %w", f.WriterID, err)
			}
			if writer == nil {
				return fmt.Errorf("writer %s: not found", f.WriterID)
			}
			count, err := a.source.CountScraps(gctx, f.ID)
			if err != nil {
				return fmt.Errorf("scrap count %s: %w", f.ID, err)
			}
			cells[i] = &Cell{Feed: f, Writer: writer, ScrapCount: count}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Keep the batch in publish order regardless of what the source
	// returned.
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Feed.PublishedAt != cells[j].Feed.PublishedAt {
			return cells[i].Feed.PublishedAt > cells[j].Feed.PublishedAt
		}
		return cells[i].Feed.ID < cells[j].Feed.ID
	})
	return cells, nil
}

func cursorAfter(cells []*Cell) *feedstore.Cursor {
	if len(cells) == 0 {
		return nil
	}
	last := cells[len(cells)-1].Feed
	return &feedstore.Cursor{PublishedAt: last.PublishedAt, ID: last.ID}
}
