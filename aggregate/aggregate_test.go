package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/burstcamp/feedpipe/dbopen"
	"github.com/burstcamp/feedpipe/feedstore"

	_ "modernc.org/sqlite"
)

// stubSource is an in-memory Source with switchable failures, for
// exercising the state machine without a database.
type stubSource struct {
	mu          sync.Mutex
	feeds       []*feedstore.Feed // publish order, most recent first
	recommend   []*feedstore.Feed
	writers     map[string]*feedstore.Writer
	counts      map[string]int
	failCounts  bool
	failWriters bool
	pageGate    chan struct{} // if set, ListFeedsPage blocks until closed
	pageEntered chan struct{} // if set, closed when ListFeedsPage is reached
	enterOnce   sync.Once
}

var errStub = errors.New("stub failure")

func (s *stubSource) ListRecommend(ctx context.Context) ([]*feedstore.Feed, error) {
	return append([]*feedstore.Feed(nil), s.recommend...), nil
}

func (s *stubSource) ListFeedsPage(ctx context.Context, cursor *feedstore.Cursor, limit int) ([]*feedstore.Feed, error) {
	s.mu.Lock()
	gate := s.pageGate
	entered := s.pageEntered
	s.mu.Unlock()
	if entered != nil {
		s.enterOnce.Do(func() { close(entered) })
	}
	if gate != nil {
		<-gate
	}

	start := 0
	if cursor != nil {
		for i, f := range s.feeds {
			if f.PublishedAt < cursor.PublishedAt ||
				(f.PublishedAt == cursor.PublishedAt && f.ID > cursor.ID) {
				start = i
				break
			}
			start = len(s.feeds)
		}
	}
	end := start + limit
	if end > len(s.feeds) {
		end = len(s.feeds)
	}
	return append([]*feedstore.Feed(nil), s.feeds[start:end]...), nil
}

func (s *stubSource) GetWriter(ctx context.Context, id string) (*feedstore.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWriters {
		return nil, errStub
	}
	return s.writers[id], nil
}

func (s *stubSource) CountScraps(ctx context.Context, feedID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCounts {
		return 0, errStub
	}
	return s.counts[feedID], nil
}

func feed(id string, publishedAt int64) *feedstore.Feed {
	return &feedstore.Feed{ID: id, WriterID: "w1", Title: id, PublishedAt: publishedAt}
}

func newStub(n int) *stubSource {
	s := &stubSource{
		writers: map[string]*feedstore.Writer{"w1": {ID: "w1", Nickname: "luha"}},
		counts:  map[string]int{},
	}
	for i := 0; i < n; i++ {
		s.feeds = append(s.feeds, feed(string(rune('a'+i)), int64(1000-i)))
	}
	return s
}

func TestFetchAllJoinsAgainstStore(t *testing.T) {
	// WHAT: FetchAll produces cells with the writer and the live scrap
	// count joined in, backed by the real store.
	db := dbopen.OpenMemory(t)
	if err := feedstore.ApplySchema(db); err != nil {
		t.Fatal(err)
	}
	store := feedstore.NewStore(db)
	ctx := context.Background()

	store.InsertWriter(ctx, &feedstore.Writer{ID: "w1", Nickname: "luha", BlogURL: "https://luha.example.com"})
	f := &feedstore.Feed{ID: "f1", WriterID: "w1", Title: "post", URL: "https://luha.example.com/p/1", PublishedAt: 100}
	store.InsertFeed(ctx, f)
	store.InsertScrap(ctx, "f1", "u1")
	store.InsertScrap(ctx, "f1", "u2")
	store.RebuildRecommend(ctx, []*feedstore.Feed{f})

	a := New(store, Config{PageSize: 10}, nil)
	if err := a.FetchAll(ctx); err != nil {
		t.Fatalf("fetch all: %v", err)
	}

	feeds := a.Feeds()
	if len(feeds) != 1 {
		t.Fatalf("feeds: got %d, want 1", len(feeds))
	}
	if feeds[0].Writer == nil || feeds[0].Writer.Nickname != "luha" {
		t.Errorf("writer join: %+v", feeds[0].Writer)
	}
	if feeds[0].ScrapCount != 2 {
		t.Errorf("scrap count: got %d, want 2", feeds[0].ScrapCount)
	}

	rec := a.Recommend()
	if len(rec) != 1 || rec[0].Feed.ID != "f1" {
		t.Fatalf("recommend cells: %+v", rec)
	}
}

func TestSingleFetchInFlight(t *testing.T) {
	// WHAT: A second fetch while one is running is rejected, not queued.
	src := newStub(3)
	gate := make(chan struct{})
	src.pageGate = gate
	src.pageEntered = make(chan struct{})
	a := New(src, Config{PageSize: 2}, nil)

	done := make(chan error, 1)
	go func() { done <- a.FetchAll(context.Background()) }()
	<-src.pageEntered

	// The first fetch is parked on the gate; a second one must bounce.
	if err := a.FetchAll(context.Background()); !errors.Is(err, ErrFetchInFlight) {
		t.Errorf("second fetch: got %v, want ErrFetchInFlight", err)
	}
	if err := a.PaginateMore(context.Background()); !errors.Is(err, ErrFetchInFlight) {
		t.Errorf("paginate during fetch: got %v, want ErrFetchInFlight", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first fetch: %v", err)
	}
}

func TestPaginateToEnd(t *testing.T) {
	// WHAT: Pages append without duplicates; a short page ends pagination.
	src := newStub(5)
	a := New(src, Config{PageSize: 2}, nil)
	ctx := context.Background()

	if err := a.FetchAll(ctx); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if got := len(a.Feeds()); got != 2 {
		t.Fatalf("page 1: got %d cells", got)
	}
	if !a.CanPaginate() {
		t.Fatal("should allow pagination after a full page")
	}

	if err := a.PaginateMore(ctx); err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if err := a.PaginateMore(ctx); err != nil {
		t.Fatalf("page 3: %v", err)
	}

	feeds := a.Feeds()
	if len(feeds) != 5 {
		t.Fatalf("total cells: got %d, want 5", len(feeds))
	}
	seen := map[string]bool{}
	for _, c := range feeds {
		if seen[c.Feed.ID] {
			t.Errorf("duplicate cell %s", c.Feed.ID)
		}
		seen[c.Feed.ID] = true
	}

	if a.CanPaginate() {
		t.Error("pagination should stop after a short page")
	}
	if err := a.PaginateMore(ctx); !errors.Is(err, ErrPaginationStopped) {
		t.Errorf("paginate past end: got %v, want ErrPaginationStopped", err)
	}
}

func TestFailureRevokesPagination(t *testing.T) {
	// WHAT: A failed page load revokes pagination until the next
	// successful full fetch.
	src := newStub(6)
	a := New(src, Config{PageSize: 2}, nil)
	ctx := context.Background()

	if err := a.FetchAll(ctx); err != nil {
		t.Fatalf("fetch all: %v", err)
	}

	src.mu.Lock()
	src.failCounts = true
	src.mu.Unlock()

	if err := a.PaginateMore(ctx); err == nil {
		t.Fatal("paginate with failing joins should error")
	}
	if a.CanPaginate() {
		t.Error("pagination should be revoked after failure")
	}
	if err := a.PaginateMore(ctx); !errors.Is(err, ErrPaginationStopped) {
		t.Errorf("paginate after failure: got %v, want ErrPaginationStopped", err)
	}

	// Recovery path: a fresh full fetch rearms pagination.
	src.mu.Lock()
	src.failCounts = false
	src.mu.Unlock()
	if err := a.FetchAll(ctx); err != nil {
		t.Fatalf("recovery fetch: %v", err)
	}
	if !a.CanPaginate() {
		t.Error("pagination should be restored after recovery")
	}
}

func TestMissingWriterFailsFetch(t *testing.T) {
	// WHAT: A feed whose writer record is gone fails the page join rather
	// than producing a cell with a null writer.
	src := newStub(2)
	src.feeds = append(src.feeds, &feedstore.Feed{
		ID: "orphan", WriterID: "w-gone", Title: "orphan", PublishedAt: 1,
	})
	a := New(src, Config{PageSize: 10}, nil)

	if err := a.FetchAll(context.Background()); err == nil {
		t.Fatal("fetch with an orphaned feed should error")
	}
	if len(a.Feeds()) != 0 {
		t.Error("partial snapshot published after failed join")
	}
}

func TestJoinFailureFailsFetch(t *testing.T) {
	// WHAT: One bad join fails the whole fetch; no partial snapshot is
	// published.
	src := newStub(3)
	src.failWriters = true
	a := New(src, Config{PageSize: 2}, nil)

	if err := a.FetchAll(context.Background()); err == nil {
		t.Fatal("fetch with failing writer join should error")
	}
	if len(a.Feeds()) != 0 || len(a.Recommend()) != 0 {
		t.Error("partial snapshot published after failed fetch")
	}
	if a.CanPaginate() {
		t.Error("pagination allowed after failed fetch")
	}
}
