package recommend

import (
	"context"
	"database/sql"
	"testing"

	"github.com/burstcamp/feedpipe/dbopen"
	"github.com/burstcamp/feedpipe/feedstore"

	_ "modernc.org/sqlite"
)

func setup(t *testing.T) (*sql.DB, *feedstore.Store, *View) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := feedstore.ApplySchema(db); err != nil {
		t.Fatal(err)
	}
	store := feedstore.NewStore(db)
	return db, store, New(store, 3, nil)
}

func insertFeed(t *testing.T, s *feedstore.Store, id string, publishedAt int64) {
	t.Helper()
	err := s.InsertFeed(context.Background(), &feedstore.Feed{
		ID: id, WriterID: "w1", Title: id,
		URL: "https://blog.example.com/" + id, PublishedAt: publishedAt,
	})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func viewIDs(t *testing.T, v *View) []string {
	t.Helper()
	entries, err := v.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRebuildTracksRecency(t *testing.T) {
	// WHAT: The view always holds the K most recent feeds after a rebuild,
	// including shrinking when newer feeds are deleted.
	_, store, view := setup(t)
	ctx := context.Background()

	// Fewer feeds than the limit: the view holds what exists.
	insertFeed(t, store, "day1", 100)
	view.Rebuild(ctx)
	if got := viewIDs(t, view); !equal(got, []string{"day1"}) {
		t.Fatalf("after day1: %v", got)
	}

	insertFeed(t, store, "day2", 200)
	insertFeed(t, store, "day3", 300)
	view.Rebuild(ctx)
	if got := viewIDs(t, view); !equal(got, []string{"day3", "day2", "day1"}) {
		t.Fatalf("after day3: %v", got)
	}

	// A fourth feed pushes out the oldest.
	insertFeed(t, store, "day4", 400)
	view.Rebuild(ctx)
	if got := viewIDs(t, view); !equal(got, []string{"day4", "day3", "day2"}) {
		t.Fatalf("after day4: %v", got)
	}

	// Deleting the newest brings the older one back on the next rebuild.
	store.DeleteFeed(ctx, "day4")
	view.Rebuild(ctx)
	if got := viewIDs(t, view); !equal(got, []string{"day3", "day2", "day1"}) {
		t.Fatalf("after day4 delete: %v", got)
	}
}

func TestRebuildIdempotent(t *testing.T) {
	// WHAT: Rebuilding twice with no changes gives identical contents.
	_, store, view := setup(t)
	ctx := context.Background()

	insertFeed(t, store, "a", 100)
	insertFeed(t, store, "b", 200)

	view.Rebuild(ctx)
	first := viewIDs(t, view)
	view.Rebuild(ctx)
	second := viewIDs(t, view)
	if !equal(first, second) {
		t.Errorf("rebuild not idempotent: %v vs %v", first, second)
	}
}

func TestRebuildFailureRetainsPrevious(t *testing.T) {
	// WHAT: A failed rebuild leaves the previous view contents intact.
	// WHY: Clear-then-repopulate must be atomic; readers never see the
	// cleared intermediate state.
	_, store, view := setup(t)
	ctx := context.Background()

	insertFeed(t, store, "a", 100)
	if err := view.Rebuild(ctx); err != nil {
		t.Fatalf("seed rebuild: %v", err)
	}

	insertFeed(t, store, "b", 200)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := view.Rebuild(cancelled); err == nil {
		t.Fatal("rebuild with cancelled ctx should fail")
	}

	if got := viewIDs(t, view); !equal(got, []string{"a"}) {
		t.Errorf("previous contents lost: %v", got)
	}
}

func TestEntriesEmptyView(t *testing.T) {
	// WHAT: An unbuilt view reads as empty, not as an error.
	_, _, view := setup(t)
	entries, err := view.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}
