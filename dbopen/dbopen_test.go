package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemory(t *testing.T) {
	// WHAT: OpenMemory returns a usable in-memory database.
	// WHY: Every store test in the repository builds on this helper.
	db := OpenMemory(t)
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	// WHAT: foreign_keys and busy_timeout pragmas are applied on open.
	// WHY: Edge-table cascades rely on foreign_keys=ON being set.
	db := OpenMemory(t, WithBusyTimeout(5000))

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}

	var busy int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if busy != 5000 {
		t.Errorf("busy_timeout: got %d, want 5000", busy)
	}
}

func TestOpenWithSchema(t *testing.T) {
	// WHAT: WithSchema executes DDL before Open returns.
	// WHY: Callers open the store and schema in one step.
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (id TEXT PRIMARY KEY)`))
	if _, err := db.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestOpenWithMkdirAll(t *testing.T) {
	// WHAT: WithMkdirAll creates missing parent directories.
	// WHY: First boot on a fresh host has no data directory yet.
	path := filepath.Join(t.TempDir(), "nested", "dir", "feeds.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdir: %v", err)
	}
	db.Close()
}

func TestRunTxCommit(t *testing.T) {
	// WHAT: RunTx commits all writes when fn succeeds.
	// WHY: RunTx is the batch-commit primitive for rebuilds and cascades.
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO t (id) VALUES ('b')`)
		return err
	})
	if err != nil {
		t.Fatalf("run tx: %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count)
	if count != 2 {
		t.Errorf("rows: got %d, want 2", count)
	}
}

func TestRunTxRollback(t *testing.T) {
	// WHAT: RunTx rolls back every write when fn fails.
	// WHY: A failed rebuild must leave the previous view contents intact.
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	boom := errors.New("boom")
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&count)
	if count != 0 {
		t.Errorf("rows after rollback: got %d, want 0", count)
	}
}

func TestIsBusy(t *testing.T) {
	// WHAT: IsBusy recognises lock errors and nothing else.
	// WHY: Retry must not swallow real failures.
	if IsBusy(nil) {
		t.Error("nil should not be busy")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("SQLITE_BUSY should be busy")
	}
	if IsBusy(errors.New("no such table: t")) {
		t.Error("schema error should not be busy")
	}
}
