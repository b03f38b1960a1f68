package watch

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	tmpDir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(tmpDir, "library.db"))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE songs (id INTEGER PRIMARY KEY, title TEXT)`); err != nil {
		t.Fatalf("create songs table failed: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE playlists (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create playlists table failed: %v", err)
	}
	return db
}

func testPoints() []WatchedPoint {
	return []WatchedPoint{
		{Name: "sync2gm_song_insert", Table: "songs", When: When{Event: AfterInsert}, IDExpression: "new.id"},
		{Name: "sync2gm_song_update", Table: "songs", When: When{Event: AfterUpdate}, IDExpression: "new.id"},
		{Name: "sync2gm_song_delete", Table: "songs", When: When{Event: AfterDelete}, IDExpression: "old.id"},
		{Name: "sync2gm_playlist_delete", Table: "playlists", When: When{Event: AfterDelete}, IDExpression: "old.id"},
	}
}

func TestAttachCreatesChangeLogAndTriggers(t *testing.T) {
	db := newTestDB(t)
	points := testPoints()

	if err := Attach(db, points); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO songs (id, title) VALUES (42, 'Song')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	batch, err := SelectBatch(context.Background(), db, 0, 10)
	if err != nil {
		t.Fatalf("SelectBatch failed: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("got %d rows, want 1", len(batch))
	}
	if batch[0].ChangeType != 0 || batch[0].LocalID != 42 {
		t.Errorf("got %+v, want change_type=0 local_id=42", batch[0])
	}
}

func TestAttachRejectsOutOfRangeChangeType(t *testing.T) {
	db := newTestDB(t)
	points := testPoints()
	if err := Attach(db, points); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	// A mis-wired trigger inserting a change_type outside [0, N) must
	// be rejected by the CHECK constraint.
	_, err := db.Exec(fmt.Sprintf("INSERT INTO %s (change_type, local_id) VALUES (99, 1)", quoteIdent(ChangeLogTable)))
	if err == nil {
		t.Fatal("expected the CHECK constraint to reject an out-of-range change_type")
	}
}

// TestRoundTrip checks that Attach followed by Detach leaves the
// watched DB schema byte-identical to its pre-Attach state (modulo
// auto-assigned object ids, which SQLite's sqlite_master does not
// expose for triggers/tables beyond name and sql text here).
func TestRoundTrip(t *testing.T) {
	db := newTestDB(t)
	points := testPoints()

	before, err := schemaObjects(db)
	if err != nil {
		t.Fatalf("schemaObjects failed: %v", err)
	}

	if err := Attach(db, points); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := Detach(db, points); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	after, err := schemaObjects(db)
	if err != nil {
		t.Fatalf("schemaObjects failed: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("schema object count: got %d, want %d", len(after), len(before))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("schema object %d: got %q, want %q", i, after[i], before[i])
		}
	}
}

func TestDetachToleratesMissingObjects(t *testing.T) {
	db := newTestDB(t)
	points := testPoints()

	// Detaching without ever attaching must not error.
	if err := Detach(db, points); err != nil {
		t.Fatalf("Detach on a never-attached db failed: %v", err)
	}
}

func TestReattach(t *testing.T) {
	db := newTestDB(t)
	points := testPoints()

	if err := Attach(db, points); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO songs (id, title) VALUES (1, 'A')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := Reattach(db, points); err != nil {
		t.Fatalf("Reattach failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO songs (id, title) VALUES (2, 'B')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	batch, err := SelectBatch(context.Background(), db, 0, 10)
	if err != nil {
		t.Fatalf("SelectBatch failed: %v", err)
	}
	if len(batch) != 1 || batch[0].LocalID != 2 {
		t.Fatalf("Reattach should drop the change log: got %+v", batch)
	}
}

func schemaObjects(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT type || ':' || name FROM sqlite_master WHERE type IN ('table', 'trigger') ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
