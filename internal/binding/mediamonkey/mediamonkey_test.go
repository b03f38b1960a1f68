package mediamonkey

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/sync2gm/sync2gmd/internal/dispatch"
	"github.com/sync2gm/sync2gmd/internal/idmap"
	"github.com/sync2gm/sync2gmd/internal/remote"
	"github.com/sync2gm/sync2gmd/internal/watch"
)

func newLibrary(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mediamonkey.sqlite")
	db, err := Connect(path)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE Songs (
			SongID INTEGER PRIMARY KEY,
			SongTitle TEXT NOT NULL,
			Artist TEXT NOT NULL,
			Album TEXT NOT NULL
		);
		CREATE TABLE Playlists (
			IDPlaylist INTEGER PRIMARY KEY,
			PlaylistName TEXT NOT NULL
		);
		CREATE TABLE PlaylistSongs (
			IDPlaylistSongs INTEGER PRIMARY KEY,
			IDPlaylist INTEGER NOT NULL,
			IDSong INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema failed: %v", err)
	}

	if err := watch.Attach(db, WatchedPoints()); err != nil {
		t.Fatalf("watch.Attach failed: %v", err)
	}
	return db
}

func newIDMap(t *testing.T) *idmap.Store {
	t.Helper()
	s, err := idmap.Open(filepath.Join(t.TempDir(), "gmids.db"))
	if err != nil {
		t.Fatalf("idmap.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init([]idmap.Kind{idmap.Song, idmap.Playlist}); err != nil {
		t.Fatalf("idmap.Init failed: %v", err)
	}
	return s
}

func TestActionPairsOrderIsStable(t *testing.T) {
	if len(ActionPairs) != 7 {
		t.Fatalf("got %d action pairs, want 7", len(ActionPairs))
	}
	if ActionPairs[0].Point.Name != "sync2gmd_song_create" {
		t.Errorf("change_type 0 must stay song create, got %q", ActionPairs[0].Point.Name)
	}
	if len(WatchedPoints()) != len(Handlers()) {
		t.Errorf("WatchedPoints and Handlers must have matching length")
	}
}

func TestSongLifecycle(t *testing.T) {
	db := newLibrary(t)
	im := newIDMap(t)
	mock := remote.NewMock("R")
	d := dispatch.New(Handlers(), im, mock, db)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO Songs (SongID, SongTitle, Artist, Album) VALUES (1, 'Title', 'Artist', 'Album')`); err != nil {
		t.Fatalf("insert song failed: %v", err)
	}
	rows := selectChangeLog(t, db)
	if len(rows) != 1 {
		t.Fatalf("got %d change rows after insert, want 1", len(rows))
	}
	if err := d.Dispatch(ctx, rows[0]); err != nil {
		t.Fatalf("Dispatch(create) failed: %v", err)
	}
	remoteID, err := im.Lookup(ctx, idmap.Song, 1)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if _, err := db.Exec(`UPDATE Songs SET SongTitle = 'New Title' WHERE SongID = 1`); err != nil {
		t.Fatalf("update song failed: %v", err)
	}
	rows = selectChangeLog(t, db)
	if len(rows) != 2 {
		t.Fatalf("got %d change rows after update, want 2", len(rows))
	}
	if err := d.Dispatch(ctx, rows[1]); err != nil {
		t.Fatalf("Dispatch(update) failed: %v", err)
	}
	if !mock.HasSong(remoteID) {
		t.Fatalf("expected song %s to still exist after update", remoteID)
	}

	if _, err := db.Exec(`DELETE FROM Songs WHERE SongID = 1`); err != nil {
		t.Fatalf("delete song failed: %v", err)
	}
	rows = selectChangeLog(t, db)
	if len(rows) != 3 {
		t.Fatalf("got %d change rows after delete, want 3", len(rows))
	}
	if err := d.Dispatch(ctx, rows[2]); err != nil {
		t.Fatalf("Dispatch(delete) failed: %v", err)
	}
	if mock.HasSong(remoteID) {
		t.Fatalf("expected song %s to be removed from the remote", remoteID)
	}
	if _, err := im.Lookup(ctx, idmap.Song, 1); err == nil {
		t.Fatalf("expected the id map entry to be erased")
	}
}

func TestPlaylistEntryCreateAndDelete(t *testing.T) {
	db := newLibrary(t)
	im := newIDMap(t)
	mock := remote.NewMock("R")
	d := dispatch.New(Handlers(), im, mock, db)
	ctx := context.Background()

	if _, err := db.Exec(`INSERT INTO Songs (SongID, SongTitle, Artist, Album) VALUES (5, 'Song', 'Artist', 'Album')`); err != nil {
		t.Fatalf("insert song failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO Playlists (IDPlaylist, PlaylistName) VALUES (9, 'Favorites')`); err != nil {
		t.Fatalf("insert playlist failed: %v", err)
	}
	rows := selectChangeLog(t, db)
	for _, row := range rows {
		if err := d.Dispatch(ctx, row); err != nil {
			t.Fatalf("Dispatch(%+v) failed: %v", row, err)
		}
	}

	if _, err := db.Exec(`INSERT INTO PlaylistSongs (IDPlaylistSongs, IDPlaylist, IDSong) VALUES (100, 9, 5)`); err != nil {
		t.Fatalf("insert playlist entry failed: %v", err)
	}
	rows = selectChangeLog(t, db)
	entryCreateRow := rows[len(rows)-1]
	if err := d.Dispatch(ctx, entryCreateRow); err != nil {
		t.Fatalf("Dispatch(entry create) failed: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM PlaylistSongs WHERE IDPlaylistSongs = 100`); err != nil {
		t.Fatalf("delete playlist entry failed: %v", err)
	}
	rows = selectChangeLog(t, db)
	entryDeleteRow := rows[len(rows)-1]
	if err := d.Dispatch(ctx, entryDeleteRow); err != nil {
		t.Fatalf("Dispatch(entry delete) failed: %v", err)
	}
}

func TestUnpackEntryID(t *testing.T) {
	packed := int64(9)*entryIDPackFactor + 5
	playlistID, songID := unpackEntryID(packed)
	if playlistID != 9 || songID != 5 {
		t.Errorf("unpackEntryID(%d) = (%d, %d), want (9, 5)", packed, playlistID, songID)
	}
}

func selectChangeLog(t *testing.T, db *sql.DB) []watch.ChangeLogRow {
	t.Helper()
	rows, err := watch.SelectBatch(context.Background(), db, 0, 100)
	if err != nil {
		t.Fatalf("SelectBatch failed: %v", err)
	}
	return rows
}
