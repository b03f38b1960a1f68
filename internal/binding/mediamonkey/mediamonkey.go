// Package mediamonkey is the one concrete binding: it names
// MediaMonkey's songs, playlists and playlist-entries tables and
// supplies the ordered (WatchedPoint, Handler) pairs that drive the
// instrumentation and dispatcher. The index of each pair in
// ActionPairs is its change_type, so reordering this slice silently
// breaks an existing change log — never insert into the middle of it.
package mediamonkey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sync2gm/sync2gmd/internal/dispatch"
	"github.com/sync2gm/sync2gmd/internal/idmap"
	"github.com/sync2gm/sync2gmd/internal/remote"
	"github.com/sync2gm/sync2gmd/internal/syncerr"
	"github.com/sync2gm/sync2gmd/internal/watch"
)

// Connect opens the MediaMonkey library database at path for watching.
// A single long-lived *sql.DB is kept. Only busy_timeout and
// foreign_keys are set; the journal mode is left as the media player
// configured it, since the daemon does not own this database.
func Connect(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mediamonkey: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mediamonkey: ping %s: %w", path, err)
	}
	return db, nil
}

// ActionPair is one (WatchedPoint, Handler) entry. Its position in
// ActionPairs is the change_type the instrumentation assigns it.
type ActionPair struct {
	Point   watch.WatchedPoint
	Handler dispatch.Handler
}

// ActionPairs is the binding's ordered list: song create, song update,
// song delete, playlist create, playlist delete, playlist-entry
// create, playlist-entry delete.
var ActionPairs = []ActionPair{
	{Point: songCreatePoint, Handler: handleSongCreate},
	{Point: songUpdatePoint, Handler: handleSongUpdate},
	{Point: songDeletePoint, Handler: handleSongDelete},
	{Point: playlistCreatePoint, Handler: handlePlaylistCreate},
	{Point: playlistDeletePoint, Handler: handlePlaylistDelete},
	{Point: entryCreatePoint, Handler: handleEntryCreate},
	{Point: entryDeletePoint, Handler: handleEntryDelete},
}

// WatchedPoints returns the ordered WatchedPoint list, for
// watch.Attach/Detach/Reattach.
func WatchedPoints() []watch.WatchedPoint {
	points := make([]watch.WatchedPoint, len(ActionPairs))
	for i, ap := range ActionPairs {
		points[i] = ap.Point
	}
	return points
}

// Handlers returns the ordered Handler list, for dispatch.New.
func Handlers() []dispatch.Handler {
	handlers := make([]dispatch.Handler, len(ActionPairs))
	for i, ap := range ActionPairs {
		handlers[i] = ap.Handler
	}
	return handlers
}

var (
	songCreatePoint = watch.WatchedPoint{
		Name:         "sync2gmd_song_create",
		Table:        "Songs",
		When:         watch.When{Event: watch.AfterInsert},
		IDExpression: "new.SongID",
	}
	songUpdatePoint = watch.WatchedPoint{
		Name:         "sync2gmd_song_update",
		Table:        "Songs",
		When:         watch.When{Event: watch.AfterUpdate, OfColumns: []string{"SongTitle", "Artist", "Album"}},
		IDExpression: "new.SongID",
	}
	songDeletePoint = watch.WatchedPoint{
		Name:         "sync2gmd_song_delete",
		Table:        "Songs",
		When:         watch.When{Event: watch.AfterDelete},
		IDExpression: "old.SongID",
	}
	playlistCreatePoint = watch.WatchedPoint{
		Name:         "sync2gmd_playlist_create",
		Table:        "Playlists",
		When:         watch.When{Event: watch.AfterInsert},
		IDExpression: "new.IDPlaylist",
	}
	playlistDeletePoint = watch.WatchedPoint{
		Name:         "sync2gmd_playlist_delete",
		Table:        "Playlists",
		When:         watch.When{Event: watch.AfterDelete},
		IDExpression: "old.IDPlaylist",
	}
	entryCreatePoint = watch.WatchedPoint{
		Name:         "sync2gmd_entry_create",
		Table:        "PlaylistSongs",
		When:         watch.When{Event: watch.AfterInsert},
		IDExpression: "new.IDPlaylistSongs",
	}
	// entryDeletePoint cannot carry old.IDPlaylistSongs: by the time the
	// poll loop's handler runs, the row is long gone from PlaylistSongs,
	// and a change log row only has room for a single local_id. Instead
	// it packs both foreign ids the handler needs into one integer,
	// decoded by unpackEntryID.
	entryDeletePoint = watch.WatchedPoint{
		Name:         "sync2gmd_entry_delete",
		Table:        "PlaylistSongs",
		When:         watch.When{Event: watch.AfterDelete},
		IDExpression: fmt.Sprintf("old.IDPlaylist * %d + old.IDSong", entryIDPackFactor),
	}
)

// entryIDPackFactor packs (playlistID, songID) into entryDeletePoint's
// local_id as playlistID*entryIDPackFactor + songID. MediaMonkey song
// and playlist ids are ordinary SQLite INTEGER PRIMARY KEYs, so this
// holds as long as songID stays below the factor.
const entryIDPackFactor = 1_000_000_000

func unpackEntryID(packed int64) (playlistID, songID int64) {
	return packed / entryIDPackFactor, packed % entryIDPackFactor
}

type songRow struct {
	Title  string
	Artist string
	Album  string
}

func loadSong(ctx context.Context, db *sql.DB, songID int64) (songRow, error) {
	var s songRow
	err := db.QueryRowContext(ctx, `SELECT SongTitle, Artist, Album FROM Songs WHERE SongID = ?`, songID).
		Scan(&s.Title, &s.Artist, &s.Album)
	if err != nil {
		return songRow{}, fmt.Errorf("mediamonkey: load song %d: %w", songID, err)
	}
	return s, nil
}

func handleSongCreate(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	song, err := loadSong(ctx, hctx.DB, hctx.LocalID)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	remoteID, err := hctx.Remote.CreateSong(ctx, remote.Song{Title: song.Title, Artist: song.Artist, Album: song.Album})
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.CreateResult(idmap.Song, remoteID), nil
}

func handleSongUpdate(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	remoteID, err := lookupSong(ctx, hctx)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	song, err := loadSong(ctx, hctx.DB, hctx.LocalID)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	if err := hctx.Remote.UpdateSong(ctx, remoteID, remote.Song{Title: song.Title, Artist: song.Artist, Album: song.Album}); err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.NoResult, nil
}

func handleSongDelete(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	remoteID, err := lookupSong(ctx, hctx)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	if err := hctx.Remote.DeleteSong(ctx, remoteID); err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.DeleteResult(idmap.Song), nil
}

type playlistRow struct {
	Name string
}

func loadPlaylist(ctx context.Context, db *sql.DB, playlistID int64) (playlistRow, error) {
	var p playlistRow
	err := db.QueryRowContext(ctx, `SELECT PlaylistName FROM Playlists WHERE IDPlaylist = ?`, playlistID).Scan(&p.Name)
	if err != nil {
		return playlistRow{}, fmt.Errorf("mediamonkey: load playlist %d: %w", playlistID, err)
	}
	return p, nil
}

func handlePlaylistCreate(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	playlist, err := loadPlaylist(ctx, hctx.DB, hctx.LocalID)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	remoteID, err := hctx.Remote.CreatePlaylist(ctx, remote.Playlist{Name: playlist.Name})
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.CreateResult(idmap.Playlist, remoteID), nil
}

func handlePlaylistDelete(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	remoteID, err := lookupPlaylist(ctx, hctx)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	if err := hctx.Remote.DeletePlaylist(ctx, remoteID); err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.DeleteResult(idmap.Playlist), nil
}

type entryRow struct {
	PlaylistID int64
	SongID     int64
}

// loadEntry reads a still-live PlaylistSongs row by its own local_id,
// used only by handleEntryCreate.
func loadEntry(ctx context.Context, db *sql.DB, entryID int64) (entryRow, error) {
	var e entryRow
	err := db.QueryRowContext(ctx, `SELECT IDPlaylist, IDSong FROM PlaylistSongs WHERE IDPlaylistSongs = ?`, entryID).
		Scan(&e.PlaylistID, &e.SongID)
	if err != nil {
		return entryRow{}, fmt.Errorf("mediamonkey: load playlist entry %d: %w", entryID, err)
	}
	return e, nil
}

func handleEntryCreate(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	entry, err := loadEntry(ctx, hctx.DB, hctx.LocalID)
	if err != nil {
		return dispatch.HandlerResult{}, err
	}
	playlistRemoteID, err := hctx.IDMap.Lookup(ctx, idmap.Playlist, entry.PlaylistID)
	if err != nil {
		return dispatch.HandlerResult{}, unmapped(err)
	}
	songRemoteID, err := hctx.IDMap.Lookup(ctx, idmap.Song, entry.SongID)
	if err != nil {
		return dispatch.HandlerResult{}, unmapped(err)
	}
	if err := hctx.Remote.AddPlaylistEntry(ctx, playlistRemoteID, songRemoteID); err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.NoResult, nil
}

func handleEntryDelete(ctx context.Context, hctx dispatch.HandlerContext) (dispatch.HandlerResult, error) {
	playlistID, songID := unpackEntryID(hctx.LocalID)
	playlistRemoteID, err := hctx.IDMap.Lookup(ctx, idmap.Playlist, playlistID)
	if err != nil {
		return dispatch.HandlerResult{}, unmapped(err)
	}
	songRemoteID, err := hctx.IDMap.Lookup(ctx, idmap.Song, songID)
	if err != nil {
		return dispatch.HandlerResult{}, unmapped(err)
	}
	if err := hctx.Remote.RemovePlaylistEntry(ctx, playlistRemoteID, songRemoteID); err != nil {
		return dispatch.HandlerResult{}, err
	}
	return dispatch.NoResult, nil
}

func lookupSong(ctx context.Context, hctx dispatch.HandlerContext) (string, error) {
	remoteID, err := hctx.IDMap.Lookup(ctx, idmap.Song, hctx.LocalID)
	if err != nil {
		return "", unmapped(err)
	}
	return remoteID, nil
}

func lookupPlaylist(ctx context.Context, hctx dispatch.HandlerContext) (string, error) {
	remoteID, err := hctx.IDMap.Lookup(ctx, idmap.Playlist, hctx.LocalID)
	if err != nil {
		return "", unmapped(err)
	}
	return remoteID, nil
}

// unmapped translates the Id Map Store's syncerr.ErrUnmappedItem into the dispatch-level
// syncerr.ErrUnmapped classification handlers are expected to raise,
// leaving any other error (a real store failure) unchanged.
func unmapped(err error) error {
	if errors.Is(err, syncerr.ErrUnmappedItem) {
		return fmt.Errorf("%w: %v", syncerr.ErrUnmapped, err)
	}
	return err
}
