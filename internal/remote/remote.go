// Package remote defines the contract handlers use to talk to the
// remote cloud music service. The wire protocol itself is left to a
// concrete implementation — this package only fixes the shape every
// handler can rely on: an authenticated predicate, the per-kind
// create/update/delete operations, and a distinguishable
// retryable-failure signal (syncerr.ErrRemoteCallFailed).
package remote

import "context"

// Song is the subset of a local song row a handler needs to push a
// remote create/update.
type Song struct {
	Title  string
	Artist string
	Album  string
}

// Playlist is the subset of a local playlist row a handler needs to
// push a remote create/update.
type Playlist struct {
	Name string
}

// Client is the remote service collaborator. Every method that can
// fail transiently (network error, 5xx, rate limit) must wrap its
// error in syncerr.ErrRemoteCallFailed so the poll loop classifies it
// as retryable; all other errors are treated as non-retryable.
type Client interface {
	// Authenticated reports whether the client holds valid
	// credentials. Handlers are not required to check this — it
	// exists for startup diagnostics.
	Authenticated() bool

	CreateSong(ctx context.Context, song Song) (remoteID string, err error)
	UpdateSong(ctx context.Context, remoteID string, song Song) error
	DeleteSong(ctx context.Context, remoteID string) error

	CreatePlaylist(ctx context.Context, playlist Playlist) (remoteID string, err error)
	UpdatePlaylist(ctx context.Context, remoteID string, playlist Playlist) error
	DeletePlaylist(ctx context.Context, remoteID string) error

	AddPlaylistEntry(ctx context.Context, playlistRemoteID, songRemoteID string) error
	RemovePlaylistEntry(ctx context.Context, playlistRemoteID, songRemoteID string) error
}
