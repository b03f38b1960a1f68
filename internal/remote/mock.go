package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sync2gm/sync2gmd/internal/syncerr"
)

// Mock is a deterministic, in-memory remote.Client for tests.
type Mock struct {
	mu sync.Mutex

	authenticated bool
	nextID        atomic.Int64
	idPrefix      string

	songs      map[string]Song
	playlists  map[string]Playlist
	entries    map[string]bool // "playlistID|songID" -> present

	// FailNext, if > 0, makes the next N calls to any method fail
	// with syncerr.ErrRemoteCallFailed, then succeed as normal. This
	// is how tests drive a retryable-failure-then-success scenario.
	FailNext int
}

// NewMock returns a Mock that is authenticated by default, minting
// ids as "<prefix><n>".
func NewMock(idPrefix string) *Mock {
	return &Mock{
		authenticated: true,
		idPrefix:      idPrefix,
		songs:         make(map[string]Song),
		playlists:     make(map[string]Playlist),
		entries:       make(map[string]bool),
	}
}

func (m *Mock) Authenticated() bool {
	return m.authenticated
}

// SetAuthenticated lets tests simulate a logged-out client.
func (m *Mock) SetAuthenticated(v bool) {
	m.authenticated = v
}

func (m *Mock) failIfPrimed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext > 0 {
		m.FailNext--
		return fmt.Errorf("%w: mock call failure (primed)", syncerr.ErrRemoteCallFailed)
	}
	return nil
}

func (m *Mock) newID() string {
	return fmt.Sprintf("%s%d", m.idPrefix, m.nextID.Add(1))
}

func (m *Mock) CreateSong(ctx context.Context, song Song) (string, error) {
	if err := m.failIfPrimed(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	m.songs[id] = song
	return id, nil
}

func (m *Mock) UpdateSong(ctx context.Context, remoteID string, song Song) error {
	if err := m.failIfPrimed(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs[remoteID] = song
	return nil
}

func (m *Mock) DeleteSong(ctx context.Context, remoteID string) error {
	if err := m.failIfPrimed(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.songs, remoteID)
	return nil
}

func (m *Mock) CreatePlaylist(ctx context.Context, playlist Playlist) (string, error) {
	if err := m.failIfPrimed(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newID()
	m.playlists[id] = playlist
	return id, nil
}

func (m *Mock) UpdatePlaylist(ctx context.Context, remoteID string, playlist Playlist) error {
	if err := m.failIfPrimed(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[remoteID] = playlist
	return nil
}

func (m *Mock) DeletePlaylist(ctx context.Context, remoteID string) error {
	if err := m.failIfPrimed(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playlists, remoteID)
	return nil
}

func (m *Mock) AddPlaylistEntry(ctx context.Context, playlistRemoteID, songRemoteID string) error {
	if err := m.failIfPrimed(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[playlistRemoteID+"|"+songRemoteID] = true
	return nil
}

func (m *Mock) RemovePlaylistEntry(ctx context.Context, playlistRemoteID, songRemoteID string) error {
	if err := m.failIfPrimed(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, playlistRemoteID+"|"+songRemoteID)
	return nil
}

// HasSong reports whether remoteID currently exists, for assertions.
func (m *Mock) HasSong(remoteID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.songs[remoteID]
	return ok
}

// HasPlaylist reports whether remoteID currently exists, for
// assertions.
func (m *Mock) HasPlaylist(remoteID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.playlists[remoteID]
	return ok
}

var _ Client = (*Mock)(nil)
