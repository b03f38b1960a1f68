// Package httpclient implements remote.Client against a generic
// create/update/delete REST surface: a shared *http.Client, bearer
// auth, small JSON request/response structs, and a distinguishable
// retryable error.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sync2gm/sync2gmd/internal/remote"
	"github.com/sync2gm/sync2gmd/internal/syncerr"
)

// Client is an HTTP-backed remote.Client.
type Client struct {
	baseURL string
	client  *http.Client
	token   string
}

// New creates a Client against baseURL, authenticating requests with
// token (empty means unauthenticated).
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		token: token,
	}
}

// Authenticated reports whether a token was configured.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

type songPayload struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

type playlistPayload struct {
	Name string `json:"name"`
}

type createResponse struct {
	ID string `json:"id"`
}

type entryPayload struct {
	PlaylistID string `json:"playlist_id"`
	SongID     string `json:"song_id"`
}

func (c *Client) CreateSong(ctx context.Context, song remote.Song) (string, error) {
	var resp createResponse
	err := c.do(ctx, http.MethodPost, "/songs", songPayload{song.Title, song.Artist, song.Album}, &resp)
	return resp.ID, err
}

func (c *Client) UpdateSong(ctx context.Context, remoteID string, song remote.Song) error {
	return c.do(ctx, http.MethodPut, "/songs/"+remoteID, songPayload{song.Title, song.Artist, song.Album}, nil)
}

func (c *Client) DeleteSong(ctx context.Context, remoteID string) error {
	return c.do(ctx, http.MethodDelete, "/songs/"+remoteID, nil, nil)
}

func (c *Client) CreatePlaylist(ctx context.Context, playlist remote.Playlist) (string, error) {
	var resp createResponse
	err := c.do(ctx, http.MethodPost, "/playlists", playlistPayload{playlist.Name}, &resp)
	return resp.ID, err
}

func (c *Client) UpdatePlaylist(ctx context.Context, remoteID string, playlist remote.Playlist) error {
	return c.do(ctx, http.MethodPut, "/playlists/"+remoteID, playlistPayload{playlist.Name}, nil)
}

func (c *Client) DeletePlaylist(ctx context.Context, remoteID string) error {
	return c.do(ctx, http.MethodDelete, "/playlists/"+remoteID, nil, nil)
}

func (c *Client) AddPlaylistEntry(ctx context.Context, playlistRemoteID, songRemoteID string) error {
	return c.do(ctx, http.MethodPost, "/playlist-entries", entryPayload{playlistRemoteID, songRemoteID}, nil)
}

func (c *Client) RemovePlaylistEntry(ctx context.Context, playlistRemoteID, songRemoteID string) error {
	return c.do(ctx, http.MethodPost, "/playlist-entries/remove", entryPayload{playlistRemoteID, songRemoteID}, nil)
}

// do issues one request against the remote service, treating any
// network error or 5xx/429 response as retryable.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpclient: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", syncerr.ErrRemoteCallFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s %s: status %d: %s", syncerr.ErrRemoteCallFailed, method, path, resp.StatusCode, respBody)
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("httpclient: %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("httpclient: decode response: %w", err)
		}
	}

	return nil
}

var _ remote.Client = (*Client)(nil)
