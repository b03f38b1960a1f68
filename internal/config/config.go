// Package config manages the daemon's on-disk layout: a directory,
// keyed by profile name, holding the JSON config file, the cursor
// file, and the Id Map Store database.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sync2gm/sync2gmd/internal/syncerr"
)

const (
	configFileName = "config"
	cursorFileName = "last_change"
	idMapFileName  = "gmids.db"
)

// Config is the daemon's persisted configuration for one profile.
type Config struct {
	// MediaPlayerType names the binding to use (e.g. "mediamonkey").
	MediaPlayerType string `json:"mp_type"`
	// MediaPlayerDBPath is the path to the watched media player
	// database.
	MediaPlayerDBPath string `json:"mp_db_path"`
	// RemoteBaseURL is the cloud music service's API base URL.
	RemoteBaseURL string `json:"remote_base_url"`
	// RemoteToken authenticates requests to RemoteBaseURL. Empty means
	// unauthenticated (only valid against a mock remote).
	RemoteToken string `json:"remote_token"`
	// ControlAddr is the localhost address the control socket listens
	// on, e.g. "127.0.0.1:7421".
	ControlAddr string `json:"control_addr"`
}

// Dir locates the profile's on-disk directory,
// $HOME/.local/share/sync2gmd/<profile>; $XDG_DATA_HOME is not
// consulted. It does not require the directory to exist.
func Dir(profile string) (string, error) {
	base, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: locate home directory: %w", err)
	}
	return filepath.Join(base, ".local", "share", "sync2gmd", profile), nil
}

// Path returns the full path to the profile's config file.
func Path(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// CursorPath returns the full path to the profile's cursor file.
func CursorPath(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cursorFileName), nil
}

// IDMapPath returns the full path to the profile's Id Map Store file.
func IDMapPath(profile string) (string, error) {
	dir, err := Dir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, idMapFileName), nil
}

// Write encodes cfg as JSON and creates or overwrites the profile's
// config file. The parent directory must already exist; Init creates
// it.
func Write(profile string, cfg Config) error {
	path, err := Path(profile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Read loads and decodes the profile's config file.
func Read(profile string) (Config, error) {
	path, err := Path(profile)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", syncerr.ErrConfigCorrupt, path, err)
	}
	return cfg, nil
}

// Init (re)creates the profile's directory and config file, and seeds
// a fresh cursor file at 0 if one is not already present. It does not
// touch the Id Map Store — that is idmap.Store.Init's job, called
// separately so the two reset operations stay independently
// auditable.
func Init(profile string, cfg Config) error {
	dir, err := Dir(profile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}

	if err := Write(profile, cfg); err != nil {
		return err
	}

	cursorPath := filepath.Join(dir, cursorFileName)
	if _, err := os.Stat(cursorPath); os.IsNotExist(err) {
		if err := os.WriteFile(cursorPath, []byte("0"), 0o644); err != nil {
			return fmt.Errorf("config: seed cursor file %s: %w", cursorPath, err)
		}
	} else if err != nil {
		return fmt.Errorf("config: stat %s: %w", cursorPath, err)
	}

	return nil
}
