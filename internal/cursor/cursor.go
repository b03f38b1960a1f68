// Package cursor implements the crash-safe on-disk cursor file: a
// single decimal integer recording the highest change_id that has
// been fully processed.
//
// Store is exclusively owned by the poll loop (see internal/poll) —
// it acquires no lock of its own because the daemon guarantees at
// most one writer at a time.
package cursor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sync2gm/sync2gmd/internal/syncerr"
)

// Store is the cursor file at path.
type Store struct {
	path string
}

// New returns a Store backed by the file at path. It does not touch
// the filesystem; call Init to create a fresh cursor or Load to read
// an existing one.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the cursor file's path.
func (s *Store) Path() string {
	return s.path
}

// Init creates the cursor file with value 0 if it does not already
// exist. It is a no-op if the file is present, so re-running init
// never clobbers an existing cursor.
func (s *Store) Init() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cursor: stat %s: %w", s.path, err)
	}
	return s.Store(0)
}

// Load reads and parses the cursor file. It fails with
// syncerr.ErrConfigCorrupt if the file is missing or unparseable.
func (s *Store) Load() (int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("%w: read cursor %s: %v", syncerr.ErrConfigCorrupt, s.path, err)
	}

	text := strings.TrimSpace(string(data))
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse cursor %q: %v", syncerr.ErrConfigCorrupt, text, err)
	}

	return id, nil
}

// Store atomically replaces the cursor file's contents with id.
//
// It writes to a sibling temporary file, fsyncs it, renames it over
// the target, then fsyncs the parent directory so the rename itself
// is durable. A pre-existing .bak sidecar is overwritten first; a
// crash between the rename and the final cleanup leaves that .bak in
// place as a recoverable copy of the previous value (see Recover).
func (s *Store) Store(id int64) error {
	dir := filepath.Dir(s.path)
	tmpPath := s.path + ".tmp"
	bakPath := s.path + ".bak"

	if err := os.WriteFile(tmpPath, []byte(strconv.FormatInt(id, 10)), 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %v", syncerr.ErrCursorWriteFailed, err)
	}
	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("%w: fsync temp file: %v", syncerr.ErrCursorWriteFailed, err)
	}

	// Back up the existing value, if any, before replacing it. A
	// crash here leaves either the pre-existing file or bakPath
	// intact — never neither.
	if _, err := os.Stat(s.path); err == nil {
		os.Remove(bakPath) // best effort; a stale .bak is overwritten below anyway
		if err := os.Rename(s.path, bakPath); err != nil {
			return fmt.Errorf("%w: back up previous cursor: %v", syncerr.ErrCursorWriteFailed, err)
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename into place: %v", syncerr.ErrCursorWriteFailed, err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("%w: fsync directory: %v", syncerr.ErrCursorWriteFailed, err)
	}

	// Cleanup: remove the backup now that the new value is durable. A
	// crash between the rename above and this point leaves a
	// recoverable .bak, which is the documented, acceptable outcome.
	os.Remove(bakPath)

	return nil
}

// Recover reports whether a leftover .bak sidecar exists, which means
// a previous Store call crashed after backing up the old value and
// before removing the backup. If the crash came after the rename into
// place, the new value is durable beside the .bak; if it came before,
// the .bak is the only copy and Load fails on the missing cursor file.
// Recover only reports the file; it does not restore or remove it.
func (s *Store) Recover() (hasBackup bool, backupPath string) {
	bakPath := s.path + ".bak"
	if _, err := os.Stat(bakPath); err == nil {
		return true, bakPath
	}
	return false, ""
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
