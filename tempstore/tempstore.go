// Package tempstore spools received attachment bytes to the system temp
// directory and models the single-use Unread → Consumed lifecycle: a
// spooled attachment may be opened for reading exactly once, and the
// backing file is deleted the moment that read finishes, whether or not
// it finished cleanly. If nothing ever reads it, Discard removes the
// file so a receiver that forgets to consume an attachment does not
// leak it — this is the drop-time guard the design notes call for.
package tempstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store spools attachments into dir. The zero Store uses os.TempDir().
type Store struct {
	Dir string
}

func (s *Store) dir() string {
	if s.Dir != "" {
		return s.Dir
	}
	return os.TempDir()
}

// Spool copies exactly length bytes from src into a new temp file named
// after id, so collisions across connections are impossible (ids are
// globally unique), and returns a handle for single-use reading.
func (s *Store) Spool(id uuid.UUID, src io.Reader, length int64) (*Spooled, error) {
	path := filepath.Join(s.dir(), "mx-attachment-"+id.String())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("tempstore: create %s: %w", path, err)
	}
	written, err := io.CopyN(f, src, length)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("tempstore: spool attachment %s: %w", id, err)
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, closeErr
	}
	if written != length {
		os.Remove(path)
		return nil, fmt.Errorf("tempstore: attachment %s truncated: wrote %d of %d bytes", id, written, length)
	}
	return &Spooled{path: path}, nil
}

// Spooled is a receiver-side attachment's temporary-file handle, in the
// Unread state until Open is called.
type Spooled struct {
	mu     sync.Mutex
	path   string
	opened bool
}

// Open transitions Unread → Consumed and returns a reader over the
// spooled bytes. The file is deleted the moment the returned
// ReadCloser's Close method runs. A second call fails — this is the
// "single read permitted" invariant.
func (s *Spooled) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, fmt.Errorf("tempstore: attachment already consumed")
	}
	s.opened = true
	f, err := os.Open(s.path)
	if err != nil {
		os.Remove(s.path)
		return nil, err
	}
	return &deleteOnClose{File: f, path: s.path}, nil
}

// Discard removes the backing file if it was never opened. Safe to call
// more than once, and safe to call after Open (it becomes a no-op since
// deleteOnClose already removed the file).
func (s *Spooled) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}
	s.opened = true
	os.Remove(s.path)
}

type deleteOnClose struct {
	*os.File
	path string
}

func (d *deleteOnClose) Close() error {
	closeErr := d.File.Close()
	removeErr := os.Remove(d.path)
	if closeErr != nil {
		return closeErr
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return removeErr
	}
	return nil
}
