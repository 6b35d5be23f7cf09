// Package disk implements the Disk Manager: a single database file of
// fixed-size pages, allocated densely starting at id 0. It is the
// bottom layer consumed by the Buffer Pool Manager.
//
// Grounded in DaemonDB's storage_engine/disk_manager, reduced from its
// multi-file / global-page-id scheme to the single-file model the core
// spec describes ("opens a file; appends a page when asked to allocate
// a new id").
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"coredb/storage/page"
)

// ErrIOFailure wraps any underlying I/O error from the database file.
var ErrIOFailure = errors.New("disk: io failure")

// Manager owns one open database file and the allocation counter for
// page ids within it.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	nextID   int64
	log      *zap.Logger
	writes   int64
	reads    int64
}

// Open opens (creating if necessary) the database file at path.
func Open(path string, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIOFailure, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIOFailure, path, err)
	}
	nextID := info.Size() / page.Size
	return &Manager{file: f, nextID: nextID, log: log}, nil
}

// AllocatePage reserves and returns the next dense page-id. The page is
// not written to disk until the first WritePage call for that id.
func (m *Manager) AllocatePage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// PageCount returns the number of dense page-ids ever allocated against
// this file (at least the file's size in pages, since AllocatePage does
// not write). Zero means the file is brand
// new: no page, including id 0, has been allocated yet.
func (m *Manager) PageCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}

// ReadPage fills buf (exactly page.Size bytes) with the contents of the
// given page. Reads past the current end of file zero-fill the buffer
// rather than erroring, matching the contract a freshly allocated page
// must satisfy before its first write.
func (m *Manager) ReadPage(id int64, buf *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range buf {
		buf[i] = 0
	}
	offset := id * page.Size
	_, err := m.file.ReadAt(buf[:], offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: read page %d: %v", ErrIOFailure, id, err)
	}
	m.reads++
	return nil
}

// WritePage persists buf as the full contents of page id.
func (m *Manager) WritePage(id int64, buf *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := id * page.Size
	if _, err := m.file.WriteAt(buf[:], offset); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrIOFailure, id, err)
	}
	if id >= m.nextID {
		m.nextID = id + 1
	}
	m.writes++
	return nil
}

// Sync flushes the underlying file to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIOFailure, err)
	}
	return nil
}

// Shutdown flushes and closes the database file.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		m.log.Warn("sync failed during shutdown", zap.Error(err))
	}
	if err := m.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrIOFailure, err)
	}
	return nil
}

// Stats returns cumulative read/write counts, useful for tests and metrics.
func (m *Manager) Stats() (reads, writes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}
