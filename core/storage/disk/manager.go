// Package disk provides the block-I/O layer the buffer pool reads and
// writes through. It is a peripheral collaborator: the buffer pool only
// depends on the Manager interface below, never on FileManager directly.
package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/corvusdb/corvusdb/core/storage/page"
)

// Manager is the block-I/O contract the buffer pool consumes. Reads and
// writes are blocking and, on return, durable with respect to the file's
// own fsync policy; the buffer pool does not retry or recover from errors
// returned here.
type Manager interface {
	ReadPage(id page.ID, buf []byte) error
	WritePage(id page.ID, buf []byte) error
	AllocatePage() (page.ID, error)
	DeallocatePage(id page.ID) error
	Sync() error
	Close() error
}

// FileManager is the default Manager: one heap file per database, pages
// addressed by ID*page.Size byte offset. Page zero is never handed out by
// AllocatePage so that it stays free for a future file header.
type FileManager struct {
	mu       sync.Mutex
	file     *os.File
	numPages int64

	// limiter, when non-nil, throttles page I/O to a configured bytes/sec
	// ceiling. Nil means unthrottled. Useful for reproducing slow-disk
	// behavior in tests without needing real slow hardware.
	limiter *rate.Limiter

	bufPool sync.Pool
}

// Option configures a FileManager at construction time.
type Option func(*FileManager)

// WithThrottle caps page I/O throughput to bytesPerSec, smoothed over
// page.Size bursts.
func WithThrottle(bytesPerSec int) Option {
	return func(fm *FileManager) {
		fm.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), page.Size)
	}
}

// Open opens (creating if absent) the heap file at path.
func Open(path string, opts ...Option) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	fm := &FileManager{
		file:     f,
		numPages: fi.Size() / page.Size,
		bufPool: sync.Pool{
			New: func() any { return make([]byte, page.Size) },
		},
	}
	for _, opt := range opts {
		opt(fm)
	}
	return fm, nil
}

func (fm *FileManager) throttle(n int) {
	if fm.limiter == nil {
		return
	}
	_ = fm.limiter.WaitN(context.Background(), n)
}

// ReadPage fills buf (must be page.Size bytes) with id's on-disk contents.
func (fm *FileManager) ReadPage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrInvalidPageData, len(buf), page.Size)
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()

	offset := int64(id) * page.Size
	n, err := fm.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %d: %v", ErrIO, id, err)
	}
	if n != page.Size {
		// A page that was allocated but never written reads as zeros.
		for i := n; i < page.Size; i++ {
			buf[i] = 0
		}
	}
	fm.throttle(page.Size)
	return nil
}

// WritePage writes buf (must be page.Size bytes) to id's on-disk location.
func (fm *FileManager) WritePage(id page.ID, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrInvalidPageData, len(buf), page.Size)
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()

	offset := int64(id) * page.Size
	if _, err := fm.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, id, err)
	}
	fm.throttle(page.Size)
	return nil
}

// AllocatePage extends the file by one page and returns its id. Page ids
// are handed out sequentially starting at 1; the buffer pool instance is
// the one that imposes the N-instance residue-class scheme on top of this.
func (fm *FileManager) AllocatePage() (page.ID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.numPages++
	newID := page.ID(fm.numPages)
	scratch := fm.bufPool.Get().([]byte)
	defer fm.bufPool.Put(scratch)
	for i := range scratch {
		scratch[i] = 0
	}
	offset := int64(newID) * page.Size
	if _, err := fm.file.WriteAt(scratch, offset); err != nil {
		return page.InvalidID, fmt.Errorf("%w: extending file for page %d: %v", ErrIO, newID, err)
	}
	return newID, nil
}

// DeallocatePage is a hook for a future on-disk free list and does nothing.
// The buffer pool does not call it: Instance.DeletePage invokes the
// instance's own DeallocatePage hook instead.
func (fm *FileManager) DeallocatePage(page.ID) error {
	return nil
}

// Sync flushes buffered writes to stable storage.
func (fm *FileManager) Sync() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.file.Sync()
}

// Close syncs and releases the underlying file handle.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.file == nil {
		return nil
	}
	_ = fm.file.Sync()
	err := fm.file.Close()
	fm.file = nil
	return err
}
