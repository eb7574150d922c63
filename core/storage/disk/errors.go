package disk

import "errors"

var (
	// ErrIO wraps any failure from the underlying file (open, read, write, sync).
	ErrIO = errors.New("disk: i/o error")
	// ErrInvalidPageData is returned when a caller passes a buffer that is
	// not exactly page.Size bytes.
	ErrInvalidPageData = errors.New("disk: invalid page buffer size")
)
