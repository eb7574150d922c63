package bufferpool

import "errors"

var (
	// ErrPoolFull names the condition in which every frame is pinned and
	// neither the free list nor the replacer can produce a victim. NewPage
	// and FetchPage do not return it: they report that condition with
	// ok == false and a nil error.
	ErrPoolFull = errors.New("bufferpool: no evictable frame, all pages pinned")
)
