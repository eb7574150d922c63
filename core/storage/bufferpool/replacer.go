package bufferpool

import (
	"container/list"
	"sync"
)

// LRUReplacer tracks the set of resident, unpinned frames in
// least-recently-unpinned order. It hands out the oldest one as a victim.
//
// Internally a doubly linked list holds frame ids in recency order (most
// recently unpinned at the front, oldest at the back) alongside a map from
// frame id to its list element, so Pin/Unpin/Victim are all O(1).
type LRUReplacer struct {
	mu   sync.Mutex
	list *list.List
	elem map[int]*list.Element
}

// NewLRUReplacer constructs a replacer. capacity is advisory (it sizes the
// internal map) and is not an enforced limit: a BufferPoolInstance never
// inserts more frame ids than it owns.
func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		list: list.New(),
		elem: make(map[int]*list.Element, capacity),
	}
}

// Victim removes and returns the least-recently-used frame id. ok is false
// iff the replacer is empty.
func (r *LRUReplacer) Victim() (frameID int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.list.Back()
	if back == nil {
		return 0, false
	}
	frameID = back.Value.(int)
	r.list.Remove(back)
	delete(r.elem, frameID)
	return frameID, true
}

// Pin removes frameID from the replacer if present. No-op if absent: the
// caller just re-acquired a frame that was never evictable to begin with.
func (r *LRUReplacer) Pin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.elem[frameID]
	if !ok {
		return
	}
	r.list.Remove(elem)
	delete(r.elem, frameID)
}

// Unpin inserts frameID at the most-recently-used position if it is not
// already present. No-op if already present.
func (r *LRUReplacer) Unpin(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.elem[frameID]; ok {
		return
	}
	r.elem[frameID] = r.list.PushFront(frameID)
}

// Size returns the current number of evictable frames.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list.Len()
}
