// Package bufferpool implements the single-instance and sharded buffer
// pool managers: the in-memory cache of fixed-size disk pages that
// mediates every read and write between higher-level access methods and
// the underlying block device.
package bufferpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/corvusdb/corvusdb/core/storage/disk"
	"github.com/corvusdb/corvusdb/core/storage/page"
	"github.com/corvusdb/corvusdb/core/storage/wal"
)

// Instance owns poolSize frames and satisfies fetch/new/delete/unpin/flush
// requests under a single exclusive latch. It is the unsharded building
// block; ParallelBufferPoolManager composes N of these to spread lock
// contention across page-id residue classes.
//
// A freshly constructed Instance has every frame in freeList, none in the
// page table, none in the replacer: I1 holds trivially at that point, and
// every operation below is written to preserve it.
type Instance struct {
	mu sync.Mutex

	poolSize      int
	numInstances  uint32
	instanceIndex uint32
	nextPageID    page.ID

	frames    []*page.Frame
	pageTable map[page.ID]int // page id -> index into frames
	freeList  []int           // frame indices never used, or freed by Delete
	replacer  *LRUReplacer

	disk disk.Manager
	log  *wal.LogManager // opaque: see package wal's doc comment
	zlog *zap.Logger
	m    *Metrics
}

// NewInstance constructs one shard of a buffer pool. numInstances and
// instanceIndex encode this instance's residue class for page-id
// allocation (see AllocatePage); pass numInstances=1, instanceIndex=0 for
// a standalone, unsharded pool. logManager and metrics may be nil.
func NewInstance(poolSize int, numInstances, instanceIndex uint32, diskMgr disk.Manager, logManager *wal.LogManager, zlog *zap.Logger, m *Metrics) *Instance {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	inst := &Instance{
		poolSize:      poolSize,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    page.ID(instanceIndex),
		frames:        make([]*page.Frame, poolSize),
		pageTable:     make(map[page.ID]int, poolSize),
		freeList:      make([]int, 0, poolSize),
		replacer:      NewLRUReplacer(poolSize),
		disk:          diskMgr,
		log:           logManager,
		zlog:          zlog.With(zap.Uint32("shard", instanceIndex)),
		m:             m,
	}
	for i := 0; i < poolSize; i++ {
		inst.frames[i] = page.NewFrame()
		inst.freeList = append(inst.freeList, i)
	}
	return inst
}

// AllocatePage returns the current next_page_id and advances the counter
// by numInstances, preserving id % numInstances == instanceIndex for every
// id this instance ever hands out. It must be called on every NewPage
// invocation, even when no frame is ultimately available: the id counter
// advances regardless, so higher layers must tolerate gaps in the page-id
// sequence.
func (b *Instance) AllocatePage() page.ID {
	id := b.nextPageID
	b.nextPageID += page.ID(b.numInstances)
	if int32(id)%int32(b.numInstances) != int32(b.instanceIndex) {
		panic(fmt.Sprintf("bufferpool: allocated id %d does not satisfy id %% %d == %d", id, b.numInstances, b.instanceIndex))
	}
	return id
}

// DeallocatePage is a hook for a future free-list-of-page-ids reclamation
// scheme. DeletePage must call it, but it does nothing today.
func (b *Instance) DeallocatePage(page.ID) {}

// victim picks a frame index to reuse, preferring the free list over the
// replacer. ok is false iff both are empty (every frame is pinned).
// Must be called with b.mu held.
func (b *Instance) victim() (frameIdx int, ok bool) {
	if n := len(b.freeList); n > 0 {
		frameIdx = b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return frameIdx, true
	}
	return b.replacer.Victim()
}

// evict prepares frameIdx for reuse: if it currently holds a dirty page,
// that page is written back first; either way its old page-table entry
// (if any) is removed and its metadata reset. Must be called with b.mu
// held and the frame already removed from the free list/replacer.
func (b *Instance) evict(frameIdx int) error {
	f := b.frames[frameIdx]
	oldID := f.GetPageID()
	if oldID != page.InvalidID {
		if f.IsDirty() {
			if err := b.disk.WritePage(oldID, f.GetData()); err != nil {
				return fmt.Errorf("bufferpool: flushing evicted page %d: %w", oldID, err)
			}
		}
		delete(b.pageTable, oldID)
		b.m.recordEviction(context.Background())
	}
	f.Reset()
	return nil
}

// NewPage allocates a fresh page id and returns a pinned, zeroed frame for
// it. ok is false iff the pool has no evictable frame (every page is
// pinned); the id counter still advanced (see AllocatePage).
func (b *Instance) NewPage() (id page.ID, frame *page.Frame, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	newID := b.AllocatePage()

	frameIdx, found := b.victim()
	if !found {
		b.m.recordPoolFull(context.Background())
		b.zlog.Debug("new page: pool full", zap.Int32("allocated_id", int32(newID)))
		return page.InvalidID, nil, false, nil
	}
	if err := b.evict(frameIdx); err != nil {
		return page.InvalidID, nil, false, err
	}

	f := b.frames[frameIdx]
	f.SetPageID(newID)
	f.Pin()
	f.SetDirty(false)
	b.pageTable[newID] = frameIdx
	b.replacer.Pin(frameIdx) // defensive: frame should already be absent

	b.zlog.Debug("new page", zap.Int32("page_id", int32(newID)), zap.Int("frame", frameIdx))
	return newID, f, true, nil
}

// FetchPage returns a pinned frame for id, loading it from disk if it is
// not already resident. ok is false iff id is not resident and no
// evictable frame exists.
func (b *Instance) FetchPage(id page.ID) (frame *page.Frame, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameIdx, resident := b.pageTable[id]; resident {
		f := b.frames[frameIdx]
		f.Pin()
		b.replacer.Pin(frameIdx)
		b.m.recordHit(context.Background())
		return f, true, nil
	}

	frameIdx, found := b.victim()
	if !found {
		b.m.recordPoolFull(context.Background())
		return nil, false, nil
	}
	if err := b.evict(frameIdx); err != nil {
		return nil, false, err
	}

	f := b.frames[frameIdx]
	f.SetPageID(id)
	f.Pin()
	f.SetDirty(false)
	b.pageTable[id] = frameIdx
	b.replacer.Pin(frameIdx)

	if err := b.disk.ReadPage(id, f.GetData()); err != nil {
		return nil, false, fmt.Errorf("bufferpool: reading page %d from disk: %w", id, err)
	}
	b.m.recordMiss(context.Background())
	b.zlog.Debug("fetched page from disk", zap.Int32("page_id", int32(id)), zap.Int("frame", frameIdx))
	return f, true, nil
}

// UnpinPage releases the caller's pin on id. isDirty, if true, marks the
// frame dirty (a dirty flag only ever clears on flush). Returns whether
// the pin count was positive before the decrement; callers typically
// ignore it.
//
// Precondition: id is resident. Violating it is a programming error;
// UnpinPage panics rather than silently succeeding.
func (b *Instance) UnpinPage(id page.ID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameIdx, resident := b.pageTable[id]
	if !resident {
		panic(fmt.Sprintf("bufferpool: unpin of non-resident page %d", id))
	}
	f := b.frames[frameIdx]
	if isDirty {
		f.SetDirty(true)
	}
	wasPinned := f.GetPinCount() > 0
	if !wasPinned {
		panic(fmt.Sprintf("bufferpool: unpin of page %d with pin count already zero", id))
	}
	f.Unpin()
	if f.GetPinCount() == 0 {
		b.replacer.Unpin(frameIdx)
	}
	return wasPinned
}

// DeletePage removes id from the pool, refusing if it is still pinned.
// Returns true if, after the call, id is not resident (whether it was
// deleted now or was never resident to begin with).
func (b *Instance) DeletePage(id page.ID) (bool, error) {
	b.DeallocatePage(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	frameIdx, resident := b.pageTable[id]
	if !resident {
		return true, nil
	}
	f := b.frames[frameIdx]
	if f.GetPinCount() > 0 {
		return false, nil
	}

	if f.IsDirty() {
		if err := b.disk.WritePage(id, f.GetData()); err != nil {
			return false, fmt.Errorf("bufferpool: flushing deleted page %d: %w", id, err)
		}
	}
	delete(b.pageTable, id)
	b.replacer.Pin(frameIdx) // remove from replacer if present
	f.Reset()
	b.freeList = append(b.freeList, frameIdx)
	return true, nil
}

// FlushPage writes id's bytes to disk unconditionally and clears its dirty
// flag, if resident. Returns whether it was resident.
func (b *Instance) FlushPage(id page.ID) (bool, error) {
	if id == page.InvalidID {
		panic("bufferpool: flush of InvalidPageID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	frameIdx, resident := b.pageTable[id]
	if !resident {
		return false, nil
	}
	f := b.frames[frameIdx]
	if err := b.disk.WritePage(id, f.GetData()); err != nil {
		return false, fmt.Errorf("bufferpool: flushing page %d: %w", id, err)
	}
	f.SetDirty(false)
	return true, nil
}

// FlushAllPages writes every currently resident page's bytes to disk and
// clears their dirty flags. Pages that were never allocated a frame
// (InvalidID slots, i.e. frames still on the free list) are skipped.
func (b *Instance) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, frameIdx := range b.pageTable {
		f := b.frames[frameIdx]
		if err := b.disk.WritePage(id, f.GetData()); err != nil {
			return fmt.Errorf("bufferpool: flushing page %d: %w", id, err)
		}
		f.SetDirty(false)
	}
	return nil
}

// GetPoolSize returns the number of frames this instance owns.
func (b *Instance) GetPoolSize() int {
	return b.poolSize
}
