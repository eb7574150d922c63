package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvusdb/corvusdb/core/storage/disk"
	"github.com/corvusdb/corvusdb/core/storage/page"
)

func newTestInstance(t *testing.T, poolSize int) (*Instance, *disk.FileManager) {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return NewInstance(poolSize, 1, 0, dm, nil, nil, nil), dm
}

// S1: fill then overflow.
func TestInstance_FillThenOverflow(t *testing.T) {
	inst, _ := newTestInstance(t, 10)

	for i := 0; i < 10; i++ {
		_, _, ok, err := inst.NewPage()
		require.NoError(t, err)
		require.True(t, ok, "page %d should allocate", i)
	}

	_, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.False(t, ok, "11th page should fail: every frame pinned")

	ok = inst.UnpinPage(0, false)
	require.True(t, ok)

	// The failed 11th call above already consumed id 10.
	id, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, page.ID(11), id)

	_, ok, err = inst.FetchPage(0)
	require.NoError(t, err)
	require.False(t, ok, "page 0 was evicted to make room")
}

// S2: dirty eviction writes bytes back.
func TestInstance_DirtyEviction(t *testing.T) {
	inst, dm := newTestInstance(t, 2)

	id, frame, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, page.ID(0), id)
	frame.GetData()[0] = 'X'
	require.True(t, inst.UnpinPage(id, true))

	// Consume the remaining frame, then force an eviction of page 0.
	_, _, ok, err = inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, inst.UnpinPage(1, false))

	_, _, ok, err = inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok, "evicting the LRU victim (page 0) frees a frame")

	buf := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(0, buf))
	require.Equal(t, byte('X'), buf[0])
}

// S3: delete a pinned page is refused.
func TestInstance_DeletePinnedRefused(t *testing.T) {
	inst, _ := newTestInstance(t, 4)

	id, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := inst.DeletePage(id)
	require.NoError(t, err)
	require.False(t, deleted)
}

// S4: delete an unpinned page succeeds.
func TestInstance_DeleteUnpinned(t *testing.T) {
	inst, _ := newTestInstance(t, 4)

	id, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, inst.UnpinPage(id, false))

	deleted, err := inst.DeletePage(id)
	require.NoError(t, err)
	require.True(t, deleted)

	deletedAgain, err := inst.DeletePage(id)
	require.NoError(t, err)
	require.True(t, deletedAgain, "deleting an already-absent page returns true")
}

// S5: LRU victim order across fetch/unpin/re-fetch.
func TestInstance_LRUOrder(t *testing.T) {
	inst, _ := newTestInstance(t, 3)

	idA, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	idB, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	idC, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, inst.UnpinPage(idA, false))
	require.True(t, inst.UnpinPage(idB, false))
	require.True(t, inst.UnpinPage(idC, false))

	newID, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	_ = newID

	// Residency is checked through the page table: fetching a non-resident
	// page would itself evict another unpinned frame.
	_, residentA := inst.pageTable[idA]
	require.False(t, residentA, "A was the oldest unpin, it should have been evicted")
	_, okB, _ := inst.FetchPage(idB)
	require.True(t, okB)
	require.True(t, inst.UnpinPage(idB, false))

	_, _, ok, err = inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	_, residentC := inst.pageTable[idC]
	require.False(t, residentC, "C, not the re-fetched B, should be the next victim")
}

func TestInstance_FetchUnpinDirtyFlag(t *testing.T) {
	inst, _ := newTestInstance(t, 2)

	id, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, inst.UnpinPage(id, false))

	frame, ok, err := inst.FetchPage(id)
	require.NoError(t, err)
	require.True(t, ok)
	before := frame.IsDirty()
	require.True(t, inst.UnpinPage(id, false))
	frame2, ok, err := inst.FetchPage(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, before, frame2.IsDirty())
	inst.UnpinPage(id, false)
}

func TestInstance_UnpinDirtyTrueSticks(t *testing.T) {
	inst, _ := newTestInstance(t, 2)

	id, _, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, inst.UnpinPage(id, true))

	frame, ok, err := inst.FetchPage(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, frame.IsDirty())
	inst.UnpinPage(id, false)
}

func TestInstance_UnpinNonResidentPanics(t *testing.T) {
	inst, _ := newTestInstance(t, 2)
	require.Panics(t, func() {
		inst.UnpinPage(page.ID(99), false)
	})
}

func TestInstance_FlushInvalidPanics(t *testing.T) {
	inst, _ := newTestInstance(t, 2)
	require.Panics(t, func() {
		inst.FlushPage(page.InvalidID)
	})
}

func TestInstance_FlushPageRoundTrip(t *testing.T) {
	inst, dm := newTestInstance(t, 2)

	id, frame, ok, err := inst.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	copy(frame.GetData(), []byte("round-trip"))
	inst.UnpinPage(id, true)

	flushed, err := inst.FlushPage(id)
	require.NoError(t, err)
	require.True(t, flushed)

	buf := make([]byte, page.Size)
	require.NoError(t, dm.ReadPage(id, buf))
	require.Equal(t, []byte("round-trip"), buf[:len("round-trip")])
}

func TestInstance_InvariantFreeReplacerPinnedPartitionPoolSize(t *testing.T) {
	inst, _ := newTestInstance(t, 5)

	var ids []page.ID
	for i := 0; i < 3; i++ {
		id, _, ok, err := inst.NewPage()
		require.NoError(t, err)
		require.True(t, ok)
		ids = append(ids, id)
	}
	inst.UnpinPage(ids[0], false)

	pinned := 0
	for _, id := range ids[1:] {
		if _, resident := inst.pageTable[id]; resident {
			pinned++
		}
	}
	require.Equal(t, len(inst.freeList)+inst.replacer.Size()+pinned, inst.poolSize)
}
