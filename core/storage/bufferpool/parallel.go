package bufferpool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/corvusdb/corvusdb/core/storage/disk"
	"github.com/corvusdb/corvusdb/core/storage/page"
	"github.com/corvusdb/corvusdb/core/storage/wal"
)

// Parallel is a facade over numInstances independent Instances. It
// deterministically routes every operation on a page id to the shard
// id % numInstances, and round-robins NewPage across shards so frame
// consumption balances out instead of always favoring shard 0.
//
// A thread never holds two shard latches simultaneously: the router latch
// below only ever serializes the starting-index rotation in NewPage, and
// is always acquired before (never after) entering a shard's own latch.
type Parallel struct {
	routerMu      sync.Mutex
	startingIndex uint32

	poolSize     int
	numInstances uint32
	shards       []*Instance
}

// NewParallel constructs numInstances shards, each owning poolSize frames,
// all backed by the same disk manager. logManager and metrics may be nil.
func NewParallel(numInstances uint32, poolSize int, diskMgr disk.Manager, logManager *wal.LogManager, zlog *zap.Logger, m *Metrics) *Parallel {
	p := &Parallel{
		poolSize:     poolSize,
		numInstances: numInstances,
		shards:       make([]*Instance, numInstances),
	}
	for i := uint32(0); i < numInstances; i++ {
		p.shards[i] = NewInstance(poolSize, numInstances, i, diskMgr, logManager, zlog, m)
	}
	return p
}

// shardFor returns the instance responsible for id: id % numInstances.
func (p *Parallel) shardFor(id page.ID) *Instance {
	idx := uint32(id) % p.numInstances
	return p.shards[idx]
}

// FetchPage delegates to the shard responsible for id.
func (p *Parallel) FetchPage(id page.ID) (*page.Frame, bool, error) {
	return p.shardFor(id).FetchPage(id)
}

// UnpinPage delegates to the shard responsible for id.
func (p *Parallel) UnpinPage(id page.ID, isDirty bool) bool {
	return p.shardFor(id).UnpinPage(id, isDirty)
}

// FlushPage delegates to the shard responsible for id.
func (p *Parallel) FlushPage(id page.ID) (bool, error) {
	return p.shardFor(id).FlushPage(id)
}

// DeletePage delegates to the shard responsible for id.
func (p *Parallel) DeletePage(id page.ID) (bool, error) {
	return p.shardFor(id).DeletePage(id)
}

// NewPage tries each shard in round-robin order starting from
// startingIndex, returning the first success. startingIndex advances by
// one (mod numInstances) on every call, regardless of how many shards
// were tried or whether any succeeded — this is a deliberate simplicity
// trade against always re-trying from shard 0 (see DESIGN.md for why this
// departs from a literal per-attempt rotation).
func (p *Parallel) NewPage() (id page.ID, frame *page.Frame, ok bool, err error) {
	p.routerMu.Lock()
	start := p.startingIndex
	p.startingIndex = (p.startingIndex + 1) % p.numInstances
	p.routerMu.Unlock()

	for i := uint32(0); i < p.numInstances; i++ {
		idx := (start + i) % p.numInstances
		id, frame, ok, err = p.shards[idx].NewPage()
		if err != nil {
			return page.InvalidID, nil, false, err
		}
		if ok {
			return id, frame, true, nil
		}
	}
	return page.InvalidID, nil, false, nil
}

// FlushAllPages fans out to every shard.
func (p *Parallel) FlushAllPages() error {
	for _, shard := range p.shards {
		if err := shard.FlushAllPages(); err != nil {
			return err
		}
	}
	return nil
}

// GetPoolSize returns numInstances * poolSize.
func (p *Parallel) GetPoolSize() int {
	return int(p.numInstances) * p.poolSize
}
