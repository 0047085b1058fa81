package cache

import (
	"sync"

	"github.com/downfa11-org/go-recordlog/pkg/types"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// TailCache keeps the records fetched so far for each partition, ordered by
// offset. A record inserted at an offset already present replaces the old one.
type TailCache struct {
	mu         sync.RWMutex
	partitions map[uint32]*treemap.Map
}

func NewTailCache() *TailCache {
	return &TailCache{partitions: make(map[uint32]*treemap.Map)}
}

func (c *TailCache) Insert(partitionID uint32, records []types.Record) {
	if len(records) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tree, ok := c.partitions[partitionID]
	if !ok {
		tree = treemap.NewWith(utils.UInt64Comparator)
		c.partitions[partitionID] = tree
	}
	for _, r := range records {
		tree.Put(r.Offset, r)
	}
}

// Get returns a copy of the cached records of a partition in ascending offset
// order. Unknown partitions yield an empty slice.
func (c *TailCache) Get(partitionID uint32) []types.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tree, ok := c.partitions[partitionID]
	if !ok {
		return []types.Record{}
	}
	out := make([]types.Record, 0, tree.Size())
	it := tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(types.Record))
	}
	return out
}

// LatestOffset returns the highest cached offset of a partition, or 0.
func (c *TailCache) LatestOffset(partitionID uint32) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tree, ok := c.partitions[partitionID]
	if !ok {
		return 0
	}
	key, _ := tree.Max()
	if key == nil {
		return 0
	}
	return key.(uint64)
}

func (c *TailCache) Count(partitionID uint32) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tree, ok := c.partitions[partitionID]; ok {
		return tree.Size()
	}
	return 0
}

func (c *TailCache) Clear(partitionID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.partitions, partitionID)
}

func (c *TailCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions = make(map[uint32]*treemap.Map)
}
