// Package index provides bitmap indexes over grouped event forests.
// Each group id maps to a roaring bitmap of node positions, enabling O(1)
// membership checks and efficient set algebra across groups.
package index

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/traceflow/traceflow/pkg/forest"
)

// GroupIndex maps group ids to bitmaps of member node positions.
type GroupIndex struct {
	mu sync.RWMutex

	groups map[int64]*roaring.Bitmap
	eager  *roaring.Bitmap
	total  uint32
}

// Build indexes a grouped forest. Node ids are stable, so bitmap positions
// are node ids directly.
func Build(f *forest.Forest) *GroupIndex {
	idx := &GroupIndex{
		groups: make(map[int64]*roaring.Bitmap),
		eager:  roaring.New(),
		total:  uint32(f.Len()),
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(forest.NodeID(i))
		if gid, ok := n.GroupID(); ok {
			bm := idx.groups[gid]
			if bm == nil {
				bm = roaring.New()
				idx.groups[gid] = bm
			}
			bm.Add(uint32(i))
		}
		if n.IsEager() {
			idx.eager.Add(uint32(i))
		}
	}
	return idx
}

// GroupIDs returns the indexed group ids in ascending order.
func (idx *GroupIndex) GroupIDs() []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]int64, 0, len(idx.groups))
	for id := range idx.groups {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether the node belongs to the group.
func (idx *GroupIndex) Contains(gid int64, node forest.NodeID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bm := idx.groups[gid]
	return bm != nil && bm.Contains(uint32(node))
}

// Cardinality returns the number of nodes in the group.
func (idx *GroupIndex) Cardinality(gid int64) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bm := idx.groups[gid]
	if bm == nil {
		return 0
	}
	return bm.GetCardinality()
}

// Union returns the node positions belonging to any of the given groups.
func (idx *GroupIndex) Union(gids ...int64) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := roaring.New()
	for _, gid := range gids {
		if bm := idx.groups[gid]; bm != nil {
			out.Or(bm)
		}
	}
	return out
}

// EagerIn returns how many of the group's nodes executed eagerly.
func (idx *GroupIndex) EagerIn(gid int64) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bm := idx.groups[gid]
	if bm == nil {
		return 0
	}
	return roaring.And(bm, idx.eager).GetCardinality()
}

// Ungrouped returns the positions of nodes outside every group.
func (idx *GroupIndex) Ungrouped() *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	all := roaring.New()
	all.AddRange(0, uint64(idx.total))
	for _, bm := range idx.groups {
		all.AndNot(bm)
	}
	return all
}
