package forest

import (
	"sort"
	"strconv"
	"strings"

	"github.com/traceflow/traceflow/internal/model"
)

// assignGroups selects root nodes and partitions the forest into groups.
// Loop-iteration roots, when any were detected, supersede the legacy
// root set entirely. Roots are processed in ascending start-time order,
// ties broken by node id, so group ids come out identical run to run.
func (f *Forest) assignGroups() {
	roots := f.selectRoots()
	sortByStart(f, roots)

	for _, root := range roots {
		if _, ok := f.nodes[root].GroupID(); ok {
			// Reached from an earlier root; it does not start a group.
			continue
		}
		gid := f.nextGroupID
		f.nextGroupID++
		name := f.nodes[root].displayName()
		f.groups[gid] = &GroupMetadata{
			Name:     name,
			Parents:  make(map[int64]bool),
			Children: make(map[int64]bool),
		}
		f.nodes[root].Event.SetStat(model.StatTypeGroupName, model.StringStat(name))
		f.rootNodes = append(f.rootNodes, root)
		f.propagateGroupID(root, gid)
	}
}

// selectRoots returns the candidate root set. Loop iterations override
// legacy root detection; otherwise every node of a configured root type,
// or flagged as root by a heuristic, is a candidate.
func (f *Forest) selectRoots() []NodeID {
	if len(f.loopRoots) > 0 {
		out := make([]NodeID, len(f.loopRoots))
		copy(out, f.loopRoots)
		return out
	}
	rootTypes := make(map[model.EventType]bool, len(f.opts.RootTypes))
	for _, t := range f.opts.RootTypes {
		rootTypes[t] = true
	}
	var out []NodeID
	for id := range f.nodes {
		n := &f.nodes[id]
		_, flagged := n.Event.Stat(model.StatTypeIsRoot)
		if rootTypes[n.Event.Type] || flagged || n.isRoot {
			n.isRoot = true
			out = append(out, NodeID(id))
		}
	}
	return out
}

// propagateGroupID assigns gid to every node reachable from root that has
// no group yet. A node already owned by a different group keeps it (first
// assignment wins); instead the boundary is recorded symmetrically in the
// group metadata, and traversal does not continue past it.
func (f *Forest) propagateGroupID(root NodeID, gid int64) {
	visited := map[NodeID]bool{root: true}
	queue := []NodeID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := &f.nodes[id]

		if other, ok := n.GroupID(); ok && other != gid {
			f.groups[gid].Children[other] = true
			f.groups[other].Parents[gid] = true
			continue
		}
		if _, ok := n.GroupID(); !ok {
			f.setGroupID(id, gid)
		}

		for _, c := range n.children {
			if !visited[c] {
				visited[c] = true
				queue = append(queue, c)
			}
		}
	}
}

// setGroupID records the assignment on the node and persists it onto the
// underlying event for downstream consumers.
func (f *Forest) setGroupID(id NodeID, gid int64) {
	f.nodes[id].groupID = gid
	f.nodes[id].Event.SetStat(model.StatTypeGroupID, model.IntStat(gid))
}

// regroup moves the node, and its descendants that shared the node's
// previous assignment, into group gid. Used by the worker merge pass.
func (f *Forest) regroup(id NodeID, gid int64) {
	from := f.nodes[id].groupID
	visited := map[NodeID]bool{id: true}
	queue := []NodeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if f.nodes[cur].groupID != from {
			continue
		}
		f.setGroupID(cur, gid)
		for _, c := range f.nodes[cur].children {
			if !visited[c] {
				visited[c] = true
				queue = append(queue, c)
			}
		}
	}
}

// AnnotateSelectedGroups attaches to every grouped node the set of group
// ids reachable from its group through the child relationship sets,
// persisted as a comma-separated stat for correlation display. The pass
// reads only completed group state, so re-running it on an already
// annotated trace yields the same annotations.
func (f *Forest) AnnotateSelectedGroups() {
	// One annotation string per group; nodes of the same group share it.
	cache := make(map[int64]string, len(f.groups))
	for id := range f.nodes {
		gid, ok := f.nodes[id].GroupID()
		if !ok {
			continue
		}
		s, ok := cache[gid]
		if !ok {
			s = joinGroupIDs(f.reachableGroups(gid))
			cache[gid] = s
		}
		f.nodes[id].Event.SetStat(model.StatTypeSelectedGroupIDs, model.StringStat(s))
	}
}

// reachableGroups returns gid plus every group transitively reachable
// through Children sets, sorted ascending.
func (f *Forest) reachableGroups(gid int64) []int64 {
	seen := map[int64]bool{gid: true}
	queue := []int64{gid}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		meta := f.groups[cur]
		if meta == nil {
			continue
		}
		for child := range meta.Children {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinGroupIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
