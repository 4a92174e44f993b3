package forest

// nestTimeline builds containment edges for one timeline. ids must be
// sorted by (start asc, duration desc); the nearest enclosing interval
// becomes each event's parent.
//
// A stack holds the currently open intervals. For each event, intervals
// whose end is at or before the event's start have closed and are popped;
// the remaining top, if it still encloses the event, is its parent.
// Partial overlap is not a containment relation, so an event extending
// past the top's end gets no edge but is still pushed, since it may
// enclose later events itself.
func (f *Forest) nestTimeline(ids []NodeID) {
	var stack []NodeID
	for _, id := range ids {
		ev := f.nodes[id].Event
		for len(stack) > 0 && f.nodes[stack[len(stack)-1]].Event.EndNs() <= ev.StartNs {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if ev.EndNs() <= f.nodes[top].Event.EndNs() {
				f.AddChild(top, id)
			}
		}
		stack = append(stack, id)
	}
}

// findAncestor walks up the parent edges from id (inclusive) and returns
// the first node matching pred, searching breadth-first so the nearest
// ancestor wins.
func (f *Forest) findAncestor(id NodeID, pred func(*Node) bool) NodeID {
	visited := map[NodeID]bool{id: true}
	queue := []NodeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if pred(&f.nodes[cur]) {
			return cur
		}
		for _, p := range f.nodes[cur].parents {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return NoNode
}
