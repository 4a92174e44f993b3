// Package forest reconstructs causal structure from a flat trace and
// partitions its events into logical execution groups.
//
// Events are wrapped in nodes held in a single arena and addressed by
// stable integer ids; parent/child edges are index lists, so the multi-
// parent DAG carries no pointer cycles. The pipeline nests events within
// each timeline by interval containment, stitches events across timelines
// by connect rules and producer/consumer contexts, and assigns every
// reachable event to exactly one group rooted at a designated root event.
package forest

import (
	"github.com/traceflow/traceflow/internal/model"
)

// NodeID addresses a node in the forest's arena. Ids are stable for the
// lifetime of the forest.
type NodeID int32

// NoNode is the null node id.
const NoNode NodeID = -1

// noGroup marks a node not yet assigned to any group.
const noGroup int64 = -1

// Context is a (kind, id) pair used to match a producer event to its
// consumer events across timelines.
type Context struct {
	Kind model.ContextKind
	ID   uint64
}

// valid reports whether the context is present.
func (c Context) valid() bool { return c.Kind != model.ContextKindNone }

// Node wraps one raw event with the links and flags computed by the
// grouping pipeline. Nodes are created once per event and mutated in
// place by each pass.
type Node struct {
	Event    *model.Event
	Timeline *model.Timeline

	parents  []NodeID
	children []NodeID

	groupID  int64
	producer Context
	consumer Context

	isRoot  bool
	isAsync bool
	isEager bool
}

// Parents returns the node's parent ids in attachment order.
func (n *Node) Parents() []NodeID { return n.parents }

// Children returns the node's child ids in attachment order.
func (n *Node) Children() []NodeID { return n.children }

// GroupID returns the node's assigned group id, if any.
func (n *Node) GroupID() (int64, bool) {
	if n.groupID == noGroup {
		return 0, false
	}
	return n.groupID, true
}

// IsRoot reports whether the node starts a logical group.
func (n *Node) IsRoot() bool { return n.isRoot }

// IsAsync reports whether the node was reached through an asynchronous
// producer/consumer connection.
func (n *Node) IsAsync() bool { return n.isAsync }

// IsEager reports whether the node executes outside any compiled graph
// region.
func (n *Node) IsEager() bool { return n.isEager }

// ProducerContext returns the node's producer-side context, if any.
func (n *Node) ProducerContext() (Context, bool) {
	return n.producer, n.producer.valid()
}

// ConsumerContext returns the node's consumer-side context, if any.
func (n *Node) ConsumerContext() (Context, bool) {
	return n.consumer, n.consumer.valid()
}

// StartsBefore reports whether the node starts no later than other.
func (n *Node) StartsBefore(other *Node) bool {
	return n.Event.StartNs <= other.Event.StartNs
}

// displayName returns the name used when the node roots a group. A step
// name annotation takes precedence over the raw event name.
func (n *Node) displayName() string {
	if v, ok := n.Event.Stat(model.StatTypeStepName); ok && v.Str != "" {
		return v.Str
	}
	return n.Event.Name
}

// statTuple looks up the given stat types on the node's event and joins
// their rendered values. The second return is false if any stat is absent,
// which excludes the node from rule matching.
func (n *Node) statTuple(types []model.StatType) (string, bool) {
	var key string
	for i, t := range types {
		v, ok := n.Event.Stat(t)
		if !ok {
			return "", false
		}
		if i > 0 {
			key += "\x00"
		}
		key += v.String()
	}
	return key, true
}
