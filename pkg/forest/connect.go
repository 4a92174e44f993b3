package forest

import (
	"sort"

	"github.com/traceflow/traceflow/internal/model"
)

// connectRules stitches events across timelines using the configured
// connect rules. For each rule, candidate parents are indexed by their
// stat-value tuple; every child whose own tuple matches gains each
// candidate as an additional parent. Rules are additive and evaluated in
// list order; nodes missing a required stat are skipped silently.
func (f *Forest) connectRules() {
	for _, rule := range f.opts.Rules {
		parents := make(map[string][]NodeID)
		for _, id := range f.byType[rule.ParentType] {
			if key, ok := f.nodes[id].statTuple(rule.ParentStats); ok {
				parents[key] = append(parents[key], id)
			}
		}
		if len(parents) == 0 {
			continue
		}
		for _, id := range f.byType[rule.ChildType] {
			key, ok := f.nodes[id].statTuple(rule.ChildStats)
			if !ok {
				continue
			}
			for _, p := range parents[key] {
				f.AddChild(p, id)
			}
		}
	}
}

// contextGroup collects the producers and consumers sharing one context.
type contextGroup struct {
	producers []NodeID
	consumers []NodeID
}

// connectContexts links every producer to every consumer sharing a
// (kind, id) context, restricted to the given kinds. This models
// asynchronous launch/completion and send/receive correlation; consumers
// reached this way are marked async. Keys are connected in sorted order
// so edge lists come out identical run to run.
func (f *Forest) connectContexts(kinds ...model.ContextKind) {
	wanted := make(map[model.ContextKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	registry := make(map[Context]*contextGroup)
	for id := range f.nodes {
		n := &f.nodes[id]
		if n.producer.valid() && wanted[n.producer.Kind] {
			g := registry[n.producer]
			if g == nil {
				g = &contextGroup{}
				registry[n.producer] = g
			}
			g.producers = append(g.producers, NodeID(id))
		}
		if n.consumer.valid() && wanted[n.consumer.Kind] {
			g := registry[n.consumer]
			if g == nil {
				g = &contextGroup{}
				registry[n.consumer] = g
			}
			g.consumers = append(g.consumers, NodeID(id))
		}
	}

	keys := make([]Context, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})

	for _, key := range keys {
		g := registry[key]
		if len(g.producers) == 0 || len(g.consumers) == 0 {
			continue
		}
		for _, p := range g.producers {
			for _, c := range g.consumers {
				f.AddChild(p, c)
				f.nodes[c].isAsync = true
			}
		}
	}
}
