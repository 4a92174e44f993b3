package forest

import (
	"github.com/traceflow/traceflow/internal/model"
)

// detectLoopIterations scans each timeline for executor events. The first
// executor event overall, and every executor event whose step id differs
// from its predecessor's, starts a new iteration and is registered as a
// loop root. Any loop roots found supersede the legacy root set.
func (f *Forest) detectLoopIterations() {
	for _, tl := range f.trace.SortedTimelines() {
		seen := false
		prevStep := ""
		for _, id := range f.timelineNodes[tl.ID] {
			n := &f.nodes[id]
			if n.Event.Type != f.opts.LoopExecutorType {
				continue
			}
			step := ""
			if v, ok := n.Event.Stat(model.StatTypeStepID); ok {
				step = v.String()
			}
			if !seen || step != prevStep {
				n.isRoot = true
				f.loopRoots = append(f.loopRoots, id)
				if step != "" {
					n.Event.SetStat(model.StatTypeStepName, model.StringStat("Iteration "+step))
				}
			}
			seen = true
			prevStep = step
		}
	}
}

// markEagerOps flags host ops executing outside any graph region: an op
// with no executor, session, or graph-run ancestor ran eagerly.
func (f *Forest) markEagerOps() {
	region := make(map[model.EventType]bool, len(f.opts.GraphRegionTypes))
	for _, t := range f.opts.GraphRegionTypes {
		region[t] = true
	}
	for _, id := range f.byType[model.EventTypeOp] {
		anc := f.findAncestor(id, func(n *Node) bool { return region[n.Event.Type] })
		if anc == NoNode {
			f.setEager(id)
		}
	}
}

// markEagerKernels flags device work launched from an eager op: a kernel
// launch whose enclosing op is itself eager, plus the device events the
// launch is connected to.
func (f *Forest) markEagerKernels() {
	for _, id := range f.byType[model.EventTypeKernelLaunch] {
		op := f.findAncestor(id, func(n *Node) bool { return n.Event.Type == model.EventTypeOp })
		if op == NoNode || !f.nodes[op].isEager {
			continue
		}
		f.setEager(id)
		for _, c := range f.nodes[id].children {
			switch f.nodes[c].Event.Type {
			case model.EventTypeKernelExecute, model.EventTypeMemcpy:
				f.setEager(c)
			}
		}
	}
}

func (f *Forest) setEager(id NodeID) {
	f.nodes[id].isEager = true
	f.nodes[id].Event.SetStat(model.StatTypeIsEager, model.IntStat(1))
}

// mergeWorkerGroups folds eagerly executed ops that immediately follow a
// function-run root on the same timeline into the function run's group,
// up to the next root boundary. A dispatcher invoking a sequence of
// callback ops thereby reads as one logical unit.
func (f *Forest) mergeWorkerGroups() {
	for _, tl := range f.trace.SortedTimelines() {
		cur := noGroup
		for _, id := range f.timelineNodes[tl.ID] {
			n := &f.nodes[id]
			if n.isRoot {
				cur = noGroup
				if n.Event.Type == f.opts.FunctionRunType {
					if gid, ok := n.GroupID(); ok {
						cur = gid
					}
				}
				continue
			}
			if cur == noGroup || !n.isEager || n.Event.Type != model.EventTypeOp {
				continue
			}
			if gid, ok := n.GroupID(); !ok || gid != cur {
				f.regroup(id, cur)
			}
		}
	}
}

// tagModelIDs copies a model-id stat found on a group's root, or on one of
// the root's ancestors, into the group metadata. Labeling only; membership
// is not affected.
func (f *Forest) tagModelIDs() {
	for _, root := range f.rootNodes {
		gid, ok := f.nodes[root].GroupID()
		if !ok {
			continue
		}
		carrier := f.findAncestor(root, func(n *Node) bool {
			_, has := n.Event.Stat(model.StatTypeModelID)
			return has
		})
		if carrier == NoNode {
			continue
		}
		v, _ := f.nodes[carrier].Event.Stat(model.StatTypeModelID)
		f.groups[gid].ModelID = v.String()
	}
}
