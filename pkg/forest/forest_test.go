package forest

import (
	"context"
	"testing"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/rules"
)

// ev builds an event with optional stats supplied as pairs.
func ev(name string, typ model.EventType, start, dur int64, stats ...interface{}) *model.Event {
	e := &model.Event{Name: name, Type: typ, StartNs: start, DurationNs: dur}
	for i := 0; i+1 < len(stats); i += 2 {
		e.SetStat(stats[i].(model.StatType), stats[i+1].(model.StatValue))
	}
	return e
}

func singleTimeline(events ...*model.Event) *model.Trace {
	return &model.Trace{
		Name:      "test",
		Timelines: []*model.Timeline{{ID: 0, Name: "main", Events: events}},
	}
}

func mustForest(t *testing.T, trace *model.Trace, opts Options) *Forest {
	t.Helper()
	f, err := New(trace, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func groupOf(t *testing.T, f *Forest, id NodeID) int64 {
	t.Helper()
	gid, ok := f.Node(id).GroupID()
	if !ok {
		t.Fatalf("node %d has no group", id)
	}
	return gid
}

func TestNesterContainment(t *testing.T) {
	// A[0,100] contains B[10,40] and C[50,90].
	a := ev("A", model.EventTypeSessionRun, 0, 100)
	b := ev("B", model.EventTypeOp, 10, 30)
	c := ev("C", model.EventTypeOp, 50, 40)
	f := mustForest(t, singleTimeline(c, a, b), DefaultOptions()) // arbitrary order

	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	var aID NodeID = NoNode
	for i := 0; i < f.Len(); i++ {
		if f.Node(NodeID(i)).Event.Name == "A" {
			aID = NodeID(i)
		}
	}
	if aID == NoNode {
		t.Fatal("node A not found")
	}
	if got := len(f.Node(aID).Children()); got != 2 {
		t.Fatalf("A children = %d, want 2", got)
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		if n.Event.Name == "A" {
			if len(n.Parents()) != 0 {
				t.Errorf("A should have no parent, got %d", len(n.Parents()))
			}
			continue
		}
		if len(n.Parents()) != 1 || n.Parents()[0] != aID {
			t.Errorf("%s parent = %v, want [%d]", n.Event.Name, n.Parents(), aID)
		}
	}

	// One group with id 0 containing all three, all annotated with {0}.
	if len(f.GroupMetadata()) != 1 {
		t.Fatalf("groups = %d, want 1", len(f.GroupMetadata()))
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		if gid := groupOf(t, f, NodeID(i)); gid != 0 {
			t.Errorf("%s group = %d, want 0", n.Event.Name, gid)
		}
		sel, ok := n.Event.Stat(model.StatTypeSelectedGroupIDs)
		if !ok || sel.Str != "0" {
			t.Errorf("%s selected groups = %q, want \"0\"", n.Event.Name, sel.Str)
		}
	}
}

func TestNesterZeroDurationAtBoundary(t *testing.T) {
	// A zero-duration event at the exact start of its enclosing interval
	// must still nest under it (duration desc tie-break).
	outer := ev("outer", model.EventTypeSessionRun, 100, 50)
	marker := ev("marker", model.EventTypeOp, 100, 0)
	f := mustForest(t, singleTimeline(marker, outer), DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		if n.Event.Name == "marker" && len(n.Parents()) != 1 {
			t.Errorf("marker parents = %d, want 1", len(n.Parents()))
		}
	}
}

func TestNesterPartialOverlapNotNested(t *testing.T) {
	// B overlaps A's tail but is not contained; no edge either way.
	a := ev("A", model.EventTypeSessionRun, 0, 50)
	b := ev("B", model.EventTypeOp, 30, 40)
	f := mustForest(t, singleTimeline(a, b), DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		if n.Event.Name == "B" && len(n.Parents()) != 0 {
			t.Errorf("partial overlap created a parent for B: %v", n.Parents())
		}
	}
}

func TestConnectRuleAcrossTimelines(t *testing.T) {
	// send on timeline 1 connects as parent of recv on timeline 2 via
	// equal correlation id 7; the two root-derived groups become related.
	send := ev("send", model.EventTypeKernelLaunch, 10, 5,
		model.StatTypeCorrelationID, model.IntStat(7))
	recv := ev("recv", model.EventTypeKernelExecute, 30, 5,
		model.StatTypeCorrelationID, model.IntStat(7))
	r1 := ev("r1", model.EventTypeSessionRun, 0, 20)
	r2 := ev("r2", model.EventTypeSessionRun, 25, 20)
	trace := &model.Trace{Timelines: []*model.Timeline{
		{ID: 1, Name: "host", Events: []*model.Event{r1, send}},
		{ID: 2, Name: "device", Events: []*model.Event{r2, recv}},
	}}

	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	var sendID, recvID NodeID = NoNode, NoNode
	for i := 0; i < f.Len(); i++ {
		switch f.Node(NodeID(i)).Event.Name {
		case "send":
			sendID = NodeID(i)
		case "recv":
			recvID = NodeID(i)
		}
	}
	found := false
	for _, p := range f.Node(recvID).Parents() {
		if p == sendID {
			found = true
		}
	}
	if !found {
		t.Fatalf("recv parents = %v, want to include send (%d)", f.Node(recvID).Parents(), sendID)
	}

	// r1 starts first, so its traversal reaches recv through send before
	// r2's own traversal does: first assignment wins.
	gSend, gRecv := groupOf(t, f, sendID), groupOf(t, f, recvID)
	if gSend != gRecv {
		t.Fatalf("recv group = %d, want %d (reached first through send)", gRecv, gSend)
	}

	// r2 still roots its own group and records the boundary it hit.
	var r2Group int64 = -1
	for i := 0; i < f.Len(); i++ {
		if f.Node(NodeID(i)).Event.Name == "r2" {
			r2Group = groupOf(t, f, NodeID(i))
		}
	}
	if r2Group == gSend {
		t.Fatalf("r2 should root a distinct group, got %d", r2Group)
	}
	meta := f.GroupMetadata()
	if !meta[r2Group].Children[gSend] {
		t.Errorf("group %d should record %d as child", r2Group, gSend)
	}
	if !meta[gSend].Parents[r2Group] {
		t.Errorf("group %d should record %d as parent", gSend, r2Group)
	}
}

func TestRuleMissingStatSkipsNode(t *testing.T) {
	send := ev("send", model.EventTypeKernelLaunch, 0, 5) // no correlation id
	recv := ev("recv", model.EventTypeKernelExecute, 10, 5,
		model.StatTypeCorrelationID, model.IntStat(7))
	f := mustForest(t, singleTimeline(send, recv), DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		if n.Event.Name == "recv" && len(n.Parents()) != 0 {
			t.Errorf("rule fired without required stat: recv parents = %v", n.Parents())
		}
	}
}

func TestGroupIDMonotonicity(t *testing.T) {
	var events []*model.Event
	starts := []int64{400, 100, 300, 200}
	for _, s := range starts {
		events = append(events, ev("run", model.EventTypeSessionRun, s, 50))
	}
	f := mustForest(t, singleTimeline(events...), DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	// Earlier start must mean smaller group id.
	byStart := map[int64]int64{}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		byStart[n.Event.StartNs] = groupOf(t, f, NodeID(i))
	}
	want := int64(0)
	for _, s := range []int64{100, 200, 300, 400} {
		if byStart[s] != want {
			t.Errorf("root at %d got group %d, want %d", s, byStart[s], want)
		}
		want++
	}
}

func TestUnreachableNodesStayUngrouped(t *testing.T) {
	root := ev("root", model.EventTypeSessionRun, 0, 50)
	orphan := ev("orphan", model.EventTypeMemcpy, 200, 10)
	f := mustForest(t, singleTimeline(root, orphan), DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		_, grouped := n.GroupID()
		if n.Event.Name == "orphan" && grouped {
			t.Error("orphan should stay ungrouped")
		}
		if n.Event.Name == "root" && !grouped {
			t.Error("root should be grouped")
		}
	}
}

func TestDeterminism(t *testing.T) {
	build := func() *model.Trace {
		return &model.Trace{Timelines: []*model.Timeline{
			{ID: 1, Name: "host", Events: []*model.Event{
				ev("r1", model.EventTypeSessionRun, 0, 100),
				ev("launch", model.EventTypeKernelLaunch, 20, 5,
					model.StatTypeCorrelationID, model.IntStat(3)),
				ev("r2", model.EventTypeSessionRun, 200, 100),
			}},
			{ID: 2, Name: "device", Events: []*model.Event{
				ev("kernel", model.EventTypeKernelExecute, 40, 10,
					model.StatTypeCorrelationID, model.IntStat(3)),
			}},
		}}
	}

	run := func() (*Forest, error) {
		f, err := New(build(), DefaultOptions())
		if err != nil {
			return nil, err
		}
		return f, f.GroupEvents(context.Background())
	}

	f1, err := run()
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	f2, err := run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if f1.Len() != f2.Len() {
		t.Fatalf("node counts differ: %d vs %d", f1.Len(), f2.Len())
	}
	for i := 0; i < f1.Len(); i++ {
		g1, ok1 := f1.Node(NodeID(i)).GroupID()
		g2, ok2 := f2.Node(NodeID(i)).GroupID()
		if ok1 != ok2 || g1 != g2 {
			t.Errorf("node %d: group %d/%v vs %d/%v", i, g1, ok1, g2, ok2)
		}
	}
	m1, m2 := f1.GroupMetadata(), f2.GroupMetadata()
	if len(m1) != len(m2) {
		t.Fatalf("group counts differ: %d vs %d", len(m1), len(m2))
	}
	for gid, meta := range m1 {
		other := m2[gid]
		if other == nil || other.Name != meta.Name {
			t.Errorf("group %d metadata differs", gid)
		}
	}
}

func TestRelationshipSymmetry(t *testing.T) {
	// Two roots share a descendant via a context connection.
	trace := &model.Trace{Timelines: []*model.Timeline{
		{ID: 1, Events: []*model.Event{
			ev("r1", model.EventTypeSessionRun, 0, 50,
				model.StatTypeProducerType, model.IntStat(int64(model.ContextKindExecutor)),
				model.StatTypeProducerID, model.IntStat(9)),
		}},
		{ID: 2, Events: []*model.Event{
			ev("r2", model.EventTypeSessionRun, 10, 50),
			ev("work", model.EventTypeOp, 20, 10,
				model.StatTypeConsumerType, model.IntStat(int64(model.ContextKindExecutor)),
				model.StatTypeConsumerID, model.IntStat(9)),
		}},
	}}
	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	meta := f.GroupMetadata()
	for a, ma := range meta {
		for b := range ma.Children {
			if !meta[b].Parents[a] {
				t.Errorf("asymmetric relationship: %d->%d recorded only as child", a, b)
			}
		}
		for b := range ma.Parents {
			if !meta[b].Children[a] {
				t.Errorf("asymmetric relationship: %d->%d recorded only as parent", a, b)
			}
		}
	}
}

func TestIdempotentSelectedGroupAnnotation(t *testing.T) {
	a := ev("A", model.EventTypeSessionRun, 0, 100)
	b := ev("B", model.EventTypeOp, 10, 30)
	f := mustForest(t, singleTimeline(a, b), DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	first := make(map[int]string)
	for i := 0; i < f.Len(); i++ {
		if v, ok := f.Node(NodeID(i)).Event.Stat(model.StatTypeSelectedGroupIDs); ok {
			first[i] = v.Str
		}
	}

	f.AnnotateSelectedGroups()

	for i := 0; i < f.Len(); i++ {
		v, ok := f.Node(NodeID(i)).Event.Stat(model.StatTypeSelectedGroupIDs)
		if !ok {
			if _, had := first[i]; had {
				t.Errorf("node %d lost annotation on re-run", i)
			}
			continue
		}
		if first[i] != v.Str {
			t.Errorf("node %d annotation changed: %q -> %q", i, first[i], v.Str)
		}
	}
}

func TestLoopIterationsOverrideLegacyRoots(t *testing.T) {
	trace := singleTimeline(
		ev("session", model.EventTypeSessionRun, 0, 1000),
		ev("exec", model.EventTypeExecutorState, 10, 100,
			model.StatTypeStepID, model.IntStat(1)),
		ev("exec", model.EventTypeExecutorState, 150, 100,
			model.StatTypeStepID, model.IntStat(2)),
	)
	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	// Each iteration roots its own group; the session event is not a root.
	meta := f.GroupMetadata()
	if len(meta) != 2 {
		t.Fatalf("groups = %d, want 2 (one per iteration)", len(meta))
	}
	if meta[0].Name != "Iteration 1" || meta[1].Name != "Iteration 2" {
		t.Errorf("group names = %q, %q; want Iteration 1, Iteration 2", meta[0].Name, meta[1].Name)
	}
}

func TestEagerOpMarking(t *testing.T) {
	trace := singleTimeline(
		ev("graphed", model.EventTypeOp, 20, 10),
		ev("exec", model.EventTypeExecutorState, 0, 100,
			model.StatTypeStepID, model.IntStat(1)),
		ev("eager", model.EventTypeOp, 200, 10),
	)
	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		switch n.Event.Name {
		case "graphed":
			if n.IsEager() {
				t.Error("op inside executor region must not be eager")
			}
		case "eager":
			if !n.IsEager() {
				t.Error("op outside any graph region must be eager")
			}
			if v, ok := n.Event.Stat(model.StatTypeIsEager); !ok || v.Int != 1 {
				t.Error("eager flag not persisted onto event")
			}
		}
	}
}

func TestEagerKernelMarking(t *testing.T) {
	trace := &model.Trace{Timelines: []*model.Timeline{
		{ID: 1, Name: "host", Events: []*model.Event{
			ev("op", model.EventTypeOp, 0, 50),
			ev("launch", model.EventTypeKernelLaunch, 10, 5,
				model.StatTypeCorrelationID, model.IntStat(11)),
		}},
		{ID: 2, Name: "gpu", Device: true, Events: []*model.Event{
			ev("kernel", model.EventTypeKernelExecute, 60, 20,
				model.StatTypeCorrelationID, model.IntStat(11)),
		}},
	}}
	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		if (n.Event.Name == "launch" || n.Event.Name == "kernel") && !n.IsEager() {
			t.Errorf("%s launched from eager op must be eager", n.Event.Name)
		}
	}
}

func TestWorkerMerge(t *testing.T) {
	trace := singleTimeline(
		ev("fn", model.EventTypeFunctionRun, 0, 50),
		ev("callback1", model.EventTypeOp, 60, 10),
		ev("callback2", model.EventTypeOp, 80, 10),
		ev("next_run", model.EventTypeSessionRun, 200, 50),
		ev("after_boundary", model.EventTypeOp, 260, 10),
	)
	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}

	var fnGroup int64 = -1
	for i := 0; i < f.Len(); i++ {
		if f.Node(NodeID(i)).Event.Name == "fn" {
			fnGroup = groupOf(t, f, NodeID(i))
		}
	}
	for i := 0; i < f.Len(); i++ {
		n := f.Node(NodeID(i))
		switch n.Event.Name {
		case "callback1", "callback2":
			if gid := groupOf(t, f, NodeID(i)); gid != fnGroup {
				t.Errorf("%s group = %d, want merged into %d", n.Event.Name, gid, fnGroup)
			}
		case "after_boundary":
			if gid, ok := n.GroupID(); ok && gid == fnGroup {
				t.Error("op past the next root boundary must not merge")
			}
		}
	}
}

func TestModelIDTagging(t *testing.T) {
	trace := singleTimeline(
		ev("run", model.EventTypeSessionRun, 0, 100,
			model.StatTypeModelID, model.StringStat("resnet50")),
	)
	f := mustForest(t, trace, DefaultOptions())
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	meta := f.GroupMetadata()
	if len(meta) != 1 || meta[0].ModelID != "resnet50" {
		t.Fatalf("model id not tagged: %+v", meta)
	}
}

func TestDataPipelineConnector(t *testing.T) {
	produce := ev("produce", model.EventTypeIteratorProduce, 0, 10,
		model.StatTypeProducerType, model.IntStat(int64(model.ContextKindIterator)),
		model.StatTypeProducerID, model.IntStat(42))
	consume := ev("consume", model.EventTypeIteratorGetNext, 20, 10,
		model.StatTypeConsumerType, model.IntStat(int64(model.ContextKindIterator)),
		model.StatTypeConsumerID, model.IntStat(42))
	trace := &model.Trace{Timelines: []*model.Timeline{
		{ID: 1, Events: []*model.Event{produce}},
		{ID: 2, Events: []*model.Event{consume}},
	}}

	// Invoked standalone, without the grouping pipeline.
	f := mustForest(t, trace, DefaultOptions())
	f.ConnectDataPipeline()

	var pID, cID NodeID = NoNode, NoNode
	for i := 0; i < f.Len(); i++ {
		switch f.Node(NodeID(i)).Event.Name {
		case "produce":
			pID = NodeID(i)
		case "consume":
			cID = NodeID(i)
		}
	}
	if len(f.Node(cID).Parents()) != 1 || f.Node(cID).Parents()[0] != pID {
		t.Fatalf("consume parents = %v, want [%d]", f.Node(cID).Parents(), pID)
	}
	if !f.Node(cID).IsAsync() {
		t.Error("context-connected consumer must be marked async")
	}
	if _, ok := f.Node(cID).GroupID(); ok {
		t.Error("standalone connector must not assign groups")
	}
}

func TestInvalidTraceFailsFast(t *testing.T) {
	trace := singleTimeline(ev("bad", model.EventTypeOp, 0, -5))
	if _, err := New(trace, DefaultOptions()); err == nil {
		t.Fatal("negative duration must be rejected before any pass runs")
	}
}

func TestInvalidRuleRejected(t *testing.T) {
	opts := DefaultOptions()
	opts.Rules = append(opts.Rules, rules.ConnectRule{
		ParentType: model.EventTypeOp,
		ChildType:  model.EventTypeOp,
		// stat lists of unequal length
		ParentStats: []model.StatType{model.StatTypeStepID},
	})
	trace := singleTimeline(ev("a", model.EventTypeOp, 0, 1))
	if _, err := New(trace, opts); err == nil {
		t.Fatal("malformed rule must be rejected")
	}
}
