package index

import (
	"context"
	"testing"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/forest"
)

func groupedForest(t *testing.T) *forest.Forest {
	t.Helper()
	trace := &model.Trace{Timelines: []*model.Timeline{
		{ID: 1, Events: []*model.Event{
			{Name: "r1", Type: model.EventTypeSessionRun, StartNs: 0, DurationNs: 100},
			{Name: "op", Type: model.EventTypeOp, StartNs: 10, DurationNs: 5},
			{Name: "r2", Type: model.EventTypeSessionRun, StartNs: 200, DurationNs: 100},
			{Name: "orphan", Type: model.EventTypeMemcpy, StartNs: 500, DurationNs: 5},
		}},
	}}
	f, err := forest.New(trace, forest.DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.GroupEvents(context.Background()); err != nil {
		t.Fatalf("GroupEvents: %v", err)
	}
	return f
}

func TestBuildMembership(t *testing.T) {
	f := groupedForest(t)
	idx := Build(f)

	ids := idx.GroupIDs()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("group ids = %v", ids)
	}
	if got := idx.Cardinality(0); got != 2 {
		t.Errorf("group 0 cardinality = %d, want 2 (r1 + op)", got)
	}
	if got := idx.Cardinality(1); got != 1 {
		t.Errorf("group 1 cardinality = %d, want 1", got)
	}
}

func TestUnionAndUngrouped(t *testing.T) {
	f := groupedForest(t)
	idx := Build(f)

	if got := idx.Union(0, 1).GetCardinality(); got != 3 {
		t.Errorf("union cardinality = %d, want 3", got)
	}
	ungrouped := idx.Ungrouped()
	if got := ungrouped.GetCardinality(); got != 1 {
		t.Errorf("ungrouped = %d, want 1 (the orphan)", got)
	}
}

func TestContainsMissingGroup(t *testing.T) {
	idx := Build(groupedForest(t))
	if idx.Contains(99, 0) {
		t.Error("unknown group must contain nothing")
	}
	if idx.Cardinality(99) != 0 {
		t.Error("unknown group cardinality must be 0")
	}
}
