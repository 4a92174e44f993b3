package tui

import (
	"context"
	"strings"
	"testing"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/forest"
	"github.com/traceflow/traceflow/pkg/index"
)

func summaryForest(t *testing.T) *forest.Forest {
	t.Helper()
	trace := &model.Trace{Timelines: []*model.Timeline{
		{ID: 1, Events: []*model.Event{
			{Name: "fn", Type: model.EventTypeFunctionRun, StartNs: 0, DurationNs: 10},
			{Name: "callback", Type: model.EventTypeOp, StartNs: 20, DurationNs: 5},
			{Name: "session", Type: model.EventTypeSessionRun, StartNs: 100, DurationNs: 50},
			{Name: "op", Type: model.EventTypeOp, StartNs: 110, DurationNs: 5},
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

func TestMembershipSummaryCounts(t *testing.T) {
	idx := index.Build(summaryForest(t))

	// Group 0: the function run plus the trailing eager callback the
	// worker pass folded in.
	got := membershipSummary(0, idx)
	if !strings.Contains(got, "events=2") {
		t.Errorf("group 0 summary = %q, want events=2", got)
	}
	if !strings.Contains(got, "eager=1") {
		t.Errorf("group 0 summary = %q, want eager=1", got)
	}

	// Group 1: session run and its nested graph op, nothing eager.
	got = membershipSummary(1, idx)
	if !strings.Contains(got, "events=2") {
		t.Errorf("group 1 summary = %q, want events=2", got)
	}
	if strings.Contains(got, "eager") {
		t.Errorf("group 1 summary = %q, must not report eager events", got)
	}
}
