package traceio

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/traceflow/traceflow/internal/model"
)

const sampleJSON = `{
  "name": "train",
  "timelines": [
    {
      "id": 1,
      "name": "main",
      "events": [
        {"name": "run", "type": "SessionRun", "start_ns": 0, "dur_ns": 100,
         "stats": {"step_id": 3, "model_id": "bert", "unknown_stat": 1}},
        {"name": "op", "type": "Op", "start_ns": 10, "dur_ns": 5}
      ]
    },
    {"id": 2, "name": "gpu", "device": true, "events": []}
  ]
}`

func TestReadTrace(t *testing.T) {
	trace, err := ReadTrace(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if trace.Name != "train" || len(trace.Timelines) != 2 {
		t.Fatalf("trace = %q with %d timelines", trace.Name, len(trace.Timelines))
	}

	run := trace.Timelines[0].Events[0]
	if run.Type != model.EventTypeSessionRun {
		t.Errorf("run type = %v", run.Type)
	}
	if v, ok := run.Stat(model.StatTypeStepID); !ok || v.Int != 3 {
		t.Errorf("step_id = %v, %v", v, ok)
	}
	if v, ok := run.Stat(model.StatTypeModelID); !ok || v.Str != "bert" {
		t.Errorf("model_id = %v, %v", v, ok)
	}
	// Unknown stat names are dropped, not errors.
	if len(run.Stats) != 2 {
		t.Errorf("stats = %d, want 2", len(run.Stats))
	}
	if !trace.Timelines[1].Device {
		t.Error("device flag lost")
	}
}

func TestReadTraceRejectsGarbage(t *testing.T) {
	if _, err := ReadTrace(strings.NewReader("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRoundTrip(t *testing.T) {
	trace, err := ReadTrace(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	trace.Timelines[0].Events[0].SetStat(model.StatTypeGroupID, model.IntStat(0))

	var buf bytes.Buffer
	if err := WriteTrace(&buf, trace); err != nil {
		t.Fatalf("WriteTrace: %v", err)
	}
	back, err := ReadTrace(&buf)
	if err != nil {
		t.Fatalf("ReadTrace(round trip): %v", err)
	}

	ev := back.Timelines[0].Events[0]
	if v, ok := ev.Stat(model.StatTypeGroupID); !ok || v.Int != 0 {
		t.Errorf("group_id lost in round trip: %v, %v", v, ok)
	}
	if ev.Type != model.EventTypeSessionRun {
		t.Errorf("event type lost in round trip: %v", ev.Type)
	}
}

func TestLoadAndSaveGzip(t *testing.T) {
	trace, err := ReadTrace(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}

	path := filepath.Join(t.TempDir(), "trace.json.gz")
	if err := Save(path, trace); err != nil {
		t.Fatalf("Save: %v", err)
	}

	back, err := Load(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.EventCount() != trace.EventCount() {
		t.Errorf("event count = %d, want %d", back.EventCount(), trace.EventCount())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"), Options{}); err == nil {
		t.Fatal("expected file not found")
	}
}
