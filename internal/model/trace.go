package model

import (
	"fmt"
	"sort"
	"strconv"
)

// StatKind indicates the value variant held by a StatValue.
type StatKind uint8

const (
	StatKindInt StatKind = iota
	StatKindUint
	StatKindFloat
	StatKindString
)

// StatValue is a typed stat value. Exactly one variant is meaningful,
// selected by Kind.
type StatValue struct {
	Kind  StatKind
	Int   int64
	Uint  uint64
	Float float64
	Str   string
}

// IntStat returns a StatValue holding an int64.
func IntStat(v int64) StatValue { return StatValue{Kind: StatKindInt, Int: v} }

// UintStat returns a StatValue holding a uint64.
func UintStat(v uint64) StatValue { return StatValue{Kind: StatKindUint, Uint: v} }

// FloatStat returns a StatValue holding a float64.
func FloatStat(v float64) StatValue { return StatValue{Kind: StatKindFloat, Float: v} }

// StringStat returns a StatValue holding a string.
func StringStat(v string) StatValue { return StatValue{Kind: StatKindString, Str: v} }

// AsUint coerces the value to uint64 for use as a join key.
func (v StatValue) AsUint() uint64 {
	switch v.Kind {
	case StatKindUint:
		return v.Uint
	case StatKindInt:
		return uint64(v.Int)
	case StatKindFloat:
		return uint64(v.Float)
	default:
		u, _ := strconv.ParseUint(v.Str, 10, 64)
		return u
	}
}

// String renders the value for join keys and display.
func (v StatValue) String() string {
	switch v.Kind {
	case StatKindInt:
		return strconv.FormatInt(v.Int, 10)
	case StatKindUint:
		return strconv.FormatUint(v.Uint, 10)
	case StatKindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Event is one time-ranged occurrence on a timeline.
// Timestamps are int64 nanoseconds relative to the trace start.
type Event struct {
	// Name is the display name of the event.
	Name string

	// Type is the resolved semantic event type.
	Type EventType

	// StartNs is the start timestamp in nanoseconds.
	StartNs int64

	// DurationNs is the event duration in nanoseconds. Zero is valid
	// (instantaneous marker events).
	DurationNs int64

	// Stats holds the typed metadata attached to this event.
	Stats map[StatType]StatValue
}

// EndNs returns the exclusive end timestamp of the event.
func (e *Event) EndNs() int64 { return e.StartNs + e.DurationNs }

// Stat looks up a stat by type.
func (e *Event) Stat(t StatType) (StatValue, bool) {
	v, ok := e.Stats[t]
	return v, ok
}

// SetStat adds or replaces a stat on the event. This is the mutation hook
// the grouping pipeline uses to persist its annotations.
func (e *Event) SetStat(t StatType, v StatValue) {
	if e.Stats == nil {
		e.Stats = make(map[StatType]StatValue, 4)
	}
	e.Stats[t] = v
}

// Timeline is the sequence of events captured on one thread or device.
// Events are not necessarily sorted by start time.
type Timeline struct {
	// ID uniquely identifies the timeline within its trace.
	ID int64

	// Name is the thread/device display name.
	Name string

	// Device is true for accelerator timelines.
	Device bool

	// Events holds the timeline's events in capture order.
	Events []*Event
}

// Trace is one complete captured execution record.
type Trace struct {
	Name      string
	Timelines []*Timeline
}

// Validate checks structural preconditions before any pipeline pass runs.
// A trace that fails validation is rejected outright, never repaired.
func (t *Trace) Validate() error {
	if t == nil {
		return fmt.Errorf("trace is nil")
	}
	seen := make(map[int64]bool, len(t.Timelines))
	for i, tl := range t.Timelines {
		if tl == nil {
			return fmt.Errorf("timeline %d is nil", i)
		}
		if seen[tl.ID] {
			return fmt.Errorf("duplicate timeline id %d", tl.ID)
		}
		seen[tl.ID] = true
		for j, ev := range tl.Events {
			if ev == nil {
				return fmt.Errorf("timeline %d (%q): event %d is nil", tl.ID, tl.Name, j)
			}
			if ev.DurationNs < 0 {
				return fmt.Errorf("timeline %d (%q): event %q has negative duration %d",
					tl.ID, tl.Name, ev.Name, ev.DurationNs)
			}
		}
	}
	return nil
}

// EventCount returns the total number of events across all timelines.
func (t *Trace) EventCount() int {
	n := 0
	for _, tl := range t.Timelines {
		n += len(tl.Events)
	}
	return n
}

// SortedTimelines returns the timelines ordered by id. Passes that must be
// deterministic iterate timelines through this instead of map order.
func (t *Trace) SortedTimelines() []*Timeline {
	out := make([]*Timeline, len(t.Timelines))
	copy(out, t.Timelines)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
