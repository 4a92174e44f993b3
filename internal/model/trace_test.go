package model

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		trace   *Trace
		wantErr bool
	}{
		{
			name: "valid",
			trace: &Trace{Timelines: []*Timeline{
				{ID: 1, Events: []*Event{{Name: "a", StartNs: 0, DurationNs: 10}}},
			}},
		},
		{
			name: "duplicate timeline id",
			trace: &Trace{Timelines: []*Timeline{
				{ID: 1}, {ID: 1},
			}},
			wantErr: true,
		},
		{
			name: "negative duration",
			trace: &Trace{Timelines: []*Timeline{
				{ID: 1, Events: []*Event{{Name: "a", DurationNs: -1}}},
			}},
			wantErr: true,
		},
		{
			name: "nil event",
			trace: &Trace{Timelines: []*Timeline{
				{ID: 1, Events: []*Event{nil}},
			}},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.trace.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestStatValueString(t *testing.T) {
	cases := []struct {
		v    StatValue
		want string
	}{
		{IntStat(-3), "-3"},
		{UintStat(7), "7"},
		{FloatStat(1.5), "1.5"},
		{StringStat("x"), "x"},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestSetStatAllocatesLazily(t *testing.T) {
	e := &Event{Name: "a"}
	e.SetStat(StatTypeGroupID, IntStat(4))
	if v, ok := e.Stat(StatTypeGroupID); !ok || v.Int != 4 {
		t.Fatalf("Stat() = %v, %v", v, ok)
	}
}

func TestParseTypes(t *testing.T) {
	if tt, ok := ParseEventType("KernelLaunch"); !ok || tt != EventTypeKernelLaunch {
		t.Errorf("ParseEventType(KernelLaunch) = %v, %v", tt, ok)
	}
	if _, ok := ParseEventType("Nope"); ok {
		t.Error("unknown event type should not parse")
	}
	if st, ok := ParseStatType("correlation_id"); !ok || st != StatTypeCorrelationID {
		t.Errorf("ParseStatType(correlation_id) = %v, %v", st, ok)
	}
}
