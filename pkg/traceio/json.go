// Package traceio reads and writes captured traces in TraceFlow's JSON
// interchange format. Readers transparently handle gzip compression and
// s3:// sources.
package traceio

import (
	"encoding/json"
	"io"
	"math"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/errors"
)

// jsonTrace is the wire shape of a trace file.
type jsonTrace struct {
	Name      string         `json:"name,omitempty"`
	Timelines []jsonTimeline `json:"timelines"`
}

type jsonTimeline struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name,omitempty"`
	Device bool        `json:"device,omitempty"`
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	Name    string                     `json:"name"`
	Type    string                     `json:"type,omitempty"`
	StartNs int64                      `json:"start_ns"`
	DurNs   int64                      `json:"dur_ns"`
	Stats   map[string]json.RawMessage `json:"stats,omitempty"`
}

// ReadTrace decodes a trace from JSON. Unknown event or stat type names
// are preserved as untyped, not rejected; the grouping pipeline simply
// never matches them.
func ReadTrace(r io.Reader) (*model.Trace, error) {
	var jt jsonTrace
	dec := json.NewDecoder(r)
	if err := dec.Decode(&jt); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "cannot decode trace json")
	}

	trace := &model.Trace{Name: jt.Name}
	for _, jtl := range jt.Timelines {
		tl := &model.Timeline{ID: jtl.ID, Name: jtl.Name, Device: jtl.Device}
		for _, je := range jtl.Events {
			ev := &model.Event{
				Name:       je.Name,
				StartNs:    je.StartNs,
				DurationNs: je.DurNs,
			}
			if t, ok := model.ParseEventType(je.Type); ok {
				ev.Type = t
			}
			for name, raw := range je.Stats {
				st, ok := model.ParseStatType(name)
				if !ok {
					continue
				}
				v, err := decodeStat(raw)
				if err != nil {
					return nil, errors.Wrap(err, errors.CodeInvalidFormat, "bad stat value").
						WithContext("stat", name).
						WithContext("event", je.Name)
				}
				ev.SetStat(st, v)
			}
			tl.Events = append(tl.Events, ev)
		}
		trace.Timelines = append(trace.Timelines, tl)
	}
	return trace, nil
}

// decodeStat maps a JSON scalar to a typed stat value: strings stay
// strings, integral numbers become ints, everything else floats.
func decodeStat(raw json.RawMessage) (model.StatValue, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return model.StringStat(s), nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.StatValue{}, err
	}
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return model.IntStat(int64(f)), nil
	}
	return model.FloatStat(f), nil
}

// WriteTrace encodes the trace, including any annotations the pipeline
// persisted onto its events, as indented JSON.
func WriteTrace(w io.Writer, trace *model.Trace) error {
	jt := jsonTrace{Name: trace.Name}
	for _, tl := range trace.SortedTimelines() {
		jtl := jsonTimeline{ID: tl.ID, Name: tl.Name, Device: tl.Device}
		for _, ev := range tl.Events {
			je := jsonEvent{
				Name:    ev.Name,
				Type:    ev.Type.String(),
				StartNs: ev.StartNs,
				DurNs:   ev.DurationNs,
			}
			if len(ev.Stats) > 0 {
				je.Stats = make(map[string]json.RawMessage, len(ev.Stats))
				for st, v := range ev.Stats {
					je.Stats[st.String()] = encodeStat(v)
				}
			}
			jtl.Events = append(jtl.Events, je)
		}
		jt.Timelines = append(jt.Timelines, jtl)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jt); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "cannot encode trace json")
	}
	return nil
}

func encodeStat(v model.StatValue) json.RawMessage {
	var out []byte
	switch v.Kind {
	case model.StatKindString:
		out, _ = json.Marshal(v.Str)
	case model.StatKindFloat:
		out, _ = json.Marshal(v.Float)
	case model.StatKindUint:
		out, _ = json.Marshal(v.Uint)
	default:
		out, _ = json.Marshal(v.Int)
	}
	return out
}
