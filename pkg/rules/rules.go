// Package rules defines the declarative connect rules that stitch causally
// related events across timelines, plus the built-in rule set for
// ML-framework traces and YAML loading of user-supplied rule files.
package rules

import (
	"github.com/traceflow/traceflow/internal/model"
)

// ConnectRule declares that events of ParentType connect as parents of
// events of ChildType when the stat values looked up by ParentStats on the
// parent side equal, position by position, the values looked up by
// ChildStats on the child side.
//
// Rules are evaluated independently and in list order; later rules add
// parents without removing those established by earlier rules. An event
// missing any stat a rule requires is excluded from that rule's matching.
type ConnectRule struct {
	ParentType  model.EventType
	ChildType   model.EventType
	ParentStats []model.StatType
	ChildStats  []model.StatType
}

// Valid reports whether the rule is well formed: both event types set and
// stat lists non-empty and of equal length.
func (r ConnectRule) Valid() bool {
	return r.ParentType != model.EventTypeUnknown &&
		r.ChildType != model.EventTypeUnknown &&
		len(r.ParentStats) > 0 &&
		len(r.ParentStats) == len(r.ChildStats)
}

// Defaults returns the built-in connect rules for ML-framework traces.
// Order matters: step-scoped joins run before correlation joins so that a
// child reached by both acquires its host-side parent first.
func Defaults() []ConnectRule {
	return []ConnectRule{
		// Host executor step launches graph execution on another thread.
		{
			ParentType:  model.EventTypeExecutorState,
			ChildType:   model.EventTypeRunGraph,
			ParentStats: []model.StatType{model.StatTypeStepID},
			ChildStats:  []model.StatType{model.StatTypeStepID},
		},
		// A traced function dispatches work identified by its own step id.
		{
			ParentType:  model.EventTypeFunctionRun,
			ChildType:   model.EventTypeExecutorState,
			ParentStats: []model.StatType{model.StatTypeStepID},
			ChildStats:  []model.StatType{model.StatTypeFunctionStepID},
		},
		// Host op launches a device kernel, matched by correlation id.
		{
			ParentType:  model.EventTypeKernelLaunch,
			ChildType:   model.EventTypeKernelExecute,
			ParentStats: []model.StatType{model.StatTypeCorrelationID},
			ChildStats:  []model.StatType{model.StatTypeCorrelationID},
		},
		// Host op initiates a device memcpy, matched by correlation id.
		{
			ParentType:  model.EventTypeKernelLaunch,
			ChildType:   model.EventTypeMemcpy,
			ParentStats: []model.StatType{model.StatTypeCorrelationID},
			ChildStats:  []model.StatType{model.StatTypeCorrelationID},
		},
	}
}

// DefaultRootTypes returns the event types treated as legacy group roots
// when no loop iterations are detected.
func DefaultRootTypes() []model.EventType {
	return []model.EventType{
		model.EventTypeTraceContext,
		model.EventTypeSessionRun,
		model.EventTypeFunctionRun,
	}
}
