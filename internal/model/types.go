// Package model defines the in-memory trace representation for TraceFlow.
package model

// EventType identifies the semantic kind of an event. Raw traces carry
// opaque identifiers; the capture-side typing layer resolves them to these
// stable values before grouping runs.
type EventType int64

const (
	EventTypeUnknown EventType = iota

	// Host-side execution events.
	EventTypeTraceContext
	EventTypeSessionRun
	EventTypeFunctionRun
	EventTypeRunGraph
	EventTypeExecutorState // one scheduling step of the host executor loop
	EventTypeOp            // a single host op execution

	// Device-side events.
	EventTypeKernelLaunch
	EventTypeKernelExecute
	EventTypeMemcpy

	// Data pipeline events.
	EventTypeIteratorGetNext
	EventTypeIteratorProduce
)

// StatType identifies the semantic kind of a stat attached to an event.
type StatType int64

const (
	StatTypeUnknown StatType = iota

	// Join keys used by connect rules and context derivation.
	StatTypeStepID
	StatTypeCorrelationID
	StatTypeFunctionStepID
	StatTypeProducerType
	StatTypeProducerID
	StatTypeConsumerType
	StatTypeConsumerID
	StatTypeIteratorID

	// Annotations written back by the grouping pipeline.
	StatTypeGroupID
	StatTypeGroupName
	StatTypeStepName
	StatTypeIsEager
	StatTypeSelectedGroupIDs
	StatTypeModelID

	// Informational.
	StatTypeIsRoot
	StatTypeDeviceID
)

// ContextKind distinguishes the correlation namespaces used when stitching
// producer events to consumer events across timelines. A closed enumeration;
// (kind, id) pairs from different kinds never match.
type ContextKind int

const (
	ContextKindNone ContextKind = iota
	ContextKindExecutor
	ContextKindGPULaunch
	ContextKindIterator
)

var eventTypeNames = map[EventType]string{
	EventTypeUnknown:         "Unknown",
	EventTypeTraceContext:    "TraceContext",
	EventTypeSessionRun:      "SessionRun",
	EventTypeFunctionRun:     "FunctionRun",
	EventTypeRunGraph:        "RunGraph",
	EventTypeExecutorState:   "ExecutorState",
	EventTypeOp:              "Op",
	EventTypeKernelLaunch:    "KernelLaunch",
	EventTypeKernelExecute:   "KernelExecute",
	EventTypeMemcpy:          "Memcpy",
	EventTypeIteratorGetNext: "IteratorGetNext",
	EventTypeIteratorProduce: "IteratorProduce",
}

// String returns the canonical name of the event type.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

var statTypeNames = map[StatType]string{
	StatTypeUnknown:          "unknown",
	StatTypeStepID:           "step_id",
	StatTypeCorrelationID:    "correlation_id",
	StatTypeFunctionStepID:   "function_step_id",
	StatTypeProducerType:     "producer_type",
	StatTypeProducerID:       "producer_id",
	StatTypeConsumerType:     "consumer_type",
	StatTypeConsumerID:       "consumer_id",
	StatTypeIteratorID:       "iterator_id",
	StatTypeGroupID:          "group_id",
	StatTypeGroupName:        "group_name",
	StatTypeStepName:         "step_name",
	StatTypeIsEager:          "is_eager",
	StatTypeSelectedGroupIDs: "selected_group_ids",
	StatTypeModelID:          "model_id",
	StatTypeIsRoot:           "is_root",
	StatTypeDeviceID:         "device_id",
}

// String returns the canonical name of the stat type.
func (t StatType) String() string {
	if name, ok := statTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
