package forest

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/errors"
	"github.com/traceflow/traceflow/pkg/rules"
)

// GroupMetadata describes one logical execution group.
type GroupMetadata struct {
	// Name is the group display name, derived from its root node.
	Name string

	// ModelID labels inference groups; empty otherwise.
	ModelID string

	// Parents and Children record cross-group reachability. The relation
	// is kept symmetric: a group appears in another's Parents iff the
	// other appears in its Children.
	Parents  map[int64]bool
	Children map[int64]bool
}

// GroupMetadataMap maps group id to its metadata.
type GroupMetadataMap map[int64]*GroupMetadata

// Options configures the grouping pipeline.
type Options struct {
	// Rules are the cross-timeline connect rules, evaluated in order.
	Rules []rules.ConnectRule

	// RootTypes are the event types treated as legacy group roots.
	RootTypes []model.EventType

	// LoopExecutorType is the event type scanned for loop iterations.
	LoopExecutorType model.EventType

	// FunctionRunType is the root type whose trailing eager ops are
	// merged into its group by the worker pass.
	FunctionRunType model.EventType

	// GraphRegionTypes are the ancestor event types that mark an op as
	// graph-executed rather than eager.
	GraphRegionTypes []model.EventType

	// DataPipelineKind is the context kind connected by the standalone
	// data-pipeline pass.
	DataPipelineKind model.ContextKind
}

// DefaultOptions returns the configuration used for ML-framework traces.
func DefaultOptions() Options {
	return Options{
		Rules:            rules.Defaults(),
		RootTypes:        rules.DefaultRootTypes(),
		LoopExecutorType: model.EventTypeExecutorState,
		FunctionRunType:  model.EventTypeFunctionRun,
		GraphRegionTypes: []model.EventType{
			model.EventTypeSessionRun,
			model.EventTypeRunGraph,
			model.EventTypeExecutorState,
		},
		DataPipelineKind: model.ContextKindIterator,
	}
}

// Forest owns the node arena built over one trace. It is not safe for
// concurrent use; the trace must not be mutated externally while a pass
// is running.
type Forest struct {
	trace *model.Trace
	opts  Options

	nodes  []Node
	byType map[model.EventType][]NodeID

	// timelineNodes holds each timeline's node ids sorted by start time,
	// keyed by timeline id.
	timelineNodes map[int64][]NodeID

	groups      GroupMetadataMap
	nextGroupID int64

	rootNodes []NodeID
	loopRoots []NodeID
}

// New validates the trace and builds the node arena. No edges exist yet;
// call GroupEvents to run the full pipeline, or ConnectDataPipeline alone
// to add pipeline-stage edges without grouping.
func New(trace *model.Trace, opts Options) (*Forest, error) {
	if err := trace.Validate(); err != nil {
		return nil, errors.InvalidTrace(err)
	}
	for i, r := range opts.Rules {
		if !r.Valid() {
			return nil, errors.InvalidRule(i, "event types must be set and stat lists equal length")
		}
	}

	f := &Forest{
		trace:         trace,
		opts:          opts,
		byType:        make(map[model.EventType][]NodeID),
		timelineNodes: make(map[int64][]NodeID),
		groups:        make(GroupMetadataMap),
	}
	f.createNodes()
	return f, nil
}

// createNodes wraps every event in a node. Timelines are walked in id
// order so node ids, and everything downstream of them, are reproducible.
func (f *Forest) createNodes() {
	f.nodes = make([]Node, 0, f.trace.EventCount())
	for _, tl := range f.trace.SortedTimelines() {
		ids := make([]NodeID, 0, len(tl.Events))
		for _, ev := range tl.Events {
			id := NodeID(len(f.nodes))
			f.nodes = append(f.nodes, Node{
				Event:    ev,
				Timeline: tl,
				groupID:  noGroup,
				producer: deriveContext(ev, model.StatTypeProducerType, model.StatTypeProducerID),
				consumer: deriveContext(ev, model.StatTypeConsumerType, model.StatTypeConsumerID),
			})
			f.byType[ev.Type] = append(f.byType[ev.Type], id)
			ids = append(ids, id)
		}
		sortByStart(f, ids)
		f.timelineNodes[tl.ID] = ids
	}
}

// deriveContext reads an optional (kind, id) context from a pair of stats.
func deriveContext(ev *model.Event, kindStat, idStat model.StatType) Context {
	kind, ok := ev.Stat(kindStat)
	if !ok {
		return Context{}
	}
	id, ok := ev.Stat(idStat)
	if !ok {
		return Context{}
	}
	return Context{Kind: model.ContextKind(kind.AsUint()), ID: id.AsUint()}
}

// Node returns the node with the given id. The pointer stays valid for the
// forest's lifetime; no pass ever removes a node.
func (f *Forest) Node(id NodeID) *Node { return &f.nodes[id] }

// Len returns the number of nodes in the arena.
func (f *Forest) Len() int { return len(f.nodes) }

// NodesByType returns the ids of all nodes of the given event type.
func (f *Forest) NodesByType(t model.EventType) []NodeID { return f.byType[t] }

// GroupMetadata returns the group metadata map. It is populated by
// GroupEvents and refined by the post passes; entries are never deleted.
func (f *Forest) GroupMetadata() GroupMetadataMap { return f.groups }

// AddChild links parent and child in both directions.
func (f *Forest) AddChild(parent, child NodeID) {
	f.nodes[parent].children = append(f.nodes[parent].children, child)
	f.nodes[child].parents = append(f.nodes[child].parents, parent)
}

// GroupEvents runs the full grouping pipeline: per-timeline nesting,
// cross-timeline connection, heuristic root and eager detection, group
// assignment, and the post passes that refine group metadata. Passes are
// strictly ordered; each may assume its predecessors completed.
func (f *Forest) GroupEvents(ctx context.Context) error {
	if err := f.nestAll(ctx); err != nil {
		return err
	}
	f.connectRules()
	f.connectContexts(model.ContextKindExecutor, model.ContextKindGPULaunch)
	f.detectLoopIterations()
	f.markEagerOps()
	f.markEagerKernels()
	f.assignGroups()
	f.mergeWorkerGroups()
	f.tagModelIDs()
	f.AnnotateSelectedGroups()
	return nil
}

// ConnectDataPipeline links producer/consumer iterator events without
// re-running nesting or grouping. It may be called after GroupEvents to
// enrich already-grouped nodes, or on a fresh forest when grouping is not
// needed.
func (f *Forest) ConnectDataPipeline() {
	f.connectContexts(f.opts.DataPipelineKind)
}

// nestAll runs the intra-timeline nester. Timelines are independent, so
// they nest in parallel; every cross-timeline pass runs strictly after.
func (f *Forest) nestAll(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, tl := range f.trace.SortedTimelines() {
		ids := f.timelineNodes[tl.ID]
		g.Go(func() error {
			f.nestTimeline(ids)
			return nil
		})
	}
	return g.Wait()
}

// sortByStart orders node ids by ascending start time, breaking ties by
// descending duration so an enclosing interval sorts before the
// zero-duration events at its boundary, then by id for stability.
func sortByStart(f *Forest, ids []NodeID) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := f.nodes[ids[i]].Event, f.nodes[ids[j]].Event
		if a.StartNs != b.StartNs {
			return a.StartNs < b.StartNs
		}
		if a.DurationNs != b.DurationNs {
			return a.DurationNs > b.DurationNs
		}
		return ids[i] < ids[j]
	})
}
