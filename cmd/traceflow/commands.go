package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/checkpoint"
	"github.com/traceflow/traceflow/pkg/config"
	"github.com/traceflow/traceflow/pkg/export"
	"github.com/traceflow/traceflow/pkg/forest"
	"github.com/traceflow/traceflow/pkg/index"
	"github.com/traceflow/traceflow/pkg/query"
	"github.com/traceflow/traceflow/pkg/rules"
	"github.com/traceflow/traceflow/pkg/storage/s3"
	"github.com/traceflow/traceflow/pkg/telemetry"
	"github.com/traceflow/traceflow/pkg/traceio"
	"github.com/traceflow/traceflow/pkg/tui"
	"github.com/traceflow/traceflow/pkg/watch"
	"github.com/traceflow/traceflow/pkg/writer"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig() (*config.Config, error) {
	mgr := config.NewManager()
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	return mgr.Get(), nil
}

// loadTrace opens a local or s3:// trace path.
func loadTrace(ctx context.Context, path string, cfg *config.Config) (*model.Trace, error) {
	opts := traceio.Options{Progress: progress}
	if s3.IsURI(path) {
		s3cfg := s3.DefaultConfig(cfg.S3.Region)
		s3cfg.Endpoint = cfg.S3.Endpoint
		client, err := s3.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		opts.S3 = client
	}
	return traceio.Load(ctx, path, opts)
}

// groupingOptions resolves pipeline options from flags and config.
func groupingOptions(cfg *config.Config) (forest.Options, error) {
	opts := forest.DefaultOptions()

	path := rulesFile
	if path == "" {
		path = cfg.Grouping.RulesFile
	}
	if path != "" {
		connectRules, roots, err := rules.LoadFile(path)
		if err != nil {
			return opts, err
		}
		opts.Rules = connectRules
		if len(roots) > 0 {
			opts.RootTypes = roots
		}
	}

	names := rootsFlag
	if len(names) == 0 {
		names = cfg.Grouping.Roots
	}
	if len(names) > 0 {
		types := make([]model.EventType, 0, len(names))
		for _, name := range names {
			t, ok := model.ParseEventType(name)
			if !ok {
				return opts, fmt.Errorf("unknown root event type: %s", name)
			}
			types = append(types, t)
		}
		opts.RootTypes = types
	}

	return opts, nil
}

func defaultOutputPath(input string) string {
	base := strings.TrimSuffix(input, ".gz")
	base = strings.TrimSuffix(base, ".json")
	return base + ".grouped.json"
}

func runGroup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		otlp := telemetry.DefaultOTLPConfig()
		otlp.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			otlp.Endpoint = cfg.Telemetry.Endpoint
		}
		shutdown, err := telemetry.NewExporter(otlp).Init(ctx)
		if err != nil {
			return fmt.Errorf("telemetry init failed: %w", err)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			shutdown(flushCtx)
		}()
	}

	tracePath := args[0]
	f, err := groupTrace(ctx, tracePath, cfg)
	if err != nil {
		tui.PrintError(err)
		return err
	}

	if verbose {
		tui.PrintGroupSummary(f.GroupMetadata(), index.Build(f))
	}
	return nil
}

// groupTrace runs the full pipeline over one trace and writes the
// requested outputs. Shared by the group command and the watch loop.
func groupTrace(ctx context.Context, tracePath string, cfg *config.Config) (*forest.Forest, error) {
	ctx, span, runID := telemetry.StartRun(ctx, tracePath)
	defer span.End()

	if verbose {
		fmt.Printf("  run %s\n", runID)
	}

	loadCtx, loadSpan := telemetry.StartPass(ctx, "load")
	trace, err := loadTrace(loadCtx, tracePath, cfg)
	loadSpan.End()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	opts, err := groupingOptions(cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	groupCtx, groupSpan := telemetry.StartPass(ctx, "group")
	f, err := forest.New(trace, opts)
	if err != nil {
		groupSpan.End()
		return nil, err
	}
	err = f.GroupEvents(groupCtx)
	groupSpan.SetAttributes(
		attribute.Int("traceflow.events", trace.EventCount()),
		attribute.Int("traceflow.groups", len(f.GroupMetadata())),
	)
	groupSpan.End()
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	elapsed := time.Since(start)

	_, writeSpan := telemetry.StartPass(ctx, "write")
	defer writeSpan.End()

	out := outputFile
	if out == "" {
		out = defaultOutputPath(tracePath)
	}
	if err := traceio.Save(out, trace); err != nil {
		return nil, err
	}

	if parquetFile != "" {
		if err := writeParquet(trace, cfg); err != nil {
			return nil, err
		}
	}
	if reportFile != "" {
		if err := export.WriteFile(reportFile, f.GroupMetadata()); err != nil {
			return nil, err
		}
	}

	tui.PrintRunReport(&tui.RunReport{
		Events:   int64(trace.EventCount()),
		Groups:   len(f.GroupMetadata()),
		Duration: elapsed,
		Output:   out,
	})

	return f, nil
}

func writeParquet(trace *model.Trace, cfg *config.Config) error {
	f, err := os.Create(parquetFile)
	if err != nil {
		return err
	}

	wcfg := writer.DefaultConfig()
	if cfg.Export.BatchSize > 0 {
		wcfg.BatchSize = cfg.Export.BatchSize
	}
	compression := compressionFlag
	if compression == "" {
		compression = cfg.Export.Compression
	}
	if compression != "" {
		wcfg.Compression = writer.ParseCompression(compression)
	}

	pw, err := writer.NewParquetWriter(f, wcfg)
	if err != nil {
		f.Close()
		return err
	}
	if err := pw.WriteTrace(trace); err != nil {
		pw.Close()
		f.Close()
		return err
	}
	if err := pw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	trace, err := loadTrace(ctx, args[0], cfg)
	if err != nil {
		return err
	}

	tui.PrintHeader(version)
	tui.PrintTraceSummary(trace)
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	trace, err := loadTrace(ctx, args[0], cfg)
	if err != nil {
		return err
	}

	f, err := forest.New(trace, forest.DefaultOptions())
	if err != nil {
		return err
	}
	f.ConnectDataPipeline()

	connected := 0
	for id := 0; id < f.Len(); id++ {
		if f.Node(forest.NodeID(id)).IsAsync() {
			connected++
		}
	}
	fmt.Printf("Connected %d consumer events to data-pipeline producers\n", connected)

	if outputFile != "" {
		return traceio.Save(outputFile, trace)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := query.NewEngine(query.Config{
		MemoryLimit: cfg.Query.MemoryLimit,
		Threads:     cfg.Query.Threads,
		TempDir:     cfg.Query.TempDir,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.RegisterEvents(ctx, args[0]); err != nil {
		return err
	}

	var result *query.Result
	switch {
	case slowestN > 0:
		result, err = engine.SlowestGroups(ctx, slowestN)
	case groupDurations:
		result, err = engine.GroupDurations(ctx)
	case eagerTime:
		result, err = engine.EagerTime(ctx)
	case len(args) == 2:
		result, err = engine.Query(ctx, args[1])
	default:
		return fmt.Errorf("supply a SQL statement or one of --slowest, --group-durations, --eager")
	}
	if err != nil {
		return err
	}
	defer result.Close()

	return printResult(result)
}

func printResult(result *query.Result) error {
	cols := result.Columns()
	fmt.Println(strings.Join(cols, "\t"))

	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for result.Next() {
		if err := result.Scan(ptrs...); err != nil {
			return err
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				parts[i] = string(b)
			} else {
				parts[i] = fmt.Sprintf("%v", v)
			}
		}
		fmt.Println(strings.Join(parts, "\t"))
	}

	fmt.Printf("(%d rows in %s)\n", result.RowCount(), result.Duration().Round(time.Millisecond))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := checkpointStore(ctx, cfg)
	if err != nil {
		return err
	}

	watcher, err := watch.NewWatcher(store, cfg.Watch.Interval)
	if err != nil {
		return err
	}
	defer watcher.Close()

	watcher.OnTrace = func(path string) (int, error) {
		f, err := groupTrace(ctx, path, cfg)
		if err != nil {
			return 0, err
		}
		return len(f.GroupMetadata()), nil
	}
	watcher.OnError = func(path string, err error) {
		tui.PrintError(fmt.Errorf("%s: %w", path, err))
	}
	watcher.OnSkip = tui.PrintSkip

	for _, path := range args {
		if err := watcher.Watch(path); err != nil {
			return err
		}
	}

	tui.PrintHeader(version)
	fmt.Printf("Watching %s\n", strings.Join(args, ", "))

	watcher.ProcessAll(ctx)
	err = watcher.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// checkpointStore builds the configured checkpoint backend.
func checkpointStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, error) {
	backend := watchBackend
	if backend == "" {
		backend = cfg.Watch.Checkpoint
	}

	switch backend {
	case "redis":
		rcfg := checkpoint.DefaultRedisConfig(cfg.Watch.RedisAddress)
		return checkpoint.NewRedisStore(ctx, rcfg)
	case "", "file":
		dir := cfg.Watch.CheckpointDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dir = home + "/.traceflow/checkpoints"
		}
		return checkpoint.NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", backend)
	}
}
