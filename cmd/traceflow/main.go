// TraceFlow - Causal grouping for trace events
// Groups related events across timelines into steps and annotates the
// trace for downstream analysis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	outputFile      string
	parquetFile     string
	reportFile      string
	rulesFile       string
	rootsFlag       []string
	compressionFlag string
	verbose         bool
	progress        bool

	// Query flags
	slowestN       int
	groupDurations bool
	eagerTime      bool

	// Watch flags
	watchBackend string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "traceflow",
	Short: "TraceFlow - Group trace events into causally related steps",
	Long: `TraceFlow reads a trace (JSON, optionally gzipped, local or s3://),
nests events within each timeline, connects related events across
timelines, and assigns every connected component a group id.

Examples:
  traceflow group trace.json
  traceflow group trace.json.gz -o grouped.json --parquet events.parquet
  traceflow inspect s3://bucket/run42/trace.json
  traceflow query events.parquet --slowest 10
  traceflow watch ./traces`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var groupCmd = &cobra.Command{
	Use:   "group [trace-file]",
	Short: "Run the grouping pipeline over a trace",
	Long: `Run the full grouping pipeline: nest events per timeline, connect
across timelines by rule and by producer/consumer context, detect loop
iterations, mark eager execution, and assign group ids.

The annotated trace is written as JSON; --parquet and --report add
columnar and tabular outputs.

Examples:
  traceflow group trace.json
  traceflow group trace.json -o grouped.json --report groups.xlsx
  traceflow group s3://bucket/run/trace.json.gz --parquet events.parquet`,
	Args: cobra.ExactArgs(1),
	RunE: runGroup,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [trace-file]",
	Short: "Display a summary of a trace file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var connectCmd = &cobra.Command{
	Use:   "connect [trace-file]",
	Short: "Connect data-pipeline producers and consumers only",
	Long: `Run only the data-pipeline connector: iterator events carrying
producer stats are joined to the consumer events that carry the
matching context, without assigning any group ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var queryCmd = &cobra.Command{
	Use:   "query [parquet-file] [sql]",
	Short: "Query a Parquet trace export with SQL",
	Long: `Run SQL over a Parquet export using DuckDB. The export is exposed
as a view named "events".

Examples:
  traceflow query events.parquet "SELECT count(*) FROM events"
  traceflow query events.parquet --group-durations
  traceflow query events.parquet --slowest 10
  traceflow query events.parquet --eager`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQuery,
}

var watchCmd = &cobra.Command{
	Use:   "watch [path...]",
	Short: "Watch trace files and regroup on change",
	Long: `Watch trace files or directories and re-run the grouping pipeline
whenever a trace changes. Traces whose content fingerprint matches a
previous run are skipped via the checkpoint store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("traceflow %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	groupCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Annotated trace output path (default: <input>.grouped.json)")
	groupCmd.Flags().StringVar(&parquetFile, "parquet", "", "Also write a Parquet event export")
	groupCmd.Flags().StringVar(&reportFile, "report", "", "Also write a group report (.json, .csv, .xlsx)")
	groupCmd.Flags().StringVar(&rulesFile, "rules", "", "YAML connect-rule file (default: built-in rules)")
	groupCmd.Flags().StringArrayVar(&rootsFlag, "root", nil, "Root event type (repeatable, overrides defaults)")
	groupCmd.Flags().StringVar(&compressionFlag, "compression", "", "Parquet compression (none, snappy, gzip, zstd, lz4)")
	groupCmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar while loading")

	connectCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Annotated trace output path")

	queryCmd.Flags().IntVar(&slowestN, "slowest", 0, "Show the N slowest groups")
	queryCmd.Flags().BoolVar(&groupDurations, "group-durations", false, "Show total duration per group")
	queryCmd.Flags().BoolVar(&eagerTime, "eager", false, "Show eager vs graph execution time")

	watchCmd.Flags().StringVar(&watchBackend, "checkpoint", "", "Checkpoint backend (file, redis; default from config)")

	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}
