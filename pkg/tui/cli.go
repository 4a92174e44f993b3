// Package tui renders terminal output for the traceflow CLI.
// Simple, streaming, no complex TUI - just clean styled output.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/traceflow/traceflow/internal/model"
	"github.com/traceflow/traceflow/pkg/forest"
	"github.com/traceflow/traceflow/pkg/index"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the traceflow banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  TRACEFLOW") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Causal grouping for trace events"))
	fmt.Println()
}

// PrintTraceSummary prints per-timeline counts for a loaded trace.
func PrintTraceSummary(trace *model.Trace) {
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Timelines:"), titleStyle.Render(fmt.Sprintf("%d", len(trace.Timelines))))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Events:"), titleStyle.Render(formatNumber(int64(trace.EventCount()))))
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))

	for _, tl := range trace.SortedTimelines() {
		label := tl.Name
		if label == "" {
			label = fmt.Sprintf("timeline %d", tl.ID)
		}
		if tl.Device {
			label += mutedStyle.Render(" (device)")
		}
		fmt.Printf("  %s %s\n", label, mutedStyle.Render(fmt.Sprintf("%d events", len(tl.Events))))
	}
}

// PrintGroupSummary prints one line per group, parents/children included.
// A non-nil membership index adds per-group cardinality and eager counts
// plus the number of events no group claimed.
func PrintGroupSummary(groups forest.GroupMetadataMap, idx *index.GroupIndex) {
	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Println()
	fmt.Println(accentStyle.Render(fmt.Sprintf("▸ %d GROUPS", len(ids))))
	for _, id := range ids {
		meta := groups[id]
		line := fmt.Sprintf("  %s %s", mutedStyle.Render(fmt.Sprintf("[%d]", id)), titleStyle.Render(meta.Name))
		if meta.ModelID != "" {
			line += mutedStyle.Render(" model=" + meta.ModelID)
		}
		if idx != nil {
			line += mutedStyle.Render(" " + membershipSummary(id, idx))
		}
		if rel := renderRelations(meta); rel != "" {
			line += mutedStyle.Render(" " + rel)
		}
		fmt.Println(line)
	}
	if idx != nil {
		if n := idx.Ungrouped().GetCardinality(); n > 0 {
			fmt.Println(mutedStyle.Render(fmt.Sprintf("  %d events in no group", n)))
		}
	}
}

// membershipSummary renders the index counts for one group.
func membershipSummary(gid int64, idx *index.GroupIndex) string {
	s := fmt.Sprintf("events=%d", idx.Cardinality(gid))
	if eager := idx.EagerIn(gid); eager > 0 {
		s += fmt.Sprintf(" eager=%d", eager)
	}
	return s
}

func renderRelations(meta *forest.GroupMetadata) string {
	var parts []string
	if len(meta.Parents) > 0 {
		parts = append(parts, "parents="+joinIDSet(meta.Parents))
	}
	if len(meta.Children) > 0 {
		parts = append(parts, "children="+joinIDSet(meta.Children))
	}
	return strings.Join(parts, " ")
}

func joinIDSet(set map[int64]bool) string {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(strs, ",")
}

// RunReport holds figures printed after a grouping run.
type RunReport struct {
	Events   int64
	Groups   int
	Duration time.Duration
	Output   string
}

// PrintRunReport prints results after grouping completes.
func PrintRunReport(report *RunReport) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ GROUPING COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Events:"), titleStyle.Render(formatNumber(report.Events)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Groups:"), titleStyle.Render(fmt.Sprintf("%d", report.Groups)))

	if report.Duration > 0 {
		throughput := float64(report.Events) / report.Duration.Seconds()
		fmt.Printf("  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(report.Duration)),
			mutedStyle.Render(fmt.Sprintf("(%s events/sec)", formatNumber(int64(throughput)))))
	}
	if report.Output != "" {
		fmt.Printf("  %s %s\n", mutedStyle.Render("Output:"), titleStyle.Render(report.Output))
	}
	fmt.Println()
}

// PrintError prints a styled error line.
func PrintError(err error) {
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
}

// PrintSkip prints a skipped-trace line for the watch loop.
func PrintSkip(path string) {
	fmt.Printf("  %s %s\n", mutedStyle.Render("unchanged"), path)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar for long passes.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
