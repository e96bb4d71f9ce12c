// Package tui renders run progress and summaries for the migrate CLI.
// Plain streaming output, with a progress bar when attached to a terminal.
package tui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/lenardflx/ai-data-migration/pkg/pipeline"
)

var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Display turns batch progress events into terminal output.
// It is driven from the orchestrator goroutine and is not safe for concurrent use.
type Display struct {
	out         io.Writer
	interactive bool
	bar         *progressbar.ProgressBar
}

// NewDisplay creates a display writing to out. A progress bar is drawn only when interactive.
func NewDisplay(out io.Writer, interactive bool) *Display {
	return &Display{out: out, interactive: interactive}
}

// Observe handles one progress event. Pass it as pipeline.Deps.OnBatch.
func (d *Display) Observe(p pipeline.Progress) {
	switch p.State {
	case pipeline.BatchPending:
		if d.interactive && d.bar == nil {
			d.bar = newBar(d.out, p.Total, p.Cursor)
		}
	case pipeline.BatchRetry:
		d.line(mutedStyle.Render(fmt.Sprintf("  ↻ rows %d-%d: attempt %d failed, retrying",
			p.BatchStart, p.BatchEnd, p.Attempt)))
	case pipeline.BatchDone:
		if d.bar != nil {
			_ = d.bar.Set(p.Cursor)
			return
		}
		fmt.Fprintf(d.out, "  %s %s\n",
			successStyle.Render("✓"),
			fmt.Sprintf("%d/%d rows (%.1f%%)", p.Cursor, p.Total, p.Percent()))
	case pipeline.BatchAborted:
		d.line(mutedStyle.Render(fmt.Sprintf("  ■ stopped before rows %d-%d", p.BatchStart, p.BatchEnd)))
	case pipeline.BatchFailed:
		d.line(accentStyle.Render(fmt.Sprintf("  ✗ rows %d-%d failed after %d attempt(s)",
			p.BatchStart, p.BatchEnd, p.Attempt)))
	}
}

// Finish releases the progress bar.
func (d *Display) Finish() {
	if d.bar != nil {
		_ = d.bar.Close()
		d.bar = nil
	}
}

// line prints a message on its own line, clearing the bar first.
func (d *Display) line(msg string) {
	if d.bar != nil {
		_ = d.bar.Clear()
	}
	fmt.Fprintln(d.out, msg)
}

func newBar(out io.Writer, total, cursor int) *progressbar.ProgressBar {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("  migrating"),
		progressbar.OptionSetWidth(40),
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
	_ = bar.Set(cursor)
	return bar
}

// RunInfo describes a run before it starts.
type RunInfo struct {
	Input    string
	Output   string
	Progress string
	Cursor   int
	Total    int
	DryRun   bool
}

// PrintHeader prints the run banner.
func PrintHeader(w io.Writer, info RunInfo) {
	fmt.Fprintln(w)
	title := titleStyle.Render("  MIGRATE")
	if info.DryRun {
		title += mutedStyle.Render(" (dry run)")
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, mutedStyle.Render(rule))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Input:   "), codeStyle.Render(info.Input))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:  "), codeStyle.Render(info.Output))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Progress:"), codeStyle.Render(info.Progress))
	if info.Cursor > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Resuming:"),
			titleStyle.Render(fmt.Sprintf("row %d of %d", info.Cursor, info.Total)))
	} else {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Rows:    "), titleStyle.Render(formatNumber(int64(info.Total))))
	}
	fmt.Fprintln(w, mutedStyle.Render(rule))
}

// PrintSummary prints the terminal state of a run.
func PrintSummary(w io.Writer, res *pipeline.Result, elapsed time.Duration) {
	fmt.Fprintln(w)
	switch res.State {
	case pipeline.RunFinished:
		fmt.Fprintln(w, successStyle.Render("  ✓ MIGRATION COMPLETE"))
	case pipeline.RunAborted:
		fmt.Fprintln(w, titleStyle.Render("  ■ MIGRATION STOPPED"))
	default:
		fmt.Fprintln(w, accentStyle.Render("  ✗ MIGRATION FAILED"))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Committed:"),
		titleStyle.Render(fmt.Sprintf("%d rows in %d batches", res.RowsCommitted, res.BatchesCommitted)))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Cursor:   "),
		titleStyle.Render(fmt.Sprintf("%d/%d (%.1f%%)", res.Cursor, res.TotalRows, percentOf(res.Cursor, res.TotalRows))))
	if elapsed > 0 {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Time:     "), titleStyle.Render(formatDuration(elapsed)))
	}
	if res.Err != nil {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Error:    "), accentStyle.Render(res.Err.Error()))
	}
	if res.State != pipeline.RunFinished {
		fmt.Fprintln(w, mutedStyle.Render("  Run again to resume from the cursor."))
	}
	fmt.Fprintln(w)
}

// Status is a snapshot of persisted state.
type Status struct {
	Progress string
	Output   string
	Cursor   int
	Total    int
	Records  int
}

// PrintStatus prints a persisted progress snapshot.
func PrintStatus(w io.Writer, s Status) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Progress:"), codeStyle.Render(s.Progress))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Output:  "), codeStyle.Render(s.Output))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Cursor:  "),
		titleStyle.Render(fmt.Sprintf("%d/%d (%.1f%%)", s.Cursor, s.Total, percentOf(s.Cursor, s.Total))))
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("Records: "), titleStyle.Render(formatNumber(int64(s.Records))))
	if s.Records != s.Cursor {
		fmt.Fprintln(w, accentStyle.Render(fmt.Sprintf("  ! output holds %d records but the cursor is at %d", s.Records, s.Cursor)))
	}
	fmt.Fprintln(w)
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(n) / float64(total) * 100
}

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
