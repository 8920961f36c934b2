package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/project-lathe/internal/builder"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
)

// CLIProgressReporter implements builder.Progress with a progress bar.
type CLIProgressReporter struct {
	ctx      context.Context
	out      io.Writer
	quiet    bool
	unitBar  *progressbar.ProgressBar
	subTask  string
	compiled int
}

// NewCLIProgressReporter creates a reporter writing to out. The pass is
// cancelled once ctx is done.
func NewCLIProgressReporter(ctx context.Context, out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{ctx: ctx, out: out, quiet: quiet}
}

func (c *CLIProgressReporter) Begin(total int) {
	c.compiled = 0
	if c.quiet {
		return
	}
	if c.unitBar != nil {
		c.unitBar.Finish()
	}
	c.unitBar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Compiling units"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("units/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) Worked(amount int) {
	c.compiled += amount
	if c.quiet || c.unitBar == nil {
		return
	}
	// Rescheduled units can push the count past the announced total.
	if c.compiled > c.unitBar.GetMax() {
		c.unitBar.ChangeMax(c.compiled)
	}
	c.unitBar.Add(amount)
}

func (c *CLIProgressReporter) SubTask(label string) {
	c.subTask = label
	if c.quiet || c.unitBar == nil {
		return
	}
	c.unitBar.Describe(label)
}

func (c *CLIProgressReporter) IsCancelled() bool {
	return c.ctx.Err() != nil
}

// OnComplete finishes the bar and prints the pass summary.
func (c *CLIProgressReporter) OnComplete(res *builder.Result) {
	if c.unitBar != nil {
		c.unitBar.Finish()
		c.unitBar = nil
	}
	if c.quiet {
		return
	}

	r := res.Report
	kind := "Incremental build"
	if r.Full {
		kind = "Full build"
	}
	fmt.Fprintf(c.out, "✓ %s complete: %s units compiled in %.1fs\n",
		kind, formatNumber(len(r.Compiled)), r.Duration.Seconds())
	if res.Fallback != "" {
		fmt.Fprintf(c.out, "  Reason:      %s\n", res.Fallback)
	}
	fmt.Fprintf(c.out, "  Types:       %s added, %s modified, %s unchanged, %s removed\n",
		formatNumber(r.Added), formatNumber(r.Modified), formatNumber(r.Unchanged), formatNumber(r.Removed))
	if r.Rescheduled > 0 {
		fmt.Fprintf(c.out, "  Rescheduled: %s\n", formatNumber(r.Rescheduled))
	}
	if r.Resources > 0 {
		fmt.Fprintf(c.out, "  Resources:   %s copied\n", formatNumber(r.Resources))
	}
	if res.GC != nil && len(res.GC.Deleted) > 0 {
		fmt.Fprintf(c.out, "  Collected:   %s artifacts\n", formatNumber(len(res.GC.Deleted)))
	}
	fmt.Fprintf(c.out, "  Problems:    %s (%s errors)\n", formatNumber(r.Problems), formatNumber(r.Errors))
}

// printProblems lists problems rendered for locale.
func printProblems(out io.Writer, catalog *diagnostics.Catalog, ps []diagnostics.Problem, locale string) {
	f := catalog.Formatter(locale)
	for _, p := range ps {
		fmt.Fprintf(out, "%s:%d: %s: %s\n", p.Source, p.Line, p.Severity, f.Format(p))
	}
}

// formatNumber formats integer with thousand separators.
// Examples: 1234 -> "1,234", 1234567 -> "1,234,567"
func formatNumber(n int) string {
	str := fmt.Sprintf("%d", n)
	if n < 1000 && n > -1000 {
		return str
	}
	neg := str[0] == '-'
	if neg {
		str = str[1:]
	}
	var result []byte
	for i := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, str[i])
	}
	if neg {
		return "-" + string(result)
	}
	return string(result)
}
