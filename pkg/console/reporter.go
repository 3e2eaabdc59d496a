// Package console renders build progress for a terminal: one line per task
// as it finishes and a summary at the end.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/executor"
	"github.com/assemble/assemble/pkg/policy"
	"github.com/assemble/assemble/pkg/task"
)

var (
	_ executor.Listener     = (*Reporter)(nil)
	_ executor.SkipObserver = (*Reporter)(nil)
)

// Reporter prints "> Task :app:compile UP-TO-DATE" style progress lines.
// It is safe for use by concurrent workers.
type Reporter struct {
	w       io.Writer
	mu      sync.Mutex
	verbose bool
	quiet   bool
	scheme  *colorScheme
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithColor forces color on or off. By default color is used when w is a terminal.
func WithColor(enabled bool) Option {
	return func(r *Reporter) { r.scheme = newColorScheme(enabled) }
}

// WithVerbose prints the captured output of every executed task.
func WithVerbose(v bool) Option {
	return func(r *Reporter) { r.verbose = v }
}

// WithQuiet suppresses task lines and keeps only failures and the summary.
func WithQuiet(q bool) Option {
	return func(r *Reporter) { r.quiet = q }
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer, opts ...Option) *Reporter {
	r := &Reporter{w: w, scheme: newColorScheme(isTerminal(w))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// BeforeExecute implements executor.Listener.
func (r *Reporter) BeforeExecute(context.Context, *task.Executable) error { return nil }

// AfterExecute implements executor.Listener.
func (r *Reporter) AfterExecute(_ context.Context, _ *task.Executable, res *engine.TaskResult) error {
	r.taskLine(res)
	return nil
}

// TaskSkipped implements executor.SkipObserver.
func (r *Reporter) TaskSkipped(_ context.Context, res *engine.TaskResult) {
	r.taskLine(res)
}

func (r *Reporter) taskLine(res *engine.TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := res.Outcome == engine.OutcomeFailed
	if r.quiet && !failed {
		return
	}

	line := "> Task " + res.ID.String()
	if label := r.outcomeLabel(res.Outcome); label != "" {
		line += " " + label
	}
	fmt.Fprintln(r.w, line)

	if failed || r.verbose {
		writeIndented(r.w, res.Stdout)
		writeIndented(r.w, res.Stderr)
	}
	if failed && res.Err != nil {
		writeIndented(r.w, r.scheme.fail.Sprint(res.Err.Error()))
	}
}

func (r *Reporter) outcomeLabel(o engine.Outcome) string {
	switch o {
	case engine.OutcomeExecuted:
		return ""
	case engine.OutcomeFailed:
		return r.scheme.fail.Sprint(string(o))
	case engine.OutcomeSkipped:
		return r.scheme.warn.Sprint(string(o))
	default:
		return r.scheme.muted.Sprint(string(o))
	}
}

func writeIndented(w io.Writer, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for _, l := range strings.Split(text, "\n") {
		fmt.Fprintln(w, "    "+l)
	}
}

// Summary prints the closing BUILD line and the task counts.
func (r *Reporter) Summary(report *executor.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := report.Summary
	fmt.Fprintln(r.w)
	switch s.Status {
	case engine.RunStatusSucceeded:
		fmt.Fprintf(r.w, "%s in %s\n", r.scheme.success.Sprint("BUILD SUCCESSFUL"), formatDuration(s.Duration))
	case engine.RunStatusCancelled:
		fmt.Fprintf(r.w, "%s in %s\n", r.scheme.warn.Sprint("BUILD CANCELLED"), formatDuration(s.Duration))
	default:
		fmt.Fprintf(r.w, "%s in %s\n", r.scheme.fail.Sprint("BUILD FAILED"), formatDuration(s.Duration))
		for _, id := range s.Failed {
			fmt.Fprintf(r.w, "  %s %s\n", r.scheme.fail.Sprint("failed:"), id)
		}
	}

	actionable := 0
	var parts []string
	for _, o := range []engine.Outcome{
		engine.OutcomeExecuted, engine.OutcomeUpToDate, engine.OutcomeNoSource,
		engine.OutcomeStopped, engine.OutcomeSkipped, engine.OutcomeFailed,
	} {
		n := s.Outcomes[o]
		if n == 0 {
			continue
		}
		if o.DidWork() || o == engine.OutcomeUpToDate {
			actionable += n
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(o))))
	}
	noun := "tasks"
	if actionable == 1 {
		noun = "task"
	}
	fmt.Fprintf(r.w, "%d actionable %s: %s\n", actionable, noun, strings.Join(parts, ", "))
}

// Violations prints policy findings, most severe first.
func (r *Reporter) Violations(vs []policy.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sev := range []policy.Severity{policy.SeverityError, policy.SeverityWarning, policy.SeverityInfo} {
		for _, v := range vs {
			if v.Severity != sev {
				continue
			}
			var c *color.Color
			switch sev {
			case policy.SeverityError:
				c = r.scheme.fail
			case policy.SeverityWarning:
				c = r.scheme.warn
			default:
				c = r.scheme.muted
			}
			where := v.Task
			if where == "" {
				where = "build"
			}
			fmt.Fprintf(r.w, "%s %s: %s %s\n", c.Sprintf("%-7s", sev), where, v.Message, r.scheme.muted.Sprintf("[%s]", v.Policy))
		}
	}
}

// Printf writes a plain line.
func (r *Reporter) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

// formatDuration renders "850ms", "3s" or "1m 12s".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Round(time.Second).Seconds()))
	default:
		d = d.Round(time.Second)
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
