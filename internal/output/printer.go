package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/codalotl/agentbench/internal/types"
)

const (
	sgrBold  = "\x1b[1m"
	sgrGreen = "\x1b[32m"
	sgrRed   = "\x1b[31m"
	sgrReset = "\x1b[0m"
)

// Printer writes human-facing output. It styles text only when out is a terminal and NO_COLOR is unset.
// It is safe for concurrent use.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewPrinter creates a Printer that writes to out.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	return &Printer{out: out, color: colorEnabled(out)}
}

func colorEnabled(out io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// App writes bold application output.
func (p *Printer) App(text string) error {
	if text == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(p.style(sgrBold, ensureTrailingNewline(text)))
}

func (p *Printer) Appf(format string, args ...any) error {
	return p.App(fmt.Sprintf(format, args...))
}

// Plain writes text without styling.
func (p *Printer) Plain(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(ensureTrailingNewline(text))
}

// Result writes a one-line summary of res, plus its error on a second line when it failed.
func (p *Printer) Result(res types.BenchmarkResult) error {
	status := p.style(sgrGreen, "PASS")
	if !res.Success {
		status = p.style(sgrRed, "FAIL")
	}
	label := res.Agent
	if res.ModelName != "" {
		label += "/" + res.ModelName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s (%s, %d iterations, %s tokens)\n",
		status, res.TaskID, label,
		formatDuration(res.DurationSecs), res.Iterations, humanize.Comma(int64(res.TokensUsed)))
	if !res.Success && res.Error != "" {
		fmt.Fprintf(&b, "     %s\n", res.Error)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(b.String())
}

// Suite writes the per-task lines of suite followed by its totals.
func (p *Printer) Suite(suite types.SuiteResults) error {
	for _, res := range suite.Results {
		if err := p.Result(res); err != nil {
			return err
		}
	}
	return p.Appf("%s: %d/%d passed (%.1f%%), %d failed, %s total",
		suite.Agent, suite.Passed, suite.TotalTasks, suite.PassRate*100, suite.Failed, formatDuration(suite.TotalDurationSecs))
}

// Table writes rows aligned under header.
func (p *Printer) Table(header []string, rows [][]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	if len(header) > 0 {
		if _, err := fmt.Fprintln(tw, p.style(sgrBold, strings.Join(header, "\t"))); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Ago renders t relative to now ("3 minutes ago").
func Ago(t time.Time) string {
	return humanize.Time(t)
}

func (p *Printer) style(sgr, text string) string {
	if !p.color || text == "" {
		return text
	}
	trimmed := strings.TrimSuffix(text, "\n")
	return sgr + trimmed + sgrReset + text[len(trimmed):]
}

func (p *Printer) write(text string) error {
	_, err := io.WriteString(p.out, text)
	return err
}

func formatDuration(secs float64) string {
	return (time.Duration(secs * float64(time.Second))).Round(100 * time.Millisecond).String()
}

func ensureTrailingNewline(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
