// Package report runs the daily capture loop over the configured roster.
package report

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/browser"
)

// DateLayout is how the portal's filter panel expects dates.
const DateLayout = "01/02/2006"

// RunContext identifies one invocation and the files it produces. Date is
// the day being reported on, fixed at start.
type RunContext struct {
	ID      string
	Started time.Time
	Date    string
	OutDir  string
	LogDir  string
	LogFile string
	Page    browser.Page
}

// NewRunContext stamps a run started at now. logPath maps the run ID to the
// run's log file.
func NewRunContext(now time.Time, outDir, logDir string, logPath func(runID string) string) *RunContext {
	id := RunID(now)
	return &RunContext{
		ID:      id,
		Started: now,
		Date:    YesterdayString(now),
		OutDir:  outDir,
		LogDir:  logDir,
		LogFile: logPath(id),
	}
}

// RunID renders t in UTC as a file-name safe ISO timestamp,
// e.g. 2024-03-02T06-00-00-000Z.
func RunID(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(s)
}

// YesterdayString is the calendar day before now in now's location.
func YesterdayString(now time.Time) string {
	return now.AddDate(0, 0, -1).Format(DateLayout)
}

// PanicError carries a recovered panic and the stack it was raised on.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current goroutine's stack for v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Format prints the stack with %+v.
func (e *PanicError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
