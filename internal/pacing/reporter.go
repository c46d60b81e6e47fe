package pacing

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/blacktop/rxpost/internal/logutil"
	"golang.org/x/term"
)

const logEvery = 10 * time.Second

// TerminalReporter renders the countdown on one line when w is a terminal and
// falls back to info logs otherwise: the full delay once, then every 10s.
type TerminalReporter struct {
	w   io.Writer
	tty bool

	waiting bool
}

// NewTerminalReporter returns a reporter writing to w.
func NewTerminalReporter(w io.Writer) *TerminalReporter {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &TerminalReporter{w: w, tty: tty}
}

func (r *TerminalReporter) Remaining(d time.Duration) {
	if r.tty {
		fmt.Fprintf(r.w, "\r\t\t⏳ Remaining time: %d seconds ", int(d/time.Second))
		return
	}
	if !r.waiting {
		r.waiting = true
		logutil.Infof("⏳ waiting %s before the next submission", d)
		return
	}
	if d%logEvery == 0 {
		logutil.Infof("⏳ %s remaining", d)
	}
}

func (r *TerminalReporter) Done() {
	r.waiting = false
	if r.tty {
		fmt.Fprint(r.w, "\r\033[K")
	}
}
