package pipeline

import (
	"fmt"
	"io"

	"github.com/blacktop/rxpost/internal/xpost"
)

// Summarize writes the final tally and one line per failed destination.
func Summarize(w io.Writer, o xpost.Outcome) {
	fmt.Fprintln(w, "\n✨ Execution Completed ✨")
	fmt.Fprintf(w, "✅ Successful Posts: %d/%d\n", o.Succeeded, o.Total)
	fmt.Fprintf(w, "❌ Failed Posts: %d/%d\n", o.Failed, o.Total)
	if skipped := o.Total - o.Attempted; skipped > 0 {
		fmt.Fprintf(w, "⏭  Not Attempted: %d/%d\n", skipped, o.Total)
	}
	for _, res := range o.Results {
		if res.Err == nil {
			continue
		}
		fmt.Fprintf(w, "\t%s [%s]: %v\n", res.Destination, xpost.KindOf(res.Err), res.Err)
	}
}

// Err converts a finished outcome into the command's exit error. A run where
// every destination succeeded returns nil.
func Err(o xpost.Outcome) error {
	switch {
	case o.Failed == 0:
		return nil
	case o.Degraded() && o.Attempted == o.Total:
		return fmt.Errorf("all %d destinations failed", o.Total)
	default:
		return fmt.Errorf("%d of %d destinations failed", o.Failed, o.Total)
	}
}
