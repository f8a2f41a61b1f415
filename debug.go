package marionette

import (
	"fmt"
	"os"
)

// debugWarnf prints a skip-and-continue warning to stderr. These fire for
// recoverable conditions the worker absorbs (stale handles in a batch,
// failed fire-and-forget mutations) so misuse is visible without crashing
// the loop.
func debugWarnf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "[marionette] warning: "+format+"\n", args...)
}

// debugLogWorker prints worker-loop counters to stderr at teardown.
// Only called when Config.Debug is set.
func debugLogWorker(stats *workerStats) {
	_, _ = fmt.Fprintf(os.Stderr,
		"[marionette] executed: %d | failed: %d | published: %d | skipped draws: %d\n",
		stats.executed, stats.failed, stats.published, stats.skipped)
}
