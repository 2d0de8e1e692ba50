package handlers

import (
	"fmt"
	"net/http"

	"github.com/Vodeneev/crashwatch/internal/pkg/performance"
)

// HandlePing handles /ping endpoint
func HandlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong\n"))
}

// HandleHealth answers "ok" while the process is serving and lists platforms
// whose source is currently failing, one per line.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
	for _, p := range performance.GetTracker().Snapshot().Platforms {
		if p.ConsecutiveSourceFailures > 0 {
			_, _ = fmt.Fprintf(w, "source_failing %s %d\n", p.Platform, p.ConsecutiveSourceFailures)
		}
	}
}
