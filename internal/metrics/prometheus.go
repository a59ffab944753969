package metrics

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
)

const promName = "rendezvous_signaling_events_total"

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes every counter as one metric with an `event` label.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}
		snap := m.Snapshot()
		keys := slices.Sorted(maps.Keys(snap))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s Signaling relay event counters.\n", promName)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", promName)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", promName, labelEscaper.Replace(k), snap[k])
		}
	})
}
