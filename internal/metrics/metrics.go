package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"classtrack/internal/engine"
)

// ScansTotal counts attendance submissions by action and outcome. Outcome
// is "ok" or the engine error code, so the dashboard can tell double-scans
// apart from closed windows.
var ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classtrack_scans_total",
	Help: "Attendance submissions by action and outcome.",
}, []string{"action", "outcome"})

// Observe records one submission outcome.
func Observe(action string, err error) {
	outcome := "ok"
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		outcome = string(engErr.Code)
	} else if err != nil {
		outcome = "error"
	}
	ScansTotal.WithLabelValues(action, outcome).Inc()
}
