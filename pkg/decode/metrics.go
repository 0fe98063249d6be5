package decode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decode metrics, registered once on the default registry. Sessions across
// goroutines share these; all other decode state is per-session.
var (
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonarsniffer_decode_sessions_total",
			Help: "Total number of decode sessions by terminal status",
		},
		[]string{"format", "mode", "status"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonarsniffer_decode_records_emitted_total",
			Help: "Total number of verified records emitted",
		},
		[]string{"format"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonarsniffer_decode_bytes_total",
			Help: "Total bytes consumed by decode sessions, by disposition",
		},
		[]string{"format", "disposition"},
	)

	corruptionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonarsniffer_decode_corruption_events_total",
			Help: "Total corrupted spans encountered, by failure reason",
		},
		[]string{"format", "reason"},
	)
)

// ObserveSummary records a finished session in the decode metrics. The
// reference decoder calls it on finalize; alternate implementations of the
// decode contract must call it once per session so metrics stay consistent
// across execution paths.
func ObserveSummary(sum *Summary) {
	f := sum.Kind.String()
	sessionsTotal.WithLabelValues(f, sum.Mode.String(), sum.Status.String()).Inc()
	recordsTotal.WithLabelValues(f).Add(float64(sum.RecordsEmitted))
	bytesTotal.WithLabelValues(f, "decoded").Add(float64(sum.BytesDecoded))
	bytesTotal.WithLabelValues(f, "skipped").Add(float64(sum.BytesSkipped))
	for _, d := range sum.CorruptionEvents {
		corruptionTotal.WithLabelValues(f, d.Reason.String()).Inc()
	}
}
