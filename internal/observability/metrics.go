package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityIngestedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression",
		Subsystem: "ingest",
		Name:      "last_activity_ingested_timestamp_seconds",
		Help:      "Start time of the most recent activity run through the progression steps.",
	})
	profileUpdatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression",
		Subsystem: "persistence",
		Name:      "last_profile_update_timestamp_seconds",
		Help:      "Unix timestamp of the most recent profile write.",
	})
)

func init() {
	prometheus.MustRegister(activityIngestedGauge, profileUpdatedGauge)
}

// RecordActivityIngested updates the ingestion watermark gauge.
func RecordActivityIngested(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityIngestedGauge.Set(float64(ts.Unix()))
}

// RecordProfileUpdated updates the profile write watermark gauge.
func RecordProfileUpdated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	profileUpdatedGauge.Set(float64(ts.Unix()))
}
