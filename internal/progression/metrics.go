package progression

import "github.com/prometheus/client_golang/prometheus"

var (
	xpAwardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "engine",
		Name:      "xp_awarded_total",
		Help:      "XP credited to profiles, partitioned by source.",
	}, []string{"source"})

	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "engine",
		Name:      "level_ups_total",
		Help:      "Accruals that moved a profile to a higher level.",
	})

	unlockCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "engine",
		Name:      "achievements_unlocked_total",
		Help:      "Achievement unlocks, partitioned by achievement id.",
	}, []string{"achievement_id"})

	goalCompletedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "engine",
		Name:      "goals_completed_total",
		Help:      "Goals that reached their target, partitioned by goal type.",
	}, []string{"goal_type"})

	challengeCompletedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "engine",
		Name:      "challenges_completed_total",
		Help:      "Challenge instances that reached their target.",
	}, []string{"challenge_id"})

	rewardClaimedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "engine",
		Name:      "challenge_rewards_claimed_total",
		Help:      "Challenge rewards paid out.",
	}, []string{"challenge_id"})

	stepFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ingest",
		Name:      "step_failures_total",
		Help:      "Ingestion steps that returned an error.",
	}, []string{"step"})

	stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "progression",
		Subsystem: "ingest",
		Name:      "step_duration_seconds",
		Help:      "Latency of each ingestion step.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"})

	publishFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Progression events that could not be published.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(
		xpAwardedCounter,
		levelUpCounter,
		unlockCounter,
		goalCompletedCounter,
		challengeCompletedCounter,
		rewardClaimedCounter,
		stepFailureCounter,
		stepDuration,
		publishFailureCounter,
	)
}

func recordPublishFailure(eventType string) {
	publishFailureCounter.WithLabelValues(eventType).Inc()
}
