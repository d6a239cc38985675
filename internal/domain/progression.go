package domain

import "time"

// Profile is the per-user XP ledger row.
type Profile struct {
	UserID      string
	DisplayName string
	Email       string
	XPTotal     int64
	Level       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AchievementKind selects the unlock predicate evaluated for a catalog entry.
type AchievementKind string

const (
	AchievementFirstActivityType     AchievementKind = "FIRST_ACTIVITY_TYPE"
	AchievementDistanceSingle        AchievementKind = "DISTANCE_SINGLE_ACTIVITY"
	AchievementTimeOfDay             AchievementKind = "TIME_OF_DAY_ACTIVITY_LOGGED"
	AchievementActivitiesInWindow    AchievementKind = "TOTAL_ACTIVITIES_WINDOW"
	AchievementLifetimeDistanceType  AchievementKind = "TOTAL_DISTANCE_TYPE"
	AchievementLifetimeActivityCount AchievementKind = "TOTAL_ACTIVITIES_LOGGED"
)

// AchievementDefinition is a read-only catalog entry.
type AchievementDefinition struct {
	ID          string
	Name        string
	Description string
	Kind        AchievementKind
	// TargetValue is kilometres for distance kinds, an hour of day for
	// TIME_OF_DAY and a count for the counting kinds.
	TargetValue float64
	// ActivityType scopes the type-specific kinds; empty means any type.
	ActivityType ActivityType
	// WindowDays sizes the rolling window for TOTAL_ACTIVITIES_WINDOW.
	WindowDays int
}

// AchievementUnlock records that a user earned an achievement. At most one per pair.
type AchievementUnlock struct {
	ID            string
	UserID        string
	AchievementID string
	UnlockedAt    time.Time
}

// GoalType enumerates the supported goal shapes.
type GoalType string

const (
	GoalWeightTarget        GoalType = "WEIGHT_TARGET"
	GoalWeeklyDistanceRun   GoalType = "WEEKLY_DISTANCE_RUN"
	GoalWeeklyDurationCycle GoalType = "WEEKLY_DURATION_CYCLE"
	GoalDailyStepCount      GoalType = "DAILY_STEP_COUNT"
	GoalActivityCount       GoalType = "ACTIVITY_COUNT"
)

// Unit returns the unit goal values are expressed in.
func (g GoalType) Unit() string {
	switch g {
	case GoalWeightTarget:
		return "kg"
	case GoalWeeklyDistanceRun:
		return "km"
	case GoalWeeklyDurationCycle:
		return "hours"
	case GoalDailyStepCount:
		return "steps"
	case GoalActivityCount:
		return "activities"
	default:
		return ""
	}
}

// DefaultActivity is the activity type an unfiltered goal of type g counts.
// Empty means every type counts.
func (g GoalType) DefaultActivity() ActivityType {
	switch g {
	case GoalWeeklyDistanceRun:
		return ActivityRunningGPS
	case GoalWeeklyDurationCycle:
		return ActivityCyclingGPS
	default:
		return ""
	}
}

// Known reports whether g is one of the declared goal types.
func (g GoalType) Known() bool {
	return g.Unit() != ""
}

// Goal is a user-defined progress target.
type Goal struct {
	ID                 string
	UserID             string
	Type               GoalType
	TargetValue        float64
	CurrentValue       float64
	StartDate          time.Time
	TargetDate         *time.Time
	ActivityTypeFilter ActivityType
	Active             bool
	Completed          bool
	LastUpdated        time.Time
}

// InWindow reports whether ts falls inside [StartDate, TargetDate]. Both ends are inclusive;
// a goal without a target date is open-ended.
func (g Goal) InWindow(ts time.Time) bool {
	if ts.Before(g.StartDate) {
		return false
	}
	if g.TargetDate != nil && ts.After(*g.TargetDate) {
		return false
	}
	return true
}

// EffectiveFilter returns the activity type the goal counts, or empty for any.
func (g Goal) EffectiveFilter() ActivityType {
	if g.ActivityTypeFilter != "" {
		return g.ActivityTypeFilter
	}
	return g.Type.DefaultActivity()
}

// ChallengeType enumerates the supported challenge metrics.
type ChallengeType string

const (
	ChallengeSteps            ChallengeType = "STEPS"
	ChallengeActiveMinutes    ChallengeType = "ACTIVE_MINUTES"
	ChallengeDistanceKm       ChallengeType = "DISTANCE_KM"
	ChallengeLogActivityCount ChallengeType = "LOG_ACTIVITY_COUNT"
)

// Challenge is an admin-seeded, time-boxed target users can join.
type Challenge struct {
	ID                 string
	Name               string
	Description        string
	Type               ChallengeType
	ActivityTypeFilter ActivityType
	TargetValue        float64
	DurationDays       int
	XPReward           int64
	ActiveGlobally     bool
}

// Window returns the span of one instance started at start.
func (c Challenge) Window(start time.Time) (time.Time, time.Time) {
	return start, start.Add(time.Duration(c.DurationDays) * 24 * time.Hour)
}

// ChallengeInstance is one user's attempt at a challenge.
type ChallengeInstance struct {
	ID              string
	UserID          string
	ChallengeID     string
	StartDate       time.Time
	EndDate         time.Time
	CurrentProgress float64
	Completed       bool
	RewardClaimed   bool
}

// Contains reports whether ts falls inside the half-open window [StartDate, EndDate).
func (c ChallengeInstance) Contains(ts time.Time) bool {
	return !ts.Before(c.StartDate) && ts.Before(c.EndDate)
}

// ActiveAt reports whether the instance window has not yet expired at now.
func (c ChallengeInstance) ActiveAt(now time.Time) bool {
	return now.Before(c.EndDate)
}
