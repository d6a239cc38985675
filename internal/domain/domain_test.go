package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseActivityType(t *testing.T) {
	cases := []struct {
		input string
		want  ActivityType
	}{
		{"RUNNING_GPS", ActivityRunningGPS},
		{"running_gps", ActivityRunningGPS},
		{"Running (GPS)", ActivityRunningGPS},
		{"  swimming (pool) ", ActivitySwimmingPool},
		{"Team Sport (General)", ActivityTeamSport},
		{"hiit", ActivityHIIT},
		{"", ActivityOther},
		{"underwater chess", ActivityOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParseActivityType(tc.input), tc.input)
	}
}

func TestActivityTypesAreKnownAndLabelled(t *testing.T) {
	types := ActivityTypes()
	require.Len(t, types, 14)
	for _, activityType := range types {
		require.True(t, activityType.Known())
		require.NotEmpty(t, activityType.DisplayName())
	}
	require.False(t, ActivityType("SKYDIVING").Known())
	require.Equal(t, "Running (GPS)", ActivityRunningGPS.DisplayName())
	require.Equal(t, "SKYDIVING", ActivityType("SKYDIVING").DisplayName())
}

func TestGoalWindowIsInclusive(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)
	goal := Goal{StartDate: start, TargetDate: &end}

	require.True(t, goal.InWindow(start))
	require.True(t, goal.InWindow(end))
	require.False(t, goal.InWindow(start.Add(-time.Nanosecond)))
	require.False(t, goal.InWindow(end.Add(time.Nanosecond)))

	openEnded := Goal{StartDate: start}
	require.True(t, openEnded.InWindow(start.AddDate(5, 0, 0)))
}

func TestChallengeInstanceWindowIsHalfOpen(t *testing.T) {
	challenge := Challenge{DurationDays: 7}
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	from, to := challenge.Window(start)
	instance := ChallengeInstance{StartDate: from, EndDate: to}

	require.Equal(t, start.Add(168*time.Hour), to)
	require.True(t, instance.Contains(start))
	require.True(t, instance.Contains(to.Add(-time.Nanosecond)))
	require.False(t, instance.Contains(to))
	require.False(t, instance.Contains(start.Add(-time.Nanosecond)))

	require.True(t, instance.ActiveAt(to.Add(-time.Second)))
	require.False(t, instance.ActiveAt(to))
}

func TestGoalEffectiveFilter(t *testing.T) {
	require.Equal(t, ActivityRunningGPS, Goal{Type: GoalWeeklyDistanceRun}.EffectiveFilter())
	require.Equal(t, ActivityCyclingGPS, Goal{Type: GoalWeeklyDurationCycle}.EffectiveFilter())
	require.Equal(t, ActivityType(""), Goal{Type: GoalActivityCount}.EffectiveFilter())
	require.Equal(t, ActivityYoga, Goal{Type: GoalActivityCount, ActivityTypeFilter: ActivityYoga}.EffectiveFilter())
	require.Equal(t, ActivityHiking, Goal{Type: GoalWeeklyDistanceRun, ActivityTypeFilter: ActivityHiking}.EffectiveFilter())
}

func TestGoalTypeUnits(t *testing.T) {
	require.Equal(t, "kg", GoalWeightTarget.Unit())
	require.Equal(t, "km", GoalWeeklyDistanceRun.Unit())
	require.Equal(t, "hours", GoalWeeklyDurationCycle.Unit())
	require.Equal(t, "steps", GoalDailyStepCount.Unit())
	require.Equal(t, "activities", GoalActivityCount.Unit())
	require.True(t, GoalDailyStepCount.Known())
	require.False(t, GoalType("SLEEP_HOURS").Known())
}

func TestLeaderboardCursorBefore(t *testing.T) {
	cursor := LeaderboardCursor{XPTotal: 500, UserID: "user-b"}
	require.True(t, cursor.Before(Profile{UserID: "user-z", XPTotal: 900}))
	require.True(t, cursor.Before(Profile{UserID: "user-a", XPTotal: 500}))
	require.True(t, cursor.Before(Profile{UserID: "user-b", XPTotal: 500}))
	require.False(t, cursor.Before(Profile{UserID: "user-c", XPTotal: 500}))
	require.False(t, cursor.Before(Profile{UserID: "user-a", XPTotal: 100}))
}

func TestErrorRefinementsMatchCategories(t *testing.T) {
	require.ErrorIs(t, ErrAlreadyJoined, ErrConflict)
	require.ErrorIs(t, ErrGoalNotFound, ErrNotFound)
	require.ErrorIs(t, ValidationError("user_id is required"), ErrValidation)

	cause := errors.New("connection reset")
	wrapped := PersistenceError("insert goal", cause)
	require.ErrorIs(t, wrapped, ErrPersistence)
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, wrapped, PersistenceError("outer", wrapped))
	require.NoError(t, PersistenceError("noop", nil))
}
