package domain

import (
	"strings"
	"time"
)

// ActivityType is the closed set of activity categories the engine understands.
// The wire/display names only appear at the boundary via ParseActivityType and DisplayName.
type ActivityType string

const (
	ActivityRunningGPS     ActivityType = "RUNNING_GPS"
	ActivityCyclingGPS     ActivityType = "CYCLING_GPS"
	ActivityWalking        ActivityType = "WALKING"
	ActivityHiking         ActivityType = "HIKING"
	ActivitySwimmingPool   ActivityType = "SWIMMING_POOL"
	ActivityWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityYoga           ActivityType = "YOGA"
	ActivityHIIT           ActivityType = "HIIT"
	ActivityPilates        ActivityType = "PILATES"
	ActivityTeamSport      ActivityType = "TEAM_SPORT"
	ActivityDancing        ActivityType = "DANCING"
	ActivityMartialArts    ActivityType = "MARTIAL_ARTS"
	ActivityGeneralWorkout ActivityType = "GENERAL_WORKOUT"
	ActivityOther          ActivityType = "OTHER"
)

var activityDisplayNames = map[ActivityType]string{
	ActivityRunningGPS:     "Running (GPS)",
	ActivityCyclingGPS:     "Cycling (GPS)",
	ActivityWalking:        "Walking",
	ActivityHiking:         "Hiking",
	ActivitySwimmingPool:   "Swimming (Pool)",
	ActivityWeightTraining: "Weight Training",
	ActivityYoga:           "Yoga",
	ActivityHIIT:           "HIIT",
	ActivityPilates:        "Pilates",
	ActivityTeamSport:      "Team Sport (General)",
	ActivityDancing:        "Dancing",
	ActivityMartialArts:    "Martial Arts",
	ActivityGeneralWorkout: "General Workout",
	ActivityOther:          "Other",
}

// ActivityTypes lists every known category in display order.
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityRunningGPS, ActivityCyclingGPS, ActivityWalking, ActivityHiking,
		ActivitySwimmingPool, ActivityWeightTraining, ActivityYoga, ActivityHIIT,
		ActivityPilates, ActivityTeamSport, ActivityDancing, ActivityMartialArts,
		ActivityGeneralWorkout, ActivityOther,
	}
}

// ParseActivityType accepts either the enum code or the display name, case-insensitively.
// Unrecognised values map to ActivityOther.
func ParseActivityType(value string) ActivityType {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ActivityOther
	}
	for code, display := range activityDisplayNames {
		if strings.EqualFold(string(code), trimmed) || strings.EqualFold(display, trimmed) {
			return code
		}
	}
	return ActivityOther
}

// Known reports whether t is one of the declared categories.
func (t ActivityType) Known() bool {
	_, ok := activityDisplayNames[t]
	return ok
}

// DisplayName returns the human readable label, falling back to the raw code.
func (t ActivityType) DisplayName() string {
	if name, ok := activityDisplayNames[t]; ok {
		return name
	}
	return string(t)
}

// Activity is a finalized, immutable activity record handed to the engine.
type Activity struct {
	ID             string
	UserID         string
	Type           ActivityType
	StartedAt      time.Time
	Duration       time.Duration
	CaloriesBurned int
	Notes          string
	// PathPoints holds raw "latitude,longitude" samples in recording order.
	// Malformed entries are tolerated.
	PathPoints []string
}

// DurationMinutes returns the activity length in fractional minutes.
func (a Activity) DurationMinutes() float64 {
	return a.Duration.Minutes()
}

// Identity carries the profile fields supplied by the authentication collaborator.
type Identity struct {
	DisplayName string
	Email       string
}
