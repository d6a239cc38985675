package domain

// SeedAchievements is the catalog installed on first start.
func SeedAchievements() []AchievementDefinition {
	return []AchievementDefinition{
		{
			ID:           "FIRST_RUN",
			Name:         "First Run",
			Description:  "Log your first 'Running (GPS)' activity",
			Kind:         AchievementFirstActivityType,
			TargetValue:  1,
			ActivityType: ActivityRunningGPS,
		},
		{
			ID:           "RUN_5KM",
			Name:         "5km Runner",
			Description:  "Complete a 5km run in a single 'Running (GPS)' activity",
			Kind:         AchievementDistanceSingle,
			TargetValue:  5,
			ActivityType: ActivityRunningGPS,
		},
		{
			ID:           "MARATHON_RUNNER",
			Name:         "Marathon Runner",
			Description:  "Complete a 42.195km 'Running (GPS)' run",
			Kind:         AchievementDistanceSingle,
			TargetValue:  42.195,
			ActivityType: ActivityRunningGPS,
		},
		{
			ID:          "WEEKLY_WARRIOR",
			Name:        "Weekly Warrior",
			Description: "Log 5 activities in one week",
			Kind:        AchievementActivitiesInWindow,
			TargetValue: 5,
			WindowDays:  7,
		},
		{
			ID:          "EARLY_BIRD",
			Name:        "Early Bird",
			Description: "Log an activity before 7 AM",
			Kind:        AchievementTimeOfDay,
			TargetValue: 7,
		},
		{
			ID:          "DEDICATED_50",
			Name:        "Dedicated",
			Description: "Log 50 activities",
			Kind:        AchievementLifetimeActivityCount,
			TargetValue: 50,
		},
		{
			ID:           "CENTURY_RUNNER",
			Name:         "Century Runner",
			Description:  "Run a total of 100km with 'Running (GPS)'",
			Kind:         AchievementLifetimeDistanceType,
			TargetValue:  100,
			ActivityType: ActivityRunningGPS,
		},
	}
}

// SeedChallenges is the challenge catalog installed on first start.
func SeedChallenges() []Challenge {
	return []Challenge{
		{
			ID:             "DAILY_STEPS_5K",
			Name:           "5k Steps Daily",
			Description:    "Achieve 5,000 steps today!",
			Type:           ChallengeSteps,
			TargetValue:    5000,
			DurationDays:   1,
			XPReward:       100,
			ActiveGlobally: true,
		},
		{
			ID:                 "WEEKLY_RUN_10KM",
			Name:               "10km Run Weekly",
			Description:        "Run a total of 10km this week.",
			Type:               ChallengeDistanceKm,
			ActivityTypeFilter: ActivityRunningGPS,
			TargetValue:        10,
			DurationDays:       7,
			XPReward:           250,
			ActiveGlobally:     true,
		},
		{
			ID:                 "LOG_YOGA_3TIMES",
			Name:               "Yoga thrice weekly",
			Description:        "Log 3 Yoga sessions this week.",
			Type:               ChallengeLogActivityCount,
			ActivityTypeFilter: ActivityYoga,
			TargetValue:        3,
			DurationDays:       7,
			XPReward:           150,
			ActiveGlobally:     true,
		},
	}
}
