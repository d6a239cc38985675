package policy

import (
	"math"
	"time"

	"example.com/progression/internal/domain"
)

// RewardRate prices one activity category. The first applicable rule wins:
// PerKm when a distance was measured, then PerMinute, then Flat.
type RewardRate struct {
	PerKm     float64 `yaml:"per_km"`
	PerMinute float64 `yaml:"per_minute"`
	Flat      int64   `yaml:"flat"`
}

func (r RewardRate) amount(minutes, distanceKm float64) int64 {
	switch {
	case r.PerKm > 0 && distanceKm > 0:
		return int64(math.Floor(distanceKm * r.PerKm))
	case r.PerMinute > 0 && minutes > 0:
		return int64(math.Floor(minutes * r.PerMinute))
	case r.PerKm > 0 || r.PerMinute > 0:
		return 0
	default:
		return r.Flat
	}
}

// RewardPolicy maps activity categories to XP.
type RewardPolicy struct {
	rates   map[domain.ActivityType]RewardRate
	general RewardRate
}

// NewRewardPolicy copies rates; categories missing from the table earn general.
func NewRewardPolicy(rates map[domain.ActivityType]RewardRate, general RewardRate) RewardPolicy {
	copied := make(map[domain.ActivityType]RewardRate, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return RewardPolicy{rates: copied, general: general}
}

// Reward returns the XP earned by one activity.
func (p RewardPolicy) Reward(activityType domain.ActivityType, duration time.Duration, distanceKm float64) int64 {
	return p.Rate(activityType).amount(duration.Minutes(), distanceKm)
}

// Rate exposes the effective rate for activityType.
func (p RewardPolicy) Rate(activityType domain.ActivityType) RewardRate {
	if rate, ok := p.rates[activityType]; ok {
		return rate
	}
	return p.general
}

// DefaultRewardRates is the stock XP table.
func DefaultRewardRates() map[domain.ActivityType]RewardRate {
	return map[domain.ActivityType]RewardRate{
		domain.ActivityRunningGPS:     {PerKm: 50, PerMinute: 3},
		domain.ActivityCyclingGPS:     {PerKm: 30, PerMinute: 15},
		domain.ActivityWalking:        {PerKm: 60, PerMinute: 3},
		domain.ActivityHiking:         {PerKm: 70, PerMinute: 4},
		domain.ActivitySwimmingPool:   {PerMinute: 8},
		domain.ActivityWeightTraining: {PerMinute: 5},
		domain.ActivityYoga:           {PerMinute: 4},
		domain.ActivityHIIT:           {PerMinute: 10},
		domain.ActivityPilates:        {PerMinute: 4},
		domain.ActivityTeamSport:      {PerMinute: 7},
		domain.ActivityDancing:        {PerMinute: 6},
		domain.ActivityMartialArts:    {PerMinute: 8},
		domain.ActivityGeneralWorkout: {Flat: DefaultGeneralActivityXP},
		domain.ActivityOther:          {Flat: DefaultGeneralActivityXP},
	}
}

// DefaultGeneralActivityXP is the flat reward for unclassified activities.
const DefaultGeneralActivityXP = 75
