package policy

import "example.com/progression/internal/domain"

// StepRate approximates steps for one activity category. PerKm applies when a
// distance was measured, PerMinute otherwise.
type StepRate struct {
	PerKm     float64 `yaml:"per_km"`
	PerMinute float64 `yaml:"per_minute"`
}

// StepModel estimates a steps-equivalent for activities without a pedometer.
type StepModel struct {
	rates map[domain.ActivityType]StepRate
}

// NewStepModel copies rates. Categories absent from the table contribute no steps.
func NewStepModel(rates map[domain.ActivityType]StepRate) StepModel {
	copied := make(map[domain.ActivityType]StepRate, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return StepModel{rates: copied}
}

// Steps returns the estimated steps for one activity.
func (m StepModel) Steps(activityType domain.ActivityType, minutes, distanceKm float64) float64 {
	rate, ok := m.rates[activityType]
	if !ok {
		return 0
	}
	if rate.PerKm > 0 && distanceKm > 0 {
		return distanceKm * rate.PerKm
	}
	if minutes > 0 {
		return minutes * rate.PerMinute
	}
	return 0
}

// DefaultStepRates holds the stock approximation constants.
func DefaultStepRates() map[domain.ActivityType]StepRate {
	return map[domain.ActivityType]StepRate{
		domain.ActivityRunningGPS: {PerKm: 1250},
		domain.ActivityWalking:    {PerKm: 1500, PerMinute: 100},
		domain.ActivityHiking:     {PerKm: 1500, PerMinute: 100},
		domain.ActivityDancing:    {PerMinute: 70},
	}
}
