// Package events defines the payloads exchanged with other services.
package events

import (
	"time"

	"example.com/progression/internal/domain"
)

// Event types carried in the event_type header.
const (
	TypeActivityFinalized   = "activity.finalized"
	TypeAchievementUnlocked = "achievement.unlocked"
	TypeLevelChanged        = "profile.level_changed"
	TypeGoalCompleted       = "goal.completed"
	TypeChallengeCompleted  = "challenge.completed"
	TypeRewardClaimed       = "challenge.reward_claimed"
)

// Event is one progression notification ready for publication.
type Event struct {
	Type   string
	UserID string
	// Key partitions the event; events for one user share a key.
	Key     string
	Payload interface{}
}

// ActivityFinalized is emitted by the activity save pathway once a record is persisted.
type ActivityFinalized struct {
	ActivityID     string    `json:"activity_id" validate:"required"`
	UserID         string    `json:"user_id" validate:"required"`
	DisplayName    string    `json:"display_name,omitempty"`
	Email          string    `json:"email,omitempty" validate:"omitempty,email"`
	ActivityType   string    `json:"activity_type" validate:"required"`
	StartedAt      time.Time `json:"started_at" validate:"required"`
	DurationMs     int64     `json:"duration_ms" validate:"gte=0"`
	CaloriesBurned int       `json:"calories_burned" validate:"gte=0"`
	Notes          string    `json:"notes,omitempty"`
	PathPoints     []string  `json:"path_points,omitempty"`
}

// AchievementUnlocked is read by the notification collaborator.
type AchievementUnlocked struct {
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	Name          string    `json:"name"`
	XPAwarded     int64     `json:"xp_awarded"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// LevelChanged is emitted when an accrual moves a profile to a higher level.
type LevelChanged struct {
	UserID        string    `json:"user_id"`
	PreviousLevel int       `json:"previous_level"`
	Level         int       `json:"level"`
	XPTotal       int64     `json:"xp_total"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// GoalCompleted is emitted once per goal when its target is reached.
type GoalCompleted struct {
	UserID       string    `json:"user_id"`
	GoalID       string    `json:"goal_id"`
	GoalType     string    `json:"goal_type"`
	TargetValue  float64   `json:"target_value"`
	CurrentValue float64   `json:"current_value"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ChallengeCompleted is emitted once per instance when its target is reached.
type ChallengeCompleted struct {
	UserID      string    `json:"user_id"`
	InstanceID  string    `json:"instance_id"`
	ChallengeID string    `json:"challenge_id"`
	Progress    float64   `json:"progress"`
	CompletedAt time.Time `json:"completed_at"`
}

// RewardClaimed is emitted when a challenge reward is paid out.
type RewardClaimed struct {
	UserID      string    `json:"user_id"`
	InstanceID  string    `json:"instance_id"`
	ChallengeID string    `json:"challenge_id"`
	XPReward    int64     `json:"xp_reward"`
	ClaimedAt   time.Time `json:"claimed_at"`
}

// Activity maps the payload onto the engine's activity record.
func (a ActivityFinalized) Activity() domain.Activity {
	return domain.Activity{
		ID:             a.ActivityID,
		UserID:         a.UserID,
		Type:           domain.ParseActivityType(a.ActivityType),
		StartedAt:      a.StartedAt,
		Duration:       time.Duration(a.DurationMs) * time.Millisecond,
		CaloriesBurned: a.CaloriesBurned,
		Notes:          a.Notes,
		PathPoints:     a.PathPoints,
	}
}

// Identity returns the profile fields carried by the payload, or nil when it has none.
func (a ActivityFinalized) Identity() *domain.Identity {
	if a.DisplayName == "" && a.Email == "" {
		return nil
	}
	return &domain.Identity{DisplayName: a.DisplayName, Email: a.Email}
}
