// Package domain defines the progression data model and the persistence ports
// the engine depends on.
package domain

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when the record does not exist; callers translate
// that into the matching ErrNotFound refinement.

// ProfileStore persists user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// UpsertProfile loads the profile for seed.UserID, or starts from seed when none
	// exists, applies mutate and persists the result atomically. Concurrent calls for
	// the same user are serialized by the store.
	UpsertProfile(ctx context.Context, seed Profile, mutate func(*Profile)) (Profile, error)
	// ListTopByXP returns profiles ordered by XP descending then user id, starting
	// strictly after the cursor when one is given.
	ListTopByXP(ctx context.Context, after *LeaderboardCursor, limit int) ([]Profile, error)
}

// LeaderboardCursor is the keyset position of the last profile on a leaderboard page.
type LeaderboardCursor struct {
	XPTotal int64
	UserID  string
}

// Before reports whether p sorts before the cursor position.
func (c LeaderboardCursor) Before(p Profile) bool {
	if p.XPTotal != c.XPTotal {
		return p.XPTotal > c.XPTotal
	}
	return p.UserID <= c.UserID
}

// AchievementStore exposes the static catalog and the unlock ledger.
type AchievementStore interface {
	ListAchievements(ctx context.Context) ([]AchievementDefinition, error)
	GetAchievement(ctx context.Context, id string) (*AchievementDefinition, error)
	ListUnlocks(ctx context.Context, userID string) ([]AchievementUnlock, error)
	// InsertUnlock is a conditional insert: created is false when the
	// (userID, achievementID) pair already exists.
	InsertUnlock(ctx context.Context, unlock AchievementUnlock) (created bool, err error)
}

// ActivityStore is the external save pathway plus the history query used by
// aggregate achievement predicates. Activities are append-only.
type ActivityStore interface {
	// SaveActivity inserts activity unless its ID is already stored; an existing
	// record is never modified and created is false.
	SaveActivity(ctx context.Context, activity Activity) (created bool, err error)
	GetActivity(ctx context.Context, id string) (*Activity, error)
	// ListActivitiesSince returns the user's activities with StartedAt >= since.
	ListActivitiesSince(ctx context.Context, userID string, since time.Time) ([]Activity, error)
}

// GoalStore persists user goals.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal Goal) error
	GetGoal(ctx context.Context, id string) (*Goal, error)
	ListGoals(ctx context.Context, userID string) ([]Goal, error)
	// ListActiveGoals returns active goals that are not yet completed.
	ListActiveGoals(ctx context.Context, userID string) ([]Goal, error)
	// AddGoalProgress atomically adds delta to an incomplete goal and flags completion
	// once CurrentValue reaches TargetValue. newlyCompleted is true only for the
	// update that crossed the target.
	AddGoalProgress(ctx context.Context, goalID string, delta float64, at time.Time) (goal Goal, newlyCompleted bool, err error)
}

// ChallengeStore exposes the challenge catalog and the per-user instance ledger.
type ChallengeStore interface {
	ListChallenges(ctx context.Context, globallyActiveOnly bool) ([]Challenge, error)
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	GetInstance(ctx context.Context, id string) (*ChallengeInstance, error)
	ListInstances(ctx context.Context, userID string) ([]ChallengeInstance, error)
	// GetActiveInstance returns the user's instance of challengeID whose window is
	// still open at now.
	GetActiveInstance(ctx context.Context, userID, challengeID string, now time.Time) (*ChallengeInstance, error)
	// ListOpenInstances returns the user's instances that are not completed.
	ListOpenInstances(ctx context.Context, userID string) ([]ChallengeInstance, error)
	// InsertInstanceIfNoneActive creates instance unless the user already holds an
	// instance of the same challenge whose window is still open at instance.StartDate.
	InsertInstanceIfNoneActive(ctx context.Context, instance ChallengeInstance) (created bool, err error)
	// AddInstanceProgress atomically adds delta to an incomplete instance and flags
	// completion once progress reaches target.
	AddInstanceProgress(ctx context.Context, instanceID string, delta, target float64) (instance ChallengeInstance, newlyCompleted bool, err error)
	// ClaimReward flips RewardClaimed for a completed, unclaimed instance.
	// claimed is false when the instance is not completed or was already claimed.
	ClaimReward(ctx context.Context, instanceID string) (claimed bool, err error)
}

// IngestionLedger records which processing steps already ran for an activity.
type IngestionLedger interface {
	// ClaimIngestion returns false when step was already claimed for activityID.
	ClaimIngestion(ctx context.Context, activityID, step string) (bool, error)
	// ReleaseIngestion drops a claim so a redelivered activity runs step again.
	ReleaseIngestion(ctx context.Context, activityID, step string) error
}
