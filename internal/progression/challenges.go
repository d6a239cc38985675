package progression

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/geo"
	"example.com/progression/internal/policy"
)

// ChallengeUpdate describes the effect of one activity on one challenge instance.
type ChallengeUpdate struct {
	Instance       domain.ChallengeInstance
	Increment      float64
	NewlyCompleted bool
	// Reward is set when completion paid out the challenge reward.
	Reward *ClaimResult
}

// ClaimResult reports a paid challenge reward.
type ClaimResult struct {
	Instance  domain.ChallengeInstance
	XPAwarded int64
	Accrual   AccrualResult
}

// ChallengeTracker joins users to challenges, advances their instances and pays rewards.
type ChallengeTracker struct {
	store   domain.ChallengeStore
	accrual *Accrual
	steps   policy.StepModel
	settings
}

// NewChallengeTracker wires the tracker over store.
func NewChallengeTracker(store domain.ChallengeStore, accrual *Accrual, steps policy.StepModel, opts ...Option) *ChallengeTracker {
	return &ChallengeTracker{store: store, accrual: accrual, steps: steps, settings: newSettings(opts)}
}

// JoinChallenge starts a new instance of challenge for the user. It fails with
// ErrAlreadyJoined while a previous instance is still inside its window.
func (t *ChallengeTracker) JoinChallenge(ctx context.Context, userID string, challenge domain.Challenge) (domain.ChallengeInstance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ChallengeInstance{}, domain.ValidationError("user id is required")
	}
	if challenge.DurationDays <= 0 {
		return domain.ChallengeInstance{}, domain.ValidationError(fmt.Sprintf("challenge %s has no duration", challenge.ID))
	}

	unlock, err := t.locker.Lock(ctx, lockKey("challenges", userID))
	if err != nil {
		return domain.ChallengeInstance{}, fmt.Errorf("lock challenges for %s: %w", userID, err)
	}
	defer unlock()

	now := t.now()
	active, err := t.store.GetActiveInstance(ctx, userID, challenge.ID, now)
	if err != nil {
		return domain.ChallengeInstance{}, domain.PersistenceError("get active instance", err)
	}
	if active != nil {
		return domain.ChallengeInstance{}, domain.ErrAlreadyJoined
	}

	start, end := challenge.Window(now)
	instance := domain.ChallengeInstance{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: challenge.ID,
		StartDate:   start,
		EndDate:     end,
	}
	created, err := t.store.InsertInstanceIfNoneActive(ctx, instance)
	if err != nil {
		return domain.ChallengeInstance{}, domain.PersistenceError("insert challenge instance", err)
	}
	if !created {
		return domain.ChallengeInstance{}, domain.ErrAlreadyJoined
	}
	return instance, nil
}

// JoinChallengeByID looks the challenge up in the catalog and joins it.
func (t *ChallengeTracker) JoinChallengeByID(ctx context.Context, userID, challengeID string) (domain.ChallengeInstance, error) {
	challenge, err := t.challenge(ctx, challengeID)
	if err != nil {
		return domain.ChallengeInstance{}, err
	}
	if !challenge.ActiveGlobally {
		return domain.ChallengeInstance{}, domain.ErrChallengeInactive
	}
	return t.JoinChallenge(ctx, userID, challenge)
}

// AdvanceChallenges applies activity to each open instance whose window contains it.
// Instances that reach their target have the reward paid immediately.
func (t *ChallengeTracker) AdvanceChallenges(ctx context.Context, userID string, activity domain.Activity) ([]ChallengeUpdate, error) {
	unlock, err := t.locker.Lock(ctx, lockKey("challenges", userID))
	if err != nil {
		return nil, fmt.Errorf("lock challenges for %s: %w", userID, err)
	}
	defer unlock()

	instances, err := t.store.ListOpenInstances(ctx, userID)
	if err != nil {
		return nil, domain.PersistenceError("list open instances", err)
	}

	distanceKm := geo.PathDistanceKm(activity.PathPoints)
	catalog := make(map[string]domain.Challenge)
	var (
		updates []ChallengeUpdate
		errs    []error
	)
	for _, instance := range instances {
		if instance.Completed || !instance.Contains(activity.StartedAt) {
			continue
		}
		challenge, ok := catalog[instance.ChallengeID]
		if !ok {
			challenge, err = t.challenge(ctx, instance.ChallengeID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					t.logger.Printf("skip instance %s for user %s: %v", instance.ID, userID, err)
					continue
				}
				errs = append(errs, fmt.Errorf("instance %s: %w", instance.ID, err))
				continue
			}
			catalog[challenge.ID] = challenge
		}
		if challenge.ActivityTypeFilter != "" && challenge.ActivityTypeFilter != activity.Type {
			continue
		}
		increment := t.increment(challenge.Type, activity, distanceKm)
		if increment <= 0 {
			continue
		}

		updated, completed, err := t.store.AddInstanceProgress(ctx, instance.ID, increment, challenge.TargetValue)
		if err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", instance.ID, domain.PersistenceError("add instance progress", err)))
			continue
		}
		update := ChallengeUpdate{Instance: updated, Increment: increment, NewlyCompleted: completed}
		if completed {
			challengeCompletedCounter.WithLabelValues(challenge.ID).Inc()
			t.publish(ctx, events.Event{
				Type:   events.TypeChallengeCompleted,
				UserID: userID,
				Key:    userID,
				Payload: events.ChallengeCompleted{
					UserID:      userID,
					InstanceID:  updated.ID,
					ChallengeID: challenge.ID,
					Progress:    updated.CurrentProgress,
					CompletedAt: t.now(),
				},
			})
			if !updated.RewardClaimed {
				reward, err := t.pay(ctx, updated, challenge)
				switch {
				case err == nil:
					update.Reward = &reward
					update.Instance = reward.Instance
				case errors.Is(err, domain.ErrConflict):
					// Claimed concurrently through the explicit claim path.
				default:
					errs = append(errs, fmt.Errorf("instance %s reward: %w", instance.ID, err))
				}
			}
		}
		updates = append(updates, update)
	}
	return updates, errors.Join(errs...)
}

func (t *ChallengeTracker) increment(challengeType domain.ChallengeType, activity domain.Activity, distanceKm float64) float64 {
	switch challengeType {
	case domain.ChallengeSteps:
		return t.steps.Steps(activity.Type, activity.DurationMinutes(), distanceKm)
	case domain.ChallengeActiveMinutes:
		return activity.DurationMinutes()
	case domain.ChallengeDistanceKm:
		return distanceKm
	case domain.ChallengeLogActivityCount:
		return 1
	default:
		return 0
	}
}

// ClaimChallengeReward pays the reward of a completed instance exactly once.
// Claiming again returns ErrRewardAlreadyClaimed.
func (t *ChallengeTracker) ClaimChallengeReward(ctx context.Context, userID, instanceID string) (ClaimResult, error) {
	unlock, err := t.locker.Lock(ctx, lockKey("challenges", userID))
	if err != nil {
		return ClaimResult{}, fmt.Errorf("lock challenges for %s: %w", userID, err)
	}
	defer unlock()

	instance, err := t.store.GetInstance(ctx, instanceID)
	if err != nil {
		return ClaimResult{}, domain.PersistenceError("get challenge instance", err)
	}
	if instance == nil || instance.UserID != userID {
		return ClaimResult{}, domain.ErrChallengeInstanceNotFound
	}
	if !instance.Completed {
		return ClaimResult{}, domain.ErrChallengeNotCompleted
	}
	if instance.RewardClaimed {
		return ClaimResult{}, domain.ErrRewardAlreadyClaimed
	}
	challenge, err := t.challenge(ctx, instance.ChallengeID)
	if err != nil {
		return ClaimResult{}, err
	}
	return t.pay(ctx, *instance, challenge)
}

// pay flips the claimed flag first and credits XP second, so a lost race never pays twice.
func (t *ChallengeTracker) pay(ctx context.Context, instance domain.ChallengeInstance, challenge domain.Challenge) (ClaimResult, error) {
	claimed, err := t.store.ClaimReward(ctx, instance.ID)
	if err != nil {
		return ClaimResult{}, domain.PersistenceError("claim reward", err)
	}
	if !claimed {
		return ClaimResult{}, domain.ErrRewardAlreadyClaimed
	}
	instance.RewardClaimed = true

	accrued, err := t.accrual.Accrue(ctx, Credit{UserID: instance.UserID, XP: challenge.XPReward, Source: SourceChallenge})
	if err != nil {
		t.logger.Printf("reward for instance %s marked claimed but xp credit failed (user=%s xp=%d): %v",
			instance.ID, instance.UserID, challenge.XPReward, err)
		return ClaimResult{}, err
	}
	rewardClaimedCounter.WithLabelValues(challenge.ID).Inc()
	t.publish(ctx, events.Event{
		Type:   events.TypeRewardClaimed,
		UserID: instance.UserID,
		Key:    instance.UserID,
		Payload: events.RewardClaimed{
			UserID:      instance.UserID,
			InstanceID:  instance.ID,
			ChallengeID: challenge.ID,
			XPReward:    challenge.XPReward,
			ClaimedAt:   t.now(),
		},
	})
	return ClaimResult{Instance: instance, XPAwarded: challenge.XPReward, Accrual: accrued}, nil
}

// ListChallenges returns the joinable catalog.
func (t *ChallengeTracker) ListChallenges(ctx context.Context) ([]domain.Challenge, error) {
	challenges, err := t.store.ListChallenges(ctx, true)
	if err != nil {
		return nil, domain.PersistenceError("list challenges", err)
	}
	return challenges, nil
}

// ListInstances returns every instance the user has joined.
func (t *ChallengeTracker) ListInstances(ctx context.Context, userID string) ([]domain.ChallengeInstance, error) {
	instances, err := t.store.ListInstances(ctx, userID)
	if err != nil {
		return nil, domain.PersistenceError("list challenge instances", err)
	}
	return instances, nil
}

func (t *ChallengeTracker) challenge(ctx context.Context, id string) (domain.Challenge, error) {
	challenge, err := t.store.GetChallenge(ctx, id)
	if err != nil {
		return domain.Challenge{}, domain.PersistenceError("get challenge", err)
	}
	if challenge == nil {
		return domain.Challenge{}, fmt.Errorf("%w %s", domain.ErrChallengeNotFound, id)
	}
	return *challenge, nil
}
