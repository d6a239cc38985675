package progression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/geo"
	"example.com/progression/internal/policy"
)

// GoalUpdate describes the effect of one activity on one goal.
type GoalUpdate struct {
	Goal           domain.Goal
	Increment      float64
	NewlyCompleted bool
}

// NewGoal is the input accepted by CreateGoal.
type NewGoal struct {
	UserID             string
	Type               domain.GoalType
	TargetValue        float64
	StartDate          time.Time
	TargetDate         *time.Time
	ActivityTypeFilter domain.ActivityType
}

// GoalTracker advances goal progress from activities.
type GoalTracker struct {
	goals domain.GoalStore
	steps policy.StepModel
	settings
}

// NewGoalTracker wires the tracker over goals.
func NewGoalTracker(goals domain.GoalStore, steps policy.StepModel, opts ...Option) *GoalTracker {
	return &GoalTracker{goals: goals, steps: steps, settings: newSettings(opts)}
}

// AdvanceGoals applies activity to each of the user's active, incomplete goals.
func (t *GoalTracker) AdvanceGoals(ctx context.Context, userID string, activity domain.Activity) ([]GoalUpdate, error) {
	unlock, err := t.locker.Lock(ctx, lockKey("goals", userID))
	if err != nil {
		return nil, fmt.Errorf("lock goals for %s: %w", userID, err)
	}
	defer unlock()

	goals, err := t.goals.ListActiveGoals(ctx, userID)
	if err != nil {
		return nil, domain.PersistenceError("list active goals", err)
	}

	distanceKm := geo.PathDistanceKm(activity.PathPoints)
	var (
		updates []GoalUpdate
		errs    []error
	)
	for _, goal := range goals {
		if !goal.Active || goal.Completed || !goal.InWindow(activity.StartedAt) {
			continue
		}
		if filter := goal.EffectiveFilter(); filter != "" && filter != activity.Type {
			continue
		}
		increment := t.increment(goal.Type, activity, distanceKm)
		if increment <= 0 {
			continue
		}

		updated, completed, err := t.goals.AddGoalProgress(ctx, goal.ID, increment, t.now())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				t.logger.Printf("skip goal %s for user %s: %v", goal.ID, userID, err)
				continue
			}
			errs = append(errs, fmt.Errorf("goal %s: %w", goal.ID, domain.PersistenceError("add goal progress", err)))
			continue
		}
		if completed {
			goalCompletedCounter.WithLabelValues(string(updated.Type)).Inc()
			t.publish(ctx, events.Event{
				Type:   events.TypeGoalCompleted,
				UserID: userID,
				Key:    userID,
				Payload: events.GoalCompleted{
					UserID:       userID,
					GoalID:       updated.ID,
					GoalType:     string(updated.Type),
					TargetValue:  updated.TargetValue,
					CurrentValue: updated.CurrentValue,
					CompletedAt:  updated.LastUpdated,
				},
			})
		}
		updates = append(updates, GoalUpdate{Goal: updated, Increment: increment, NewlyCompleted: completed})
	}
	return updates, errors.Join(errs...)
}

func (t *GoalTracker) increment(goalType domain.GoalType, activity domain.Activity, distanceKm float64) float64 {
	switch goalType {
	case domain.GoalWeeklyDistanceRun:
		return distanceKm
	case domain.GoalWeeklyDurationCycle:
		return activity.Duration.Hours()
	case domain.GoalDailyStepCount:
		return t.steps.Steps(activity.Type, activity.DurationMinutes(), distanceKm)
	case domain.GoalActivityCount:
		return 1
	default:
		// Weight targets are updated manually, never from activities.
		return 0
	}
}

// CreateGoal validates input and stores a new active goal.
func (t *GoalTracker) CreateGoal(ctx context.Context, input NewGoal) (domain.Goal, error) {
	userID := strings.TrimSpace(input.UserID)
	switch {
	case userID == "":
		return domain.Goal{}, domain.ValidationError("user id is required")
	case !input.Type.Known():
		return domain.Goal{}, domain.ValidationError(fmt.Sprintf("unknown goal type %q", input.Type))
	case input.TargetValue <= 0:
		return domain.Goal{}, domain.ValidationError("target value must be positive")
	case input.ActivityTypeFilter != "" && !input.ActivityTypeFilter.Known():
		return domain.Goal{}, domain.ValidationError(fmt.Sprintf("unknown activity type %q", input.ActivityTypeFilter))
	}

	now := t.now()
	start := input.StartDate
	if start.IsZero() {
		start = now
	}
	if input.TargetDate != nil && input.TargetDate.Before(start) {
		return domain.Goal{}, domain.ValidationError("target date precedes start date")
	}

	goal := domain.Goal{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Type:               input.Type,
		TargetValue:        input.TargetValue,
		StartDate:          start,
		TargetDate:         input.TargetDate,
		ActivityTypeFilter: input.ActivityTypeFilter,
		Active:             true,
		LastUpdated:        now,
	}
	if err := t.goals.CreateGoal(ctx, goal); err != nil {
		return domain.Goal{}, domain.PersistenceError("create goal", err)
	}
	return goal, nil
}

// ListGoals returns every goal the user owns.
func (t *GoalTracker) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	goals, err := t.goals.ListGoals(ctx, userID)
	if err != nil {
		return nil, domain.PersistenceError("list goals", err)
	}
	return goals, nil
}
