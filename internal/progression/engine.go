package progression

import (
	"context"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/policy"
)

// Stores groups the persistence ports the engine needs. Ledger is optional.
type Stores struct {
	Profiles     domain.ProfileStore
	Achievements domain.AchievementStore
	Activities   domain.ActivityStore
	Goals        domain.GoalStore
	Challenges   domain.ChallengeStore
	Ledger       domain.IngestionLedger
}

// Engine bundles the components built over one set of stores and one lock.
type Engine struct {
	Accrual      *Accrual
	Achievements *AchievementEngine
	Goals        *GoalTracker
	Challenges   *ChallengeTracker
	Coordinator  *Coordinator
	Activities   domain.ActivityStore
}

// New wires every component from stores and pol. Options apply to all of them.
func New(stores Stores, pol policy.Policy, opts ...Option) *Engine {
	// Resolve defaults once so every component shares the same locker instance.
	shared := newSettings(opts)
	opts = append(opts, WithLocker(shared.locker))

	accrual := NewAccrual(stores.Profiles, pol.Levels, opts...)
	achievements := NewAchievementEngine(stores.Achievements, stores.Activities, accrual, pol.AchievementXP, opts...)
	goals := NewGoalTracker(stores.Goals, pol.Steps, opts...)
	challenges := NewChallengeTracker(stores.Challenges, accrual, pol.Steps, opts...)
	return &Engine{
		Accrual:      accrual,
		Achievements: achievements,
		Goals:        goals,
		Challenges:   challenges,
		Coordinator:  NewCoordinator(stores.Ledger, pol.Rewards, accrual, achievements, goals, challenges, opts...),
		Activities:   stores.Activities,
	}
}

// Record saves activity through the activity store and runs the ingestion steps.
// When the ID is already stored, the steps run against the stored record.
func (e *Engine) Record(ctx context.Context, activity domain.Activity, identity *domain.Identity) (IngestReport, error) {
	if e.Activities != nil {
		created, err := e.Activities.SaveActivity(ctx, activity)
		if err != nil {
			return IngestReport{}, domain.PersistenceError("save activity", err)
		}
		if !created {
			stored, err := e.Activities.GetActivity(ctx, activity.ID)
			if err != nil {
				return IngestReport{}, domain.PersistenceError("load activity", err)
			}
			if stored != nil {
				activity = *stored
			}
		}
	}
	return e.Coordinator.Ingest(ctx, activity, identity), nil
}
