package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/geo"
)

// ActivityHistory is the slice of the activity store the achievement predicates read.
type ActivityHistory interface {
	ListActivitiesSince(ctx context.Context, userID string, since time.Time) ([]domain.Activity, error)
}

// UnlockResult describes one achievement earned by an activity.
type UnlockResult struct {
	Achievement domain.AchievementDefinition
	Unlock      domain.AchievementUnlock
	Accrual     AccrualResult
}

// AchievementEngine evaluates unlock predicates and grants the unlock bonus at most once.
type AchievementEngine struct {
	catalog domain.AchievementStore
	history ActivityHistory
	accrual *Accrual
	bonus   int64
	settings
}

// NewAchievementEngine wires the engine. bonus is the XP granted per unlock.
func NewAchievementEngine(catalog domain.AchievementStore, history ActivityHistory, accrual *Accrual, bonus int64, opts ...Option) *AchievementEngine {
	return &AchievementEngine{
		catalog:  catalog,
		history:  history,
		accrual:  accrual,
		bonus:    bonus,
		settings: newSettings(opts),
	}
}

// CheckAchievements evaluates every catalog entry the user has not unlocked yet against
// activity. A failure on one entry does not stop the others; the returned error joins
// every failure.
func (e *AchievementEngine) CheckAchievements(ctx context.Context, userID string, activity domain.Activity) ([]UnlockResult, error) {
	unlock, err := e.locker.Lock(ctx, lockKey("achievements", userID))
	if err != nil {
		return nil, fmt.Errorf("lock achievements for %s: %w", userID, err)
	}
	defer unlock()

	definitions, err := e.catalog.ListAchievements(ctx)
	if err != nil {
		return nil, domain.PersistenceError("list achievements", err)
	}
	existing, err := e.catalog.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, domain.PersistenceError("list unlocks", err)
	}
	unlocked := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		unlocked[u.AchievementID] = struct{}{}
	}

	eval := &evaluation{
		userID:     userID,
		activity:   activity,
		distanceKm: geo.PathDistanceKm(activity.PathPoints),
		history:    e.history,
		location:   e.location,
	}

	var (
		results []UnlockResult
		errs    []error
	)
	for _, def := range definitions {
		if _, ok := unlocked[def.ID]; ok {
			continue
		}
		satisfied, err := eval.satisfies(ctx, def)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				e.logger.Printf("skip achievement %s for user %s: %v", def.ID, userID, err)
				continue
			}
			errs = append(errs, fmt.Errorf("achievement %s: %w", def.ID, err))
			continue
		}
		if !satisfied {
			continue
		}
		result, created, err := e.grant(ctx, userID, def)
		if err != nil {
			errs = append(errs, fmt.Errorf("achievement %s: %w", def.ID, err))
			continue
		}
		if created {
			results = append(results, result)
		}
	}
	return results, errors.Join(errs...)
}

// Catalog lists every achievement definition, ordered by ID.
func (e *AchievementEngine) Catalog(ctx context.Context) ([]domain.AchievementDefinition, error) {
	definitions, err := e.catalog.ListAchievements(ctx)
	if err != nil {
		return nil, domain.PersistenceError("list achievements", err)
	}
	return definitions, nil
}

// Definition returns one catalog entry.
func (e *AchievementEngine) Definition(ctx context.Context, id string) (domain.AchievementDefinition, error) {
	def, err := e.catalog.GetAchievement(ctx, id)
	if err != nil {
		return domain.AchievementDefinition{}, domain.PersistenceError("get achievement", err)
	}
	if def == nil {
		return domain.AchievementDefinition{}, domain.ErrAchievementNotFound
	}
	return *def, nil
}

// Unlocks returns the achievements the user has earned.
func (e *AchievementEngine) Unlocks(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	unlocks, err := e.catalog.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, domain.PersistenceError("list unlocks", err)
	}
	return unlocks, nil
}

func (e *AchievementEngine) grant(ctx context.Context, userID string, def domain.AchievementDefinition) (UnlockResult, bool, error) {
	record := domain.AchievementUnlock{
		ID:            uuid.NewString(),
		UserID:        userID,
		AchievementID: def.ID,
		UnlockedAt:    e.now(),
	}
	created, err := e.catalog.InsertUnlock(ctx, record)
	if err != nil {
		return UnlockResult{}, false, domain.PersistenceError("insert unlock", err)
	}
	if !created {
		// Another pass won the conditional insert; the bonus is theirs to pay.
		return UnlockResult{}, false, nil
	}
	unlockCounter.WithLabelValues(def.ID).Inc()

	accrued, err := e.accrual.Accrue(ctx, Credit{UserID: userID, XP: e.bonus, Source: SourceAchievement})
	if err != nil {
		return UnlockResult{}, true, err
	}
	e.publish(ctx, events.Event{
		Type:   events.TypeAchievementUnlocked,
		UserID: userID,
		Key:    userID,
		Payload: events.AchievementUnlocked{
			UserID:        userID,
			AchievementID: def.ID,
			Name:          def.Name,
			XPAwarded:     e.bonus,
			UnlockedAt:    record.UnlockedAt,
		},
	})
	return UnlockResult{Achievement: def, Unlock: record, Accrual: accrued}, true, nil
}

// evaluation holds the per-activity state shared by every predicate in one pass.
type evaluation struct {
	userID     string
	activity   domain.Activity
	distanceKm float64
	history    ActivityHistory
	location   *time.Location

	lifetime []domain.Activity
	loaded   bool
}

func (ev *evaluation) satisfies(ctx context.Context, def domain.AchievementDefinition) (bool, error) {
	act := ev.activity
	switch def.Kind {
	case domain.AchievementFirstActivityType:
		return matchesType(def.ActivityType, act.Type), nil
	case domain.AchievementDistanceSingle:
		return matchesType(def.ActivityType, act.Type) && ev.distanceKm >= def.TargetValue, nil
	case domain.AchievementTimeOfDay:
		if !matchesType(def.ActivityType, act.Type) {
			return false, nil
		}
		local := act.StartedAt.In(ev.location)
		hour := float64(local.Hour()) + float64(local.Minute())/60 + float64(local.Second())/3600
		return hour < def.TargetValue, nil
	case domain.AchievementActivitiesInWindow:
		if def.WindowDays <= 0 {
			return false, nil
		}
		start := act.StartedAt.Add(-time.Duration(def.WindowDays) * 24 * time.Hour)
		activities, err := ev.since(ctx, start)
		if err != nil {
			return false, err
		}
		count := 0
		for _, a := range activities {
			if a.StartedAt.After(act.StartedAt) || !matchesType(def.ActivityType, a.Type) {
				continue
			}
			count++
		}
		return float64(count) >= def.TargetValue, nil
	case domain.AchievementLifetimeActivityCount:
		activities, err := ev.all(ctx)
		if err != nil {
			return false, err
		}
		count := 0
		for _, a := range activities {
			if matchesType(def.ActivityType, a.Type) {
				count++
			}
		}
		return float64(count) >= def.TargetValue, nil
	case domain.AchievementLifetimeDistanceType:
		activities, err := ev.all(ctx)
		if err != nil {
			return false, err
		}
		total := 0.0
		for _, a := range activities {
			if !matchesType(def.ActivityType, a.Type) {
				continue
			}
			if a.ID == act.ID {
				total += ev.distanceKm
				continue
			}
			total += geo.PathDistanceKm(a.PathPoints)
		}
		return total >= def.TargetValue, nil
	default:
		return false, fmt.Errorf("%w: predicate %q", domain.ErrAchievementNotFound, def.Kind)
	}
}

func (ev *evaluation) all(ctx context.Context) ([]domain.Activity, error) {
	if !ev.loaded {
		activities, err := ev.history.ListActivitiesSince(ctx, ev.userID, time.Time{})
		if err != nil {
			return nil, domain.PersistenceError("list activity history", err)
		}
		ev.lifetime = withActivity(activities, ev.activity)
		ev.loaded = true
	}
	return ev.lifetime, nil
}

func (ev *evaluation) since(ctx context.Context, start time.Time) ([]domain.Activity, error) {
	var source []domain.Activity
	if ev.loaded {
		source = ev.lifetime
	} else {
		activities, err := ev.history.ListActivitiesSince(ctx, ev.userID, start)
		if err != nil {
			return nil, domain.PersistenceError("list activity history", err)
		}
		source = withActivity(activities, ev.activity)
	}
	out := make([]domain.Activity, 0, len(source))
	for _, a := range source {
		if !a.StartedAt.Before(start) {
			out = append(out, a)
		}
	}
	return out, nil
}

// withActivity makes sure the activity being processed is counted exactly once even
// when the save pathway has not made it visible to history queries yet.
func withActivity(history []domain.Activity, current domain.Activity) []domain.Activity {
	for _, a := range history {
		if a.ID == current.ID {
			return history
		}
	}
	return append(history, current)
}

func matchesType(filter, actual domain.ActivityType) bool {
	return filter == "" || filter == actual
}
