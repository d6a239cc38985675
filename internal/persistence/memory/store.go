// Package memory implements the progression store ports in process memory for
// local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/progression/internal/domain"
)

// Store implements every domain store port behind a single lock.
type Store struct {
	mu           sync.RWMutex
	profiles     map[string]domain.Profile
	achievements map[string]domain.AchievementDefinition
	unlocks      map[string][]domain.AchievementUnlock
	activities   map[string][]domain.Activity
	owners       map[string]string // activity ID -> user ID
	goals        map[string]domain.Goal
	challenges   map[string]domain.Challenge
	instances    map[string]domain.ChallengeInstance
	ingested     map[string]struct{}
}

var (
	_ domain.ProfileStore     = (*Store)(nil)
	_ domain.AchievementStore = (*Store)(nil)
	_ domain.ActivityStore    = (*Store)(nil)
	_ domain.GoalStore        = (*Store)(nil)
	_ domain.ChallengeStore   = (*Store)(nil)
	_ domain.IngestionLedger  = (*Store)(nil)
)

// NewStore constructs a store seeded with the default achievement and challenge catalogs.
func NewStore() *Store {
	return NewStoreWithCatalog(domain.SeedAchievements(), domain.SeedChallenges())
}

// NewStoreWithCatalog constructs a store with the given catalogs.
func NewStoreWithCatalog(achievements []domain.AchievementDefinition, challenges []domain.Challenge) *Store {
	s := &Store{
		profiles:     make(map[string]domain.Profile),
		achievements: make(map[string]domain.AchievementDefinition),
		unlocks:      make(map[string][]domain.AchievementUnlock),
		activities:   make(map[string][]domain.Activity),
		owners:       make(map[string]string),
		goals:        make(map[string]domain.Goal),
		challenges:   make(map[string]domain.Challenge),
		instances:    make(map[string]domain.ChallengeInstance),
		ingested:     make(map[string]struct{}),
	}
	for _, def := range achievements {
		s.achievements[def.ID] = def
	}
	for _, c := range challenges {
		s.challenges[c.ID] = c
	}
	return s
}

// GetProfile implements domain.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

// UpsertProfile implements domain.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, seed domain.Profile, mutate func(*domain.Profile)) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[seed.UserID]
	if !ok {
		profile = seed
		if profile.Level == 0 {
			profile.Level = 1
		}
	}
	if mutate != nil {
		mutate(&profile)
	}
	s.profiles[profile.UserID] = profile
	return profile, nil
}

// ListTopByXP implements domain.ProfileStore.
func (s *Store) ListTopByXP(ctx context.Context, after *domain.LeaderboardCursor, limit int) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if after != nil && after.Before(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XPTotal != out[j].XPTotal {
			return out[i].XPTotal > out[j].XPTotal
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListAchievements implements domain.AchievementStore.
func (s *Store) ListAchievements(ctx context.Context) ([]domain.AchievementDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AchievementDefinition, 0, len(s.achievements))
	for _, def := range s.achievements {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAchievement implements domain.AchievementStore.
func (s *Store) GetAchievement(ctx context.Context, id string) (*domain.AchievementDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.achievements[id]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

// ListUnlocks implements domain.AchievementStore.
func (s *Store) ListUnlocks(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.AchievementUnlock(nil), s.unlocks[userID]...), nil
}

// InsertUnlock implements domain.AchievementStore.
func (s *Store) InsertUnlock(ctx context.Context, unlock domain.AchievementUnlock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.unlocks[unlock.UserID] {
		if existing.AchievementID == unlock.AchievementID {
			return false, nil
		}
	}
	s.unlocks[unlock.UserID] = append(s.unlocks[unlock.UserID], unlock)
	return true, nil
}

// SaveActivity implements domain.ActivityStore. The first record saved under an ID wins.
func (s *Store) SaveActivity(ctx context.Context, activity domain.Activity) (bool, error) {
	if strings.TrimSpace(activity.ID) == "" || strings.TrimSpace(activity.UserID) == "" {
		return false, domain.ValidationError("activity id and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[activity.ID]; exists {
		return false, nil
	}
	activity.PathPoints = append([]string(nil), activity.PathPoints...)
	s.owners[activity.ID] = activity.UserID
	s.activities[activity.UserID] = append(s.activities[activity.UserID], activity)
	return true, nil
}

// GetActivity implements domain.ActivityStore.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return nil, nil
	}
	for _, a := range s.activities[owner] {
		if a.ID == id {
			a.PathPoints = append([]string(nil), a.PathPoints...)
			return &a, nil
		}
	}
	return nil, nil
}

// ListActivitiesSince implements domain.ActivityStore.
func (s *Store) ListActivitiesSince(ctx context.Context, userID string, since time.Time) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Activity, 0)
	for _, a := range s.activities[userID] {
		if !a.StartedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// CreateGoal implements domain.GoalStore.
func (s *Store) CreateGoal(ctx context.Context, goal domain.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.goals[goal.ID]; exists {
		return domain.ErrConflict
	}
	s.goals[goal.ID] = goal
	return nil
}

// GetGoal implements domain.GoalStore.
func (s *Store) GetGoal(ctx context.Context, id string) (*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goal, ok := s.goals[id]
	if !ok {
		return nil, nil
	}
	return &goal, nil
}

// ListGoals implements domain.GoalStore.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	return s.filterGoals(userID, func(domain.Goal) bool { return true }), nil
}

// ListActiveGoals implements domain.GoalStore.
func (s *Store) ListActiveGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	return s.filterGoals(userID, func(g domain.Goal) bool { return g.Active && !g.Completed }), nil
}

func (s *Store) filterGoals(userID string, keep func(domain.Goal) bool) []domain.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Goal, 0)
	for _, g := range s.goals {
		if g.UserID == userID && keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AddGoalProgress implements domain.GoalStore.
func (s *Store) AddGoalProgress(ctx context.Context, goalID string, delta float64, at time.Time) (domain.Goal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goal, ok := s.goals[goalID]
	if !ok {
		return domain.Goal{}, false, domain.ErrGoalNotFound
	}
	if goal.Completed || !goal.Active || delta <= 0 {
		return goal, false, nil
	}
	goal.CurrentValue += delta
	goal.LastUpdated = at
	completed := goal.CurrentValue >= goal.TargetValue
	if completed {
		goal.Completed = true
	}
	s.goals[goalID] = goal
	return goal, completed, nil
}

// ListChallenges implements domain.ChallengeStore.
func (s *Store) ListChallenges(ctx context.Context, globallyActiveOnly bool) ([]domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		if globallyActiveOnly && !c.ActiveGlobally {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetChallenge implements domain.ChallengeStore.
func (s *Store) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// GetInstance implements domain.ChallengeStore.
func (s *Store) GetInstance(ctx context.Context, id string) (*domain.ChallengeInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instances[id]
	if !ok {
		return nil, nil
	}
	return &instance, nil
}

// GetActiveInstance implements domain.ChallengeStore.
func (s *Store) GetActiveInstance(ctx context.Context, userID, challengeID string, now time.Time) (*domain.ChallengeInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if instance, ok := s.activeLocked(userID, challengeID, now); ok {
		return &instance, nil
	}
	return nil, nil
}

func (s *Store) activeLocked(userID, challengeID string, now time.Time) (domain.ChallengeInstance, bool) {
	for _, instance := range s.instances {
		if instance.UserID == userID && instance.ChallengeID == challengeID && instance.ActiveAt(now) {
			return instance, true
		}
	}
	return domain.ChallengeInstance{}, false
}

// ListInstances implements domain.ChallengeStore.
func (s *Store) ListInstances(ctx context.Context, userID string) ([]domain.ChallengeInstance, error) {
	return s.filterInstances(userID, false), nil
}

// ListOpenInstances implements domain.ChallengeStore.
func (s *Store) ListOpenInstances(ctx context.Context, userID string) ([]domain.ChallengeInstance, error) {
	return s.filterInstances(userID, true), nil
}

func (s *Store) filterInstances(userID string, openOnly bool) []domain.ChallengeInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChallengeInstance, 0)
	for _, instance := range s.instances {
		if instance.UserID != userID || (openOnly && instance.Completed) {
			continue
		}
		out = append(out, instance)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InsertInstanceIfNoneActive implements domain.ChallengeStore.
func (s *Store) InsertInstanceIfNoneActive(ctx context.Context, instance domain.ChallengeInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activeLocked(instance.UserID, instance.ChallengeID, instance.StartDate); ok {
		return false, nil
	}
	if _, exists := s.instances[instance.ID]; exists {
		return false, nil
	}
	s.instances[instance.ID] = instance
	return true, nil
}

// AddInstanceProgress implements domain.ChallengeStore.
func (s *Store) AddInstanceProgress(ctx context.Context, instanceID string, delta, target float64) (domain.ChallengeInstance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, ok := s.instances[instanceID]
	if !ok {
		return domain.ChallengeInstance{}, false, domain.ErrChallengeInstanceNotFound
	}
	if instance.Completed || delta <= 0 {
		return instance, false, nil
	}
	instance.CurrentProgress += delta
	completed := instance.CurrentProgress >= target
	if completed {
		instance.Completed = true
	}
	s.instances[instanceID] = instance
	return instance, completed, nil
}

// ClaimReward implements domain.ChallengeStore.
func (s *Store) ClaimReward(ctx context.Context, instanceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, ok := s.instances[instanceID]
	if !ok {
		return false, domain.ErrChallengeInstanceNotFound
	}
	if !instance.Completed || instance.RewardClaimed {
		return false, nil
	}
	instance.RewardClaimed = true
	s.instances[instanceID] = instance
	return true, nil
}

// ClaimIngestion implements domain.IngestionLedger.
func (s *Store) ClaimIngestion(ctx context.Context, activityID, step string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activityID + "/" + step
	if _, seen := s.ingested[key]; seen {
		return false, nil
	}
	s.ingested[key] = struct{}{}
	return true, nil
}

// ReleaseIngestion implements domain.IngestionLedger.
func (s *Store) ReleaseIngestion(ctx context.Context, activityID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ingested, activityID+"/"+step)
	return nil
}
