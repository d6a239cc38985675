package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
)

func TestUpsertProfileSeedsAndMutates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	profile, err := store.UpsertProfile(ctx, domain.Profile{UserID: "u1", DisplayName: "Ada"}, func(p *domain.Profile) {
		p.XPTotal += 100
	})
	require.NoError(t, err)
	require.Equal(t, int64(100), profile.XPTotal)
	require.Equal(t, 1, profile.Level)
	require.Equal(t, "Ada", profile.DisplayName)

	profile, err = store.UpsertProfile(ctx, domain.Profile{UserID: "u1", DisplayName: "ignored"}, func(p *domain.Profile) {
		p.XPTotal += 50
	})
	require.NoError(t, err)
	require.Equal(t, int64(150), profile.XPTotal)
	require.Equal(t, "Ada", profile.DisplayName, "seed only applies on creation")
}

func TestUpsertProfileSerializesConcurrentMutations(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpsertProfile(ctx, domain.Profile{UserID: "u1"}, func(p *domain.Profile) { p.XPTotal += 10 })
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	profile, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(500), profile.XPTotal)
}

func TestListTopByXP(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for id, xp := range map[string]int64{"a": 10, "b": 30, "c": 20} {
		xp := xp
		_, err := store.UpsertProfile(ctx, domain.Profile{UserID: id}, func(p *domain.Profile) { p.XPTotal = xp })
		require.NoError(t, err)
	}

	top, err := store.ListTopByXP(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "b", top[0].UserID)
	require.Equal(t, "c", top[1].UserID)

	rest, err := store.ListTopByXP(ctx, &domain.LeaderboardCursor{XPTotal: top[1].XPTotal, UserID: top[1].UserID}, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "a", rest[0].UserID)
}

func TestInsertUnlockIsConditional(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	created, err := store.InsertUnlock(ctx, domain.AchievementUnlock{ID: "1", UserID: "u1", AchievementID: "FIRST_RUN"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.InsertUnlock(ctx, domain.AchievementUnlock{ID: "2", UserID: "u1", AchievementID: "FIRST_RUN"})
	require.NoError(t, err)
	require.False(t, created)

	unlocks, err := store.ListUnlocks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	require.Equal(t, "1", unlocks[0].ID)
}

func TestListActivitiesSince(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

	for _, a := range []domain.Activity{
		{ID: "a2", UserID: "u1", StartedAt: base.Add(48 * time.Hour)},
		{ID: "a1", UserID: "u1", StartedAt: base},
		{ID: "b1", UserID: "u2", StartedAt: base},
	} {
		created, err := store.SaveActivity(ctx, a)
		require.NoError(t, err)
		require.True(t, created)
	}

	all, err := store.ListActivitiesSince(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a1", all[0].ID)

	recent, err := store.ListActivitiesSince(ctx, "u1", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "a2", recent[0].ID)

	_, err = store.SaveActivity(ctx, domain.Activity{UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSaveActivityKeepsFirstRecord(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

	original := domain.Activity{ID: "a1", UserID: "u1", StartedAt: base, PathPoints: []string{"0,0", "0,0.01"}}
	created, err := store.SaveActivity(ctx, original)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.SaveActivity(ctx, domain.Activity{ID: "a1", UserID: "u1", StartedAt: base, Notes: "edited", PathPoints: []string{"0,0", "0,0.9"}})
	require.NoError(t, err)
	require.False(t, created)
	created, err = store.SaveActivity(ctx, domain.Activity{ID: "a1", UserID: "u2", StartedAt: base})
	require.NoError(t, err)
	require.False(t, created)

	stored, err := store.GetActivity(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, original.PathPoints, stored.PathPoints)
	require.Empty(t, stored.Notes)

	history, err := store.ListActivitiesSince(ctx, "u2", time.Time{})
	require.NoError(t, err)
	require.Empty(t, history)

	missing, err := store.GetActivity(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestAddGoalProgressCompletesOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateGoal(ctx, domain.Goal{ID: "g1", UserID: "u1", Type: domain.GoalActivityCount, TargetValue: 2, Active: true}))

	goal, completed, err := store.AddGoalProgress(ctx, "g1", 1, time.Now())
	require.NoError(t, err)
	require.False(t, completed)
	require.Equal(t, 1.0, goal.CurrentValue)

	goal, completed, err = store.AddGoalProgress(ctx, "g1", 1, time.Now())
	require.NoError(t, err)
	require.True(t, completed)
	require.True(t, goal.Completed)

	goal, completed, err = store.AddGoalProgress(ctx, "g1", 1, time.Now())
	require.NoError(t, err)
	require.False(t, completed)
	require.Equal(t, 2.0, goal.CurrentValue)

	active, err := store.ListActiveGoals(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, active)

	_, _, err = store.AddGoalProgress(ctx, "missing", 1, time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertInstanceIfNoneActive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	first := domain.ChallengeInstance{ID: "i1", UserID: "u1", ChallengeID: "WEEKLY_RUN_10KM", StartDate: start, EndDate: start.Add(7 * 24 * time.Hour)}

	created, err := store.InsertInstanceIfNoneActive(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	second := first
	second.ID = "i2"
	second.StartDate = start.Add(24 * time.Hour)
	created, err = store.InsertInstanceIfNoneActive(ctx, second)
	require.NoError(t, err)
	require.False(t, created)

	third := first
	third.ID = "i3"
	third.StartDate = first.EndDate
	third.EndDate = first.EndDate.Add(7 * 24 * time.Hour)
	created, err = store.InsertInstanceIfNoneActive(ctx, third)
	require.NoError(t, err)
	require.True(t, created, "an expired instance does not block a new join")

	active, err := store.GetActiveInstance(ctx, "u1", "WEEKLY_RUN_10KM", third.StartDate)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "i3", active.ID)
}

func TestClaimRewardCompareAndSwap(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	start := time.Now().UTC()
	_, err := store.InsertInstanceIfNoneActive(ctx, domain.ChallengeInstance{ID: "i1", UserID: "u1", ChallengeID: "LOG_YOGA_3TIMES", StartDate: start, EndDate: start.Add(time.Hour)})
	require.NoError(t, err)

	claimed, err := store.ClaimReward(ctx, "i1")
	require.NoError(t, err)
	require.False(t, claimed, "incomplete instances cannot be claimed")

	_, completed, err := store.AddInstanceProgress(ctx, "i1", 3, 3)
	require.NoError(t, err)
	require.True(t, completed)

	claimed, err = store.ClaimReward(ctx, "i1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = store.ClaimReward(ctx, "i1")
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestClaimIngestion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	fresh, err := store.ClaimIngestion(ctx, "act-1", "goals")
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = store.ClaimIngestion(ctx, "act-1", "goals")
	require.NoError(t, err)
	require.False(t, fresh)

	fresh, err = store.ClaimIngestion(ctx, "act-1", "challenges")
	require.NoError(t, err)
	require.True(t, fresh)

	require.NoError(t, store.ReleaseIngestion(ctx, "act-1", "goals"))
	fresh, err = store.ClaimIngestion(ctx, "act-1", "goals")
	require.NoError(t, err)
	require.True(t, fresh, "a released claim can be taken again")
}

func TestListChallengesFiltersInactive(t *testing.T) {
	store := NewStoreWithCatalog(nil, []domain.Challenge{
		{ID: "open", ActiveGlobally: true},
		{ID: "closed"},
	})
	challenges, err := store.ListChallenges(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	require.Equal(t, "open", challenges[0].ID)

	challenges, err = store.ListChallenges(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, challenges, 2)
}
