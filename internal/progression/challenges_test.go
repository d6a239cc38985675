package progression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/persistence/memory"
)

func seededChallenge(t *testing.T, f *fixture, id string) domain.Challenge {
	t.Helper()
	challenge, err := f.store.GetChallenge(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	return *challenge
}

func TestJoinChallengeTwiceConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	challenge := seededChallenge(t, f, "WEEKLY_RUN_10KM")

	instance, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", challenge)
	require.NoError(t, err)
	require.Equal(t, testNow, instance.StartDate)
	require.Equal(t, testNow.Add(7*24*time.Hour), instance.EndDate)

	_, err = f.engine.Challenges.JoinChallenge(ctx, "user-1", challenge)
	require.ErrorIs(t, err, domain.ErrAlreadyJoined)
	require.ErrorIs(t, err, domain.ErrConflict)

	instances, err := f.engine.Challenges.ListInstances(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	f.clock.Advance(7 * 24 * time.Hour)
	again, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", challenge)
	require.NoError(t, err, "an expired instance no longer blocks joining")
	require.NotEqual(t, instance.ID, again.ID)
}

func TestJoinChallengeConcurrentlyCreatesOneInstance(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	f := newFixtureWithStore(store)
	challenge := seededChallenge(t, f, "LOG_YOGA_3TIMES")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		joined   int
		conflict int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Independent engines so only the store primitive arbitrates.
			e := New(storesFor(store), testPolicy())
			_, err := e.Challenges.JoinChallenge(ctx, "user-1", challenge)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				joined++
			} else if errors.Is(err, domain.ErrAlreadyJoined) {
				conflict++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, joined)
	require.Equal(t, 9, conflict)
}

func TestJoinChallengeByID(t *testing.T) {
	store := memory.NewStoreWithCatalog(nil, []domain.Challenge{
		{ID: "OPEN", Type: domain.ChallengeLogActivityCount, TargetValue: 1, DurationDays: 1, ActiveGlobally: true},
		{ID: "RETIRED", Type: domain.ChallengeLogActivityCount, TargetValue: 1, DurationDays: 1},
		{ID: "BROKEN", Type: domain.ChallengeLogActivityCount, TargetValue: 1, ActiveGlobally: true},
	})
	f := newFixtureWithStore(store)
	ctx := context.Background()

	_, err := f.engine.Challenges.JoinChallengeByID(ctx, "user-1", "OPEN")
	require.NoError(t, err)
	_, err = f.engine.Challenges.JoinChallengeByID(ctx, "user-1", "RETIRED")
	require.ErrorIs(t, err, domain.ErrChallengeInactive)
	_, err = f.engine.Challenges.JoinChallengeByID(ctx, "user-1", "MISSING")
	require.ErrorIs(t, err, domain.ErrChallengeNotFound)
	_, err = f.engine.Challenges.JoinChallengeByID(ctx, "user-1", "BROKEN")
	require.ErrorIs(t, err, domain.ErrValidation)

	catalog, err := f.engine.Challenges.ListChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
}

func TestAdvanceChallengesCompletesAndPaysReward(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	instance, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", seededChallenge(t, f, "LOG_YOGA_3TIMES"))
	require.NoError(t, err)

	// Running does not match the yoga filter.
	updates, err := f.engine.Challenges.AdvanceChallenges(ctx, "user-1", activity("run", domain.ActivityRunningGPS, testNow.Add(time.Hour), time.Hour, path(0.1)))
	require.NoError(t, err)
	require.Empty(t, updates)

	for i, id := range []string{"y1", "y2", "y3"} {
		updates, err = f.engine.Challenges.AdvanceChallenges(ctx, "user-1", activity(id, domain.ActivityYoga, testNow.Add(time.Duration(i+1)*time.Hour), time.Hour, nil))
		require.NoError(t, err)
		require.Len(t, updates, 1)
	}
	last := updates[0]
	require.True(t, last.NewlyCompleted)
	require.NotNil(t, last.Reward)
	require.Equal(t, int64(150), last.Reward.XPAwarded)
	require.True(t, last.Instance.RewardClaimed)

	profile, err := f.engine.Accrual.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(150), profile.XPTotal)

	_, err = f.engine.Challenges.ClaimChallengeReward(ctx, "user-1", instance.ID)
	require.ErrorIs(t, err, domain.ErrRewardAlreadyClaimed)
	require.Len(t, f.publisher.ofType(events.TypeChallengeCompleted), 1)
	require.Len(t, f.publisher.ofType(events.TypeRewardClaimed), 1)
}

func TestChallengeWindowIsHalfOpen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	instance, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", seededChallenge(t, f, "DAILY_STEPS_5K"))
	require.NoError(t, err)

	updates, err := f.engine.Challenges.AdvanceChallenges(ctx, "user-1", activity("w-end", domain.ActivityWalking, instance.EndDate, time.Hour, nil))
	require.NoError(t, err)
	require.Empty(t, updates, "the end instant is outside the window")

	updates, err = f.engine.Challenges.AdvanceChallenges(ctx, "user-1", activity("w-start", domain.ActivityWalking, instance.StartDate, 10*time.Minute, nil))
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.InDelta(t, 1000, updates[0].Instance.CurrentProgress, 1e-9)
}

func TestClaimChallengeRewardTwiceAddsXPOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	instance, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", seededChallenge(t, f, "WEEKLY_RUN_10KM"))
	require.NoError(t, err)

	_, err = f.engine.Challenges.ClaimChallengeReward(ctx, "user-1", instance.ID)
	require.ErrorIs(t, err, domain.ErrChallengeNotCompleted)

	// Complete directly through the store so the reward stays unclaimed.
	_, completed, err := f.store.AddInstanceProgress(ctx, instance.ID, 10, 10)
	require.NoError(t, err)
	require.True(t, completed)

	_, err = f.engine.Challenges.ClaimChallengeReward(ctx, "user-2", instance.ID)
	require.ErrorIs(t, err, domain.ErrChallengeInstanceNotFound)

	result, err := f.engine.Challenges.ClaimChallengeReward(ctx, "user-1", instance.ID)
	require.NoError(t, err)
	require.Equal(t, int64(250), result.XPAwarded)
	require.True(t, result.Instance.RewardClaimed)

	_, err = f.engine.Challenges.ClaimChallengeReward(ctx, "user-1", instance.ID)
	require.ErrorIs(t, err, domain.ErrRewardAlreadyClaimed)

	profile, err := f.engine.Accrual.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(250), profile.XPTotal)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	store := memory.NewStore()
	f := newFixtureWithStore(store)
	ctx := context.Background()
	instance, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", seededChallenge(t, f, "WEEKLY_RUN_10KM"))
	require.NoError(t, err)
	_, _, err = store.AddInstanceProgress(ctx, instance.ID, 10, 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := New(storesFor(store), testPolicy())
			_, _ = e.Challenges.ClaimChallengeReward(ctx, "user-1", instance.ID)
		}()
	}
	wg.Wait()

	profile, err := f.engine.Accrual.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(250), profile.XPTotal)
}

func TestAdvanceSkipsInstancesOfRemovedChallenges(t *testing.T) {
	store := memory.NewStoreWithCatalog(nil, nil)
	f := newFixtureWithStore(store)
	ctx := context.Background()
	_, err := store.InsertInstanceIfNoneActive(ctx, domain.ChallengeInstance{
		ID: "orphan", UserID: "user-1", ChallengeID: "GONE", StartDate: testNow, EndDate: testNow.Add(time.Hour),
	})
	require.NoError(t, err)

	updates, err := f.engine.Challenges.AdvanceChallenges(ctx, "user-1", activity("a", domain.ActivityYoga, testNow, time.Minute, nil))
	require.NoError(t, err)
	require.Empty(t, updates)
}

func TestChallengeProgressIsMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	catalog := []domain.Challenge{
		{ID: "MINUTES_120", Type: domain.ChallengeActiveMinutes, TargetValue: 120, DurationDays: 7, XPReward: 50, ActiveGlobally: true},
		{ID: "DISTANCE_5KM", Type: domain.ChallengeDistanceKm, TargetValue: 5, DurationDays: 7, XPReward: 50, ActiveGlobally: true},
	}
	types := []domain.ActivityType{domain.ActivityRunningGPS, domain.ActivityYoga, domain.ActivityWalking, domain.ActivityCyclingGPS}

	properties.Property("challenge progress never decreases, also after completion", prop.ForAll(
		func(picks []int) bool {
			f := newFixtureWithStore(memory.NewStoreWithCatalog(nil, catalog))
			ctx := context.Background()
			var instanceIDs []string
			for _, challenge := range catalog {
				instance, err := f.engine.Challenges.JoinChallenge(ctx, "user-1", challenge)
				if err != nil {
					return false
				}
				instanceIDs = append(instanceIDs, instance.ID)
			}

			previous := make(map[string]domain.ChallengeInstance)
			for i, pick := range picks {
				started := testNow.Add(time.Duration(i+1) * time.Minute)
				a := activity("a"+string(rune('a'+i%26)), types[pick%len(types)], started, time.Duration(pick+1)*time.Minute, path(float64(pick)/100))
				if _, err := f.engine.Challenges.AdvanceChallenges(ctx, "user-1", a); err != nil {
					return false
				}
				for _, id := range instanceIDs {
					stored, err := f.store.GetInstance(ctx, id)
					if err != nil || stored == nil {
						return false
					}
					before := previous[id]
					if stored.CurrentProgress < before.CurrentProgress {
						return false
					}
					if before.Completed && (!stored.Completed || stored.CurrentProgress != before.CurrentProgress) {
						return false
					}
					if before.RewardClaimed && !stored.RewardClaimed {
						return false
					}
					previous[id] = *stored
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
