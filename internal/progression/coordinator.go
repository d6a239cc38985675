package progression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/geo"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/policy"
)

// Step names one isolated consumer run by the coordinator.
type Step string

const (
	StepReward       Step = "reward"
	StepAchievements Step = "achievements"
	StepGoals        Step = "goals"
	StepChallenges   Step = "challenges"
)

// Steps lists every step in the order reports present them.
func Steps() []Step {
	return []Step{StepReward, StepAchievements, StepGoals, StepChallenges}
}

// IngestReport collects the outcome of every step for one activity.
type IngestReport struct {
	ActivityID string
	UserID     string
	Reward     *AccrualResult
	Unlocks    []UnlockResult
	Goals      []GoalUpdate
	Challenges []ChallengeUpdate
	Skipped    []Step
	Errors     map[Step]error
}

// Err joins the per-step failures, or returns nil when every step succeeded.
func (r IngestReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	steps := make([]string, 0, len(r.Errors))
	for step := range r.Errors {
		steps = append(steps, string(step))
	}
	sort.Strings(steps)
	errs := make([]error, 0, len(steps))
	for _, step := range steps {
		errs = append(errs, fmt.Errorf("%s: %w", step, r.Errors[Step(step)]))
	}
	return errors.Join(errs...)
}

// Coordinator runs the progression consumers for one newly persisted activity.
type Coordinator struct {
	ledger       domain.IngestionLedger
	rewards      policy.RewardPolicy
	accrual      *Accrual
	achievements *AchievementEngine
	goals        *GoalTracker
	challenges   *ChallengeTracker
	settings
}

// NewCoordinator wires the coordinator. ledger may be nil, in which case replays are
// not detected.
func NewCoordinator(
	ledger domain.IngestionLedger,
	rewards policy.RewardPolicy,
	accrual *Accrual,
	achievements *AchievementEngine,
	goals *GoalTracker,
	challenges *ChallengeTracker,
	opts ...Option,
) *Coordinator {
	return &Coordinator{
		ledger:       ledger,
		rewards:      rewards,
		accrual:      accrual,
		achievements: achievements,
		goals:        goals,
		challenges:   challenges,
		settings:     newSettings(opts),
	}
}

// Ingest runs the reward, achievement, goal and challenge steps concurrently. A failing
// step never prevents the others from running; failures are reported per step.
// A step that fails before committing any write gives its ledger claim back, so a
// redelivery of the activity runs it again. A partially applied step keeps its claim.
func (c *Coordinator) Ingest(ctx context.Context, activity domain.Activity, identity *domain.Identity) IngestReport {
	report := IngestReport{ActivityID: activity.ID, UserID: activity.UserID}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	// fn reports whether it committed writes that a rerun would apply twice.
	run := func(step Step, fn func(context.Context) (bool, error)) {
		defer wg.Done()
		started := time.Now()
		defer func() { stepDuration.WithLabelValues(string(step)).Observe(time.Since(started).Seconds()) }()

		fresh, err := c.claim(ctx, activity.ID, step)
		if err == nil && !fresh {
			mu.Lock()
			report.Skipped = append(report.Skipped, step)
			mu.Unlock()
			return
		}
		if err != nil {
			c.recordFailure(&mu, &report, step, activity, err)
			return
		}
		committed, err := fn(ctx)
		if err == nil {
			return
		}
		c.recordFailure(&mu, &report, step, activity, err)
		if !committed {
			c.release(ctx, activity.ID, step)
		}
	}

	wg.Add(4)
	go run(StepReward, func(ctx context.Context) (bool, error) {
		xp := c.rewards.Reward(activity.Type, activity.Duration, geo.PathDistanceKm(activity.PathPoints))
		result, err := c.accrual.Accrue(ctx, Credit{UserID: activity.UserID, XP: xp, Source: SourceActivity, Identity: identity})
		if err != nil {
			return false, err
		}
		mu.Lock()
		report.Reward = &result
		mu.Unlock()
		return true, nil
	})
	go run(StepAchievements, func(ctx context.Context) (bool, error) {
		unlocks, err := c.achievements.CheckAchievements(ctx, activity.UserID, activity)
		mu.Lock()
		report.Unlocks = unlocks
		mu.Unlock()
		// Unlocks are gated per (user, achievement), so a rerun cannot pay twice.
		return false, err
	})
	go run(StepGoals, func(ctx context.Context) (bool, error) {
		updates, err := c.goals.AdvanceGoals(ctx, activity.UserID, activity)
		mu.Lock()
		report.Goals = updates
		mu.Unlock()
		return len(updates) > 0, err
	})
	go run(StepChallenges, func(ctx context.Context) (bool, error) {
		updates, err := c.challenges.AdvanceChallenges(ctx, activity.UserID, activity)
		mu.Lock()
		report.Challenges = updates
		mu.Unlock()
		return len(updates) > 0, err
	})
	wg.Wait()

	sort.Slice(report.Skipped, func(i, j int) bool { return stepIndex(report.Skipped[i]) < stepIndex(report.Skipped[j]) })
	observability.RecordActivityIngested(activity.StartedAt)
	return report
}

func (c *Coordinator) claim(ctx context.Context, activityID string, step Step) (bool, error) {
	if c.ledger == nil || activityID == "" {
		return true, nil
	}
	fresh, err := c.ledger.ClaimIngestion(ctx, activityID, string(step))
	if err != nil {
		return false, domain.PersistenceError("claim ingestion", err)
	}
	return fresh, nil
}

func (c *Coordinator) recordFailure(mu *sync.Mutex, report *IngestReport, step Step, activity domain.Activity, err error) {
	stepFailureCounter.WithLabelValues(string(step)).Inc()
	c.logger.Printf("step %s failed (activity=%s user=%s): %v", step, activity.ID, activity.UserID, err)
	mu.Lock()
	defer mu.Unlock()
	if report.Errors == nil {
		report.Errors = make(map[Step]error)
	}
	report.Errors[step] = err
}

func (c *Coordinator) release(ctx context.Context, activityID string, step Step) {
	if c.ledger == nil || activityID == "" {
		return
	}
	if err := c.ledger.ReleaseIngestion(ctx, activityID, string(step)); err != nil {
		c.logger.Printf("release ingestion claim %s/%s: %v", activityID, step, err)
	}
}

func stepIndex(step Step) int {
	for i, s := range Steps() {
		if s == step {
			return i
		}
	}
	return len(Steps())
}
