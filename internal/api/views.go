package api

import (
	"sort"
	"time"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/policy"
	"example.com/progression/internal/progression"
)

// CreateGoalRequest is the payload for POST /v1/goals.
type CreateGoalRequest struct {
	Type               string     `json:"type" validate:"required,oneof=WEIGHT_TARGET WEEKLY_DISTANCE_RUN WEEKLY_DURATION_CYCLE DAILY_STEP_COUNT ACTIVITY_COUNT"`
	TargetValue        float64    `json:"target_value" validate:"gt=0"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	TargetDate         *time.Time `json:"target_date,omitempty"`
	ActivityTypeFilter string     `json:"activity_type_filter,omitempty"`
}

func (r CreateGoalRequest) toNewGoal(userID string) progression.NewGoal {
	goal := progression.NewGoal{
		UserID:      userID,
		Type:        domain.GoalType(r.Type),
		TargetValue: r.TargetValue,
		TargetDate:  r.TargetDate,
	}
	if r.StartDate != nil {
		goal.StartDate = *r.StartDate
	}
	if r.ActivityTypeFilter != "" {
		goal.ActivityTypeFilter = domain.ParseActivityType(r.ActivityTypeFilter)
	}
	return goal
}

// ProfileView exposes a profile with its level position and unlocked achievements.
type ProfileView struct {
	UserID        string       `json:"user_id"`
	DisplayName   string       `json:"display_name,omitempty"`
	XPTotal       int64        `json:"xp_total"`
	Level         int          `json:"level"`
	XPIntoLevel   int64        `json:"xp_into_level"`
	XPToNextLevel *int64       `json:"xp_to_next_level,omitempty"`
	Achievements  []UnlockView `json:"achievements"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// AchievementView is one catalog entry.
type AchievementView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Kind         string  `json:"kind"`
	TargetValue  float64 `json:"target_value,omitempty"`
	ActivityType string  `json:"activity_type,omitempty"`
	WindowDays   int     `json:"window_days,omitempty"`
}

func toAchievementView(def domain.AchievementDefinition) AchievementView {
	return AchievementView{
		ID:           def.ID,
		Name:         def.Name,
		Description:  def.Description,
		Kind:         string(def.Kind),
		TargetValue:  def.TargetValue,
		ActivityType: string(def.ActivityType),
		WindowDays:   def.WindowDays,
	}
}

// UnlockView is one earned achievement.
type UnlockView struct {
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// LeaderboardEntry is one leaderboard row.
type LeaderboardEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	XPTotal     int64  `json:"xp_total"`
	Level       int    `json:"level"`
}

// LeaderboardResponse packages one leaderboard page.
type LeaderboardResponse struct {
	Items      []LeaderboardEntry `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// ChallengeView is a catalog entry.
type ChallengeView struct {
	ChallengeID        string  `json:"challenge_id"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Type               string  `json:"type"`
	ActivityTypeFilter string  `json:"activity_type_filter,omitempty"`
	TargetValue        float64 `json:"target_value"`
	DurationDays       int     `json:"duration_days"`
	XPReward           int64   `json:"xp_reward"`
}

// ChallengeInstanceView is one user's attempt at a challenge.
type ChallengeInstanceView struct {
	InstanceID      string    `json:"instance_id"`
	ChallengeID     string    `json:"challenge_id"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	CurrentProgress float64   `json:"current_progress"`
	Completed       bool      `json:"completed"`
	RewardClaimed   bool      `json:"reward_claimed"`
}

// ClaimResponse reports a paid challenge reward.
type ClaimResponse struct {
	Instance  ChallengeInstanceView `json:"instance"`
	XPAwarded int64                 `json:"xp_awarded"`
	XPTotal   int64                 `json:"xp_total"`
	Level     int                   `json:"level"`
}

// GoalView exposes a goal.
type GoalView struct {
	GoalID             string     `json:"goal_id"`
	Type               string     `json:"type"`
	Unit               string     `json:"unit"`
	TargetValue        float64    `json:"target_value"`
	CurrentValue       float64    `json:"current_value"`
	StartDate          time.Time  `json:"start_date"`
	TargetDate         *time.Time `json:"target_date,omitempty"`
	ActivityTypeFilter string     `json:"activity_type_filter,omitempty"`
	Active             bool       `json:"active"`
	Completed          bool       `json:"completed"`
}

// IngestResponse summarises what one activity changed.
type IngestResponse struct {
	ActivityID   string                  `json:"activity_id"`
	XPAwarded    int64                   `json:"xp_awarded"`
	XPTotal      *int64                  `json:"xp_total,omitempty"`
	Level        *int                    `json:"level,omitempty"`
	LeveledUp    bool                    `json:"leveled_up"`
	Achievements []string                `json:"achievements"`
	Goals        []GoalView              `json:"goals"`
	Challenges   []ChallengeInstanceView `json:"challenges"`
	Skipped      []string                `json:"skipped,omitempty"`
	Errors       map[string]string       `json:"errors,omitempty"`
}

func toProfileView(p domain.Profile, progress policy.LevelProgress, unlocks []domain.AchievementUnlock) ProfileView {
	view := ProfileView{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		XPTotal:      p.XPTotal,
		Level:        progress.Level,
		XPIntoLevel:  progress.XPIntoLevel,
		Achievements: make([]UnlockView, 0, len(unlocks)),
		UpdatedAt:    p.UpdatedAt,
	}
	if progress.XPToNextLevel != policy.Unreachable {
		next := progress.XPToNextLevel
		view.XPToNextLevel = &next
	}
	sort.Slice(unlocks, func(i, j int) bool { return unlocks[i].UnlockedAt.Before(unlocks[j].UnlockedAt) })
	for _, u := range unlocks {
		view.Achievements = append(view.Achievements, UnlockView{AchievementID: u.AchievementID, UnlockedAt: u.UnlockedAt})
	}
	return view
}

func toChallengeView(c domain.Challenge) ChallengeView {
	return ChallengeView{
		ChallengeID:        c.ID,
		Name:               c.Name,
		Description:        c.Description,
		Type:               string(c.Type),
		ActivityTypeFilter: string(c.ActivityTypeFilter),
		TargetValue:        c.TargetValue,
		DurationDays:       c.DurationDays,
		XPReward:           c.XPReward,
	}
}

func toInstanceView(i domain.ChallengeInstance) ChallengeInstanceView {
	return ChallengeInstanceView{
		InstanceID:      i.ID,
		ChallengeID:     i.ChallengeID,
		StartDate:       i.StartDate,
		EndDate:         i.EndDate,
		CurrentProgress: i.CurrentProgress,
		Completed:       i.Completed,
		RewardClaimed:   i.RewardClaimed,
	}
}

func toGoalView(g domain.Goal) GoalView {
	return GoalView{
		GoalID:             g.ID,
		Type:               string(g.Type),
		Unit:               g.Type.Unit(),
		TargetValue:        g.TargetValue,
		CurrentValue:       g.CurrentValue,
		StartDate:          g.StartDate,
		TargetDate:         g.TargetDate,
		ActivityTypeFilter: string(g.ActivityTypeFilter),
		Active:             g.Active,
		Completed:          g.Completed,
	}
}

func toIngestView(report progression.IngestReport) IngestResponse {
	resp := IngestResponse{
		ActivityID:   report.ActivityID,
		Achievements: make([]string, 0, len(report.Unlocks)),
		Goals:        make([]GoalView, 0, len(report.Goals)),
		Challenges:   make([]ChallengeInstanceView, 0, len(report.Challenges)),
	}
	if report.Reward != nil {
		resp.XPAwarded = report.Reward.Awarded
		resp.LeveledUp = report.Reward.LeveledUp()
	}
	for _, u := range report.Unlocks {
		resp.Achievements = append(resp.Achievements, u.Achievement.ID)
		resp.XPAwarded += u.Accrual.Awarded
		resp.LeveledUp = resp.LeveledUp || u.Accrual.LeveledUp()
	}
	for _, g := range report.Goals {
		resp.Goals = append(resp.Goals, toGoalView(g.Goal))
	}
	for _, c := range report.Challenges {
		resp.Challenges = append(resp.Challenges, toInstanceView(c.Instance))
		if c.Reward != nil {
			resp.XPAwarded += c.Reward.XPAwarded
			resp.LeveledUp = resp.LeveledUp || c.Reward.Accrual.LeveledUp()
		}
	}
	if latest, ok := latestAccrual(report); ok {
		resp.XPTotal = &latest.XPTotal
		resp.Level = &latest.Level
	}
	for _, step := range report.Skipped {
		resp.Skipped = append(resp.Skipped, string(step))
	}
	if len(report.Errors) > 0 {
		resp.Errors = make(map[string]string, len(report.Errors))
		for step, err := range report.Errors {
			resp.Errors[string(step)] = err.Error()
		}
	}
	return resp
}

// latestAccrual returns the accrual with the highest XP total in report. XP never
// decreases, so that is the latest profile state.
func latestAccrual(report progression.IngestReport) (progression.AccrualResult, bool) {
	var (
		best  progression.AccrualResult
		found bool
	)
	consider := func(r progression.AccrualResult) {
		if r.UserID == "" {
			return
		}
		if !found || r.XPTotal > best.XPTotal {
			best, found = r, true
		}
	}
	if report.Reward != nil {
		consider(*report.Reward)
	}
	for _, u := range report.Unlocks {
		consider(u.Accrual)
	}
	for _, c := range report.Challenges {
		if c.Reward != nil {
			consider(c.Reward.Accrual)
		}
	}
	return best, found
}
