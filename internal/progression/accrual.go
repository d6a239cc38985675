package progression

import (
	"context"
	"math"
	"strings"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/policy"
)

// XP sources used for metrics labels.
const (
	SourceActivity    = "activity"
	SourceAchievement = "achievement"
	SourceChallenge   = "challenge"
)

// Credit is one XP delta to apply to a profile.
type Credit struct {
	UserID string
	XP     int64
	Source string
	// Identity, when set, refreshes the profile's display name and email.
	Identity *domain.Identity
}

// AccrualResult reports the profile state after an accrual.
type AccrualResult struct {
	UserID        string
	XPTotal       int64
	Level         int
	PreviousLevel int
	Awarded       int64
}

// LeveledUp reports whether the accrual crossed at least one threshold.
func (r AccrualResult) LeveledUp() bool {
	return r.Level > r.PreviousLevel
}

// Accrual applies XP deltas to profiles and keeps the level consistent with XP.
type Accrual struct {
	profiles domain.ProfileStore
	levels   policy.LevelLedger
	settings
}

// NewAccrual builds the accrual service over profiles.
func NewAccrual(profiles domain.ProfileStore, levels policy.LevelLedger, opts ...Option) *Accrual {
	return &Accrual{profiles: profiles, levels: levels, settings: newSettings(opts)}
}

// Accrue adds credit.XP to the user's profile, creating it on first use. Deltas of zero
// or less leave the profile untouched and return its current state.
func (a *Accrual) Accrue(ctx context.Context, credit Credit) (AccrualResult, error) {
	userID := strings.TrimSpace(credit.UserID)
	if userID == "" {
		return AccrualResult{}, domain.ValidationError("user id is required")
	}
	if credit.XP <= 0 {
		return a.current(ctx, userID)
	}

	now := a.now()
	seed := domain.Profile{UserID: userID, Level: 1, CreatedAt: now, UpdatedAt: now}
	if credit.Identity != nil {
		seed.DisplayName = credit.Identity.DisplayName
		seed.Email = credit.Identity.Email
	}

	var previous int
	profile, err := a.profiles.UpsertProfile(ctx, seed, func(p *domain.Profile) {
		previous = a.levels.LevelForXP(p.XPTotal)
		if id := credit.Identity; id != nil {
			if id.DisplayName != "" && id.DisplayName != p.DisplayName {
				p.DisplayName = id.DisplayName
			}
			if id.Email != "" && id.Email != p.Email {
				p.Email = id.Email
			}
		}
		p.XPTotal = addXP(p.XPTotal, credit.XP)
		p.Level = a.levels.LevelForXP(p.XPTotal)
		p.UpdatedAt = now
	})
	if err != nil {
		return AccrualResult{}, domain.PersistenceError("accrue xp", err)
	}

	source := credit.Source
	if source == "" {
		source = SourceActivity
	}
	xpAwardedCounter.WithLabelValues(source).Add(float64(credit.XP))

	result := AccrualResult{
		UserID:        profile.UserID,
		XPTotal:       profile.XPTotal,
		Level:         profile.Level,
		PreviousLevel: previous,
		Awarded:       credit.XP,
	}
	if result.LeveledUp() {
		levelUpCounter.Inc()
		a.publish(ctx, events.Event{
			Type:   events.TypeLevelChanged,
			UserID: userID,
			Key:    userID,
			Payload: events.LevelChanged{
				UserID:        userID,
				PreviousLevel: previous,
				Level:         profile.Level,
				XPTotal:       profile.XPTotal,
				OccurredAt:    now,
			},
		})
	}
	return result, nil
}

// Profile returns the stored profile or ErrProfileNotFound.
func (a *Accrual) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	profile, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, domain.PersistenceError("get profile", err)
	}
	if profile == nil {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return *profile, nil
}

// Leaderboard returns up to limit profiles ordered by XP descending, after the cursor
// when one is given. next is nil on the last page.
func (a *Accrual) Leaderboard(ctx context.Context, after *domain.LeaderboardCursor, limit int) (profiles []domain.Profile, next *domain.LeaderboardCursor, err error) {
	if limit <= 0 {
		limit = 10
	}
	profiles, err = a.profiles.ListTopByXP(ctx, after, limit)
	if err != nil {
		return nil, nil, domain.PersistenceError("list leaderboard", err)
	}
	if len(profiles) == limit {
		last := profiles[len(profiles)-1]
		next = &domain.LeaderboardCursor{XPTotal: last.XPTotal, UserID: last.UserID}
	}
	return profiles, next, nil
}

// Levels exposes the ledger used to derive levels.
func (a *Accrual) Levels() policy.LevelLedger {
	return a.levels
}

func (a *Accrual) current(ctx context.Context, userID string) (AccrualResult, error) {
	profile, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		return AccrualResult{}, domain.PersistenceError("get profile", err)
	}
	if profile == nil {
		return AccrualResult{UserID: userID, Level: 1, PreviousLevel: 1}, nil
	}
	return AccrualResult{
		UserID:        userID,
		XPTotal:       profile.XPTotal,
		Level:         profile.Level,
		PreviousLevel: profile.Level,
	}, nil
}

func addXP(total, delta int64) int64 {
	if total > math.MaxInt64-delta {
		return math.MaxInt64
	}
	return total + delta
}
