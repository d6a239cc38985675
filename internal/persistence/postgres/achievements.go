package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/progression/internal/domain"
)

const achievementColumns = `achievement_id, name, description, kind, target_value, activity_type, window_days`

func scanAchievement(row pgx.Row) (domain.AchievementDefinition, error) {
	var (
		def          domain.AchievementDefinition
		kind         string
		activityType string
	)
	if err := row.Scan(&def.ID, &def.Name, &def.Description, &kind, &def.TargetValue, &activityType, &def.WindowDays); err != nil {
		return domain.AchievementDefinition{}, err
	}
	def.Kind = domain.AchievementKind(kind)
	def.ActivityType = domain.ActivityType(activityType)
	return def, nil
}

// ListAchievements implements domain.AchievementStore.
func (s *Store) ListAchievements(ctx context.Context) ([]domain.AchievementDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+achievementColumns+` FROM achievements ORDER BY achievement_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.AchievementDefinition
	for rows.Next() {
		def, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, def)
	}
	return results, rows.Err()
}

// GetAchievement implements domain.AchievementStore.
func (s *Store) GetAchievement(ctx context.Context, id string) (*domain.AchievementDefinition, error) {
	def, err := scanAchievement(s.pool.QueryRow(ctx, `SELECT `+achievementColumns+` FROM achievements WHERE achievement_id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &def, nil
}

// ListUnlocks implements domain.AchievementStore.
func (s *Store) ListUnlocks(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT unlock_id, user_id, achievement_id, unlocked_at FROM achievement_unlocks WHERE user_id=$1 ORDER BY unlocked_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.AchievementUnlock
	for rows.Next() {
		var u domain.AchievementUnlock
		if err := rows.Scan(&u.ID, &u.UserID, &u.AchievementID, &u.UnlockedAt); err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// InsertUnlock implements domain.AchievementStore. The (user_id, achievement_id)
// unique constraint decides the winner between concurrent passes.
func (s *Store) InsertUnlock(ctx context.Context, unlock domain.AchievementUnlock) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO achievement_unlocks (unlock_id, user_id, achievement_id, unlocked_at) VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		unlock.ID, unlock.UserID, unlock.AchievementID, unlock.UnlockedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
