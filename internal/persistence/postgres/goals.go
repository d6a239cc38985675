package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/progression/internal/domain"
)

const goalColumns = `goal_id, user_id, goal_type, target_value, current_value, start_date, target_date, activity_type_filter, is_active, is_completed, last_updated`

func scanGoal(row pgx.Row) (domain.Goal, error) {
	var (
		g          domain.Goal
		goalType   string
		filterType string
	)
	err := row.Scan(&g.ID, &g.UserID, &goalType, &g.TargetValue, &g.CurrentValue, &g.StartDate, &g.TargetDate, &filterType, &g.Active, &g.Completed, &g.LastUpdated)
	if err != nil {
		return domain.Goal{}, err
	}
	g.Type = domain.GoalType(goalType)
	g.ActivityTypeFilter = domain.ActivityType(filterType)
	return g, nil
}

// CreateGoal implements domain.GoalStore.
func (s *Store) CreateGoal(ctx context.Context, goal domain.Goal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		goal.ID,
		goal.UserID,
		string(goal.Type),
		goal.TargetValue,
		goal.CurrentValue,
		goal.StartDate,
		goal.TargetDate,
		string(goal.ActivityTypeFilter),
		goal.Active,
		goal.Completed,
		goal.LastUpdated,
	)
	return err
}

// GetGoal implements domain.GoalStore.
func (s *Store) GetGoal(ctx context.Context, id string) (*domain.Goal, error) {
	goal, err := scanGoal(s.pool.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE goal_id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &goal, nil
}

// ListGoals implements domain.GoalStore.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	return s.queryGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id=$1 ORDER BY start_date, goal_id`, userID)
}

// ListActiveGoals implements domain.GoalStore.
func (s *Store) ListActiveGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	return s.queryGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id=$1 AND is_active AND NOT is_completed ORDER BY start_date, goal_id`, userID)
}

func (s *Store) queryGoals(ctx context.Context, query string, args ...interface{}) ([]domain.Goal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, goal)
	}
	return results, rows.Err()
}

// AddGoalProgress implements domain.GoalStore. The right-hand side of SET sees the
// pre-update row, so completion is decided on the new value in one statement.
func (s *Store) AddGoalProgress(ctx context.Context, goalID string, delta float64, at time.Time) (domain.Goal, bool, error) {
	const stmt = `UPDATE goals SET
            current_value = current_value + $2,
            last_updated = $3,
            is_completed = (current_value + $2 >= target_value)
        WHERE goal_id=$1 AND is_active AND NOT is_completed AND $2 > 0
        RETURNING ` + goalColumns

	goal, err := scanGoal(s.pool.QueryRow(ctx, stmt, goalID, delta, at))
	if err == nil {
		return goal, goal.Completed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Goal{}, false, err
	}

	existing, err := s.GetGoal(ctx, goalID)
	if err != nil {
		return domain.Goal{}, false, err
	}
	if existing == nil {
		return domain.Goal{}, false, domain.ErrGoalNotFound
	}
	return *existing, false, nil
}
