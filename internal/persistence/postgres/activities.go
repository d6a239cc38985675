package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/progression/internal/domain"
)

// SaveActivity implements domain.ActivityStore. A row that already exists is left untouched.
func (s *Store) SaveActivity(ctx context.Context, activity domain.Activity) (bool, error) {
	points := activity.PathPoints
	if points == nil {
		points = []string{}
	}
	const stmt = `INSERT INTO activities (activity_id, user_id, activity_type, started_at, duration_ms, calories_burned, notes, path_points)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (activity_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, stmt,
		activity.ID,
		activity.UserID,
		string(activity.Type),
		activity.StartedAt,
		activity.Duration.Milliseconds(),
		activity.CaloriesBurned,
		activity.Notes,
		points,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetActivity implements domain.ActivityStore.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	const query = `SELECT activity_id, user_id, activity_type, started_at, duration_ms, calories_burned, notes, path_points
        FROM activities WHERE activity_id=$1`

	a, err := scanActivity(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActivitiesSince implements domain.ActivityStore.
func (s *Store) ListActivitiesSince(ctx context.Context, userID string, since time.Time) ([]domain.Activity, error) {
	const query = `SELECT activity_id, user_id, activity_type, started_at, duration_ms, calories_burned, notes, path_points
        FROM activities WHERE user_id=$1 AND started_at >= $2 ORDER BY started_at ASC, activity_id ASC`

	rows, err := s.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a            domain.Activity
		activityType string
		durationMs   int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &activityType, &a.StartedAt, &durationMs, &a.CaloriesBurned, &a.Notes, &a.PathPoints); err != nil {
		return domain.Activity{}, err
	}
	a.Type = domain.ActivityType(activityType)
	a.Duration = time.Duration(durationMs) * time.Millisecond
	return a, nil
}
