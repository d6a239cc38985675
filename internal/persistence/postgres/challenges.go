package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/progression/internal/domain"
)

const (
	challengeColumns = `challenge_id, name, description, challenge_type, activity_type_filter, target_value, duration_days, xp_reward, active_globally`
	instanceColumns  = `instance_id, user_id, challenge_id, start_date, end_date, current_progress, is_completed, reward_claimed`
)

func scanChallenge(row pgx.Row) (domain.Challenge, error) {
	var (
		c             domain.Challenge
		challengeType string
		filterType    string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &challengeType, &filterType, &c.TargetValue, &c.DurationDays, &c.XPReward, &c.ActiveGlobally)
	if err != nil {
		return domain.Challenge{}, err
	}
	c.Type = domain.ChallengeType(challengeType)
	c.ActivityTypeFilter = domain.ActivityType(filterType)
	return c, nil
}

func scanInstance(row pgx.Row) (domain.ChallengeInstance, error) {
	var i domain.ChallengeInstance
	err := row.Scan(&i.ID, &i.UserID, &i.ChallengeID, &i.StartDate, &i.EndDate, &i.CurrentProgress, &i.Completed, &i.RewardClaimed)
	return i, err
}

// ListChallenges implements domain.ChallengeStore.
func (s *Store) ListChallenges(ctx context.Context, globallyActiveOnly bool) ([]domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges`
	if globallyActiveOnly {
		query += ` WHERE active_globally`
	}
	query += ` ORDER BY challenge_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// GetChallenge implements domain.ChallengeStore.
func (s *Store) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	c, err := scanChallenge(s.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE challenge_id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetInstance implements domain.ChallengeStore.
func (s *Store) GetInstance(ctx context.Context, id string) (*domain.ChallengeInstance, error) {
	return s.optionalInstance(s.pool.QueryRow(ctx, `SELECT `+instanceColumns+` FROM challenge_instances WHERE instance_id=$1`, id))
}

// GetActiveInstance implements domain.ChallengeStore.
func (s *Store) GetActiveInstance(ctx context.Context, userID, challengeID string, now time.Time) (*domain.ChallengeInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM challenge_instances
        WHERE user_id=$1 AND challenge_id=$2 AND end_date > $3 ORDER BY start_date DESC LIMIT 1`
	return s.optionalInstance(s.pool.QueryRow(ctx, query, userID, challengeID, now))
}

func (s *Store) optionalInstance(row pgx.Row) (*domain.ChallengeInstance, error) {
	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

// ListInstances implements domain.ChallengeStore.
func (s *Store) ListInstances(ctx context.Context, userID string) ([]domain.ChallengeInstance, error) {
	return s.queryInstances(ctx, `SELECT `+instanceColumns+` FROM challenge_instances WHERE user_id=$1 ORDER BY start_date, instance_id`, userID)
}

// ListOpenInstances implements domain.ChallengeStore.
func (s *Store) ListOpenInstances(ctx context.Context, userID string) ([]domain.ChallengeInstance, error) {
	return s.queryInstances(ctx, `SELECT `+instanceColumns+` FROM challenge_instances WHERE user_id=$1 AND NOT is_completed ORDER BY start_date, instance_id`, userID)
}

func (s *Store) queryInstances(ctx context.Context, query string, args ...interface{}) ([]domain.ChallengeInstance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ChallengeInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, instance)
	}
	return results, rows.Err()
}

// InsertInstanceIfNoneActive implements domain.ChallengeStore. A transaction-scoped
// advisory lock on (user, challenge) makes the existence check and the insert atomic.
func (s *Store) InsertInstanceIfNoneActive(ctx context.Context, instance domain.ChallengeInstance) (bool, error) {
	created := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, instance.UserID+":"+instance.ChallengeID); err != nil {
			return err
		}

		var active bool
		const exists = `SELECT EXISTS (SELECT 1 FROM challenge_instances WHERE user_id=$1 AND challenge_id=$2 AND end_date > $3)`
		if err := tx.QueryRow(ctx, exists, instance.UserID, instance.ChallengeID, instance.StartDate).Scan(&active); err != nil {
			return err
		}
		if active {
			return nil
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO challenge_instances (`+instanceColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (instance_id) DO NOTHING`,
			instance.ID,
			instance.UserID,
			instance.ChallengeID,
			instance.StartDate,
			instance.EndDate,
			instance.CurrentProgress,
			instance.Completed,
			instance.RewardClaimed,
		)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	return created, err
}

// AddInstanceProgress implements domain.ChallengeStore.
func (s *Store) AddInstanceProgress(ctx context.Context, instanceID string, delta, target float64) (domain.ChallengeInstance, bool, error) {
	const stmt = `UPDATE challenge_instances SET
            current_progress = current_progress + $2,
            is_completed = (current_progress + $2 >= $3)
        WHERE instance_id=$1 AND NOT is_completed AND $2 > 0
        RETURNING ` + instanceColumns

	instance, err := scanInstance(s.pool.QueryRow(ctx, stmt, instanceID, delta, target))
	if err == nil {
		return instance, instance.Completed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ChallengeInstance{}, false, err
	}

	existing, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return domain.ChallengeInstance{}, false, err
	}
	if existing == nil {
		return domain.ChallengeInstance{}, false, domain.ErrChallengeInstanceNotFound
	}
	return *existing, false, nil
}

// ClaimReward implements domain.ChallengeStore.
func (s *Store) ClaimReward(ctx context.Context, instanceID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE challenge_instances SET reward_claimed = TRUE WHERE instance_id=$1 AND is_completed AND NOT reward_claimed`,
		instanceID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, domain.ErrChallengeInstanceNotFound
	}
	return false, nil
}
