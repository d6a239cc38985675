// Package postgres implements the progression store ports on Postgres via pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
)

// Store provides Postgres-backed persistence for every progression port.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ProfileStore     = (*Store)(nil)
	_ domain.AchievementStore = (*Store)(nil)
	_ domain.ActivityStore    = (*Store)(nil)
	_ domain.GoalStore        = (*Store)(nil)
	_ domain.ChallengeStore   = (*Store)(nil)
	_ domain.IngestionLedger  = (*Store)(nil)
)

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SeedCatalog installs the achievement and challenge catalogs. Existing rows are kept.
func (s *Store) SeedCatalog(ctx context.Context, achievements []domain.AchievementDefinition, challenges []domain.Challenge) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		const insertAchievement = `INSERT INTO achievements (achievement_id, name, description, kind, target_value, activity_type, window_days)
        VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (achievement_id) DO NOTHING`
		for _, def := range achievements {
			if _, err := tx.Exec(ctx, insertAchievement,
				def.ID, def.Name, def.Description, string(def.Kind), def.TargetValue, string(def.ActivityType), def.WindowDays,
			); err != nil {
				return err
			}
		}

		const insertChallenge = `INSERT INTO challenges (challenge_id, name, description, challenge_type, activity_type_filter, target_value, duration_days, xp_reward, active_globally)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (challenge_id) DO NOTHING`
		for _, c := range challenges {
			if _, err := tx.Exec(ctx, insertChallenge,
				c.ID, c.Name, c.Description, string(c.Type), string(c.ActivityTypeFilter), c.TargetValue, c.DurationDays, c.XPReward, c.ActiveGlobally,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimIngestion implements domain.IngestionLedger.
func (s *Store) ClaimIngestion(ctx context.Context, activityID, step string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO ingestion_ledger (activity_id, step) VALUES ($1,$2) ON CONFLICT (activity_id, step) DO NOTHING`,
		activityID, step,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseIngestion implements domain.IngestionLedger.
func (s *Store) ReleaseIngestion(ctx context.Context, activityID, step string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ingestion_ledger WHERE activity_id=$1 AND step=$2`, activityID, step)
	return err
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
