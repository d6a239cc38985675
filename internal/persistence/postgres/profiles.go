package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/observability"
)

const profileColumns = `user_id, display_name, email, xp_total, level, created_at, updated_at`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Email, &p.XPTotal, &p.Level, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProfile implements domain.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile implements domain.ProfileStore. The row lock taken by SELECT ... FOR UPDATE
// serializes concurrent accruals for the same user.
func (s *Store) UpsertProfile(ctx context.Context, seed domain.Profile, mutate func(*domain.Profile)) (domain.Profile, error) {
	if seed.Level == 0 {
		seed.Level = 1
	}
	var profile domain.Profile
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		const insert = `INSERT INTO profiles (` + profileColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (user_id) DO NOTHING`
		if _, err := tx.Exec(ctx, insert,
			seed.UserID, seed.DisplayName, seed.Email, seed.XPTotal, seed.Level, seed.CreatedAt, seed.UpdatedAt,
		); err != nil {
			return err
		}

		var err error
		profile, err = scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1 FOR UPDATE`, seed.UserID))
		if err != nil {
			return err
		}
		if mutate != nil {
			mutate(&profile)
		}

		const update = `UPDATE profiles SET display_name=$2, email=$3, xp_total=$4, level=$5, updated_at=$6 WHERE user_id=$1`
		_, err = tx.Exec(ctx, update, profile.UserID, profile.DisplayName, profile.Email, profile.XPTotal, profile.Level, profile.UpdatedAt)
		return err
	})
	if err != nil {
		return domain.Profile{}, err
	}
	observability.RecordProfileUpdated(profile.UpdatedAt)
	return profile, nil
}

// ListTopByXP implements domain.ProfileStore.
func (s *Store) ListTopByXP(ctx context.Context, after *domain.LeaderboardCursor, limit int) ([]domain.Profile, error) {
	args := []interface{}{limit}
	query := `SELECT ` + profileColumns + ` FROM profiles`
	if after != nil {
		query += ` WHERE (xp_total < $2) OR (xp_total = $2 AND user_id > $3)`
		args = append(args, after.XPTotal, after.UserID)
	}
	query += ` ORDER BY xp_total DESC, user_id ASC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Profile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, profile)
	}
	return results, rows.Err()
}
