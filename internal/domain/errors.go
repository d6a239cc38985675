package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed caller input. The engine itself assumes validated activities.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks an expected, non-fatal duplicate or state clash.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps failures reported by a store.
	ErrPersistence = errors.New("persistence failure")
)

var (
	ErrAlreadyJoined              = fmt.Errorf("%w: challenge already joined", ErrConflict)
	ErrRewardAlreadyClaimed       = fmt.Errorf("%w: reward already claimed", ErrConflict)
	ErrChallengeNotCompleted      = fmt.Errorf("%w: challenge not completed", ErrConflict)
	ErrAchievementAlreadyUnlocked = fmt.Errorf("%w: achievement already unlocked", ErrConflict)
	ErrChallengeInactive          = fmt.Errorf("%w: challenge is not open for joining", ErrConflict)

	ErrProfileNotFound           = fmt.Errorf("%w: profile", ErrNotFound)
	ErrAchievementNotFound       = fmt.Errorf("%w: achievement", ErrNotFound)
	ErrChallengeNotFound         = fmt.Errorf("%w: challenge", ErrNotFound)
	ErrChallengeInstanceNotFound = fmt.Errorf("%w: challenge instance", ErrNotFound)
	ErrGoalNotFound              = fmt.Errorf("%w: goal", ErrNotFound)
)

// PersistenceError wraps a store failure for op so callers can match ErrPersistence
// while keeping the underlying error reachable through errors.Is/As.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// ValidationError builds an ErrValidation with a field level reason.
func ValidationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
