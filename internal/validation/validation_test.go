package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
)

type sample struct {
	UserID string  `json:"user_id" validate:"required"`
	Email  string  `json:"email,omitempty" validate:"omitempty,email"`
	Target float64 `json:"target_value" validate:"gt=0"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Email: "nope", Target: 0})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "user_id is required")
	require.Contains(t, err.Error(), "email must be a valid email")
	require.Contains(t, err.Error(), "target_value must be greater than 0")
}

func TestStructAcceptsValidInput(t *testing.T) {
	require.NoError(t, Struct(sample{UserID: "u1", Target: 3}))
}
