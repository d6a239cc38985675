// Package persistence contains helpers shared by the store implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"example.com/progression/internal/domain"
)

// EncodeCursor serialises the leaderboard cursor to an opaque token.
func EncodeCursor(c *domain.LeaderboardCursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%d|%s", c.XPTotal, c.UserID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields nil.
func DecodeCursor(token string) (*domain.LeaderboardCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ValidationError("malformed cursor")
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, domain.ValidationError("malformed cursor")
	}
	xp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, domain.ValidationError("malformed cursor")
	}
	return &domain.LeaderboardCursor{XPTotal: xp, UserID: parts[1]}, nil
}
