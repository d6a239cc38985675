// Package api exposes HTTP handlers for the progression service.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/events"
	"example.com/progression/internal/persistence"
	"example.com/progression/internal/progression"
	"example.com/progression/internal/validation"
)

const maxLeaderboardLimit = 100

// Handler serves the progression API over one engine.
type Handler struct {
	engine *progression.Engine
	logger *log.Logger
}

// NewHandler builds a Handler. A nil logger uses the default "[api] " logger.
func NewHandler(engine *progression.Engine, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/activities:ingest", h.ingestActivity)
	mux.HandleFunc("GET /v1/profiles/{userID}", h.getProfile)
	mux.HandleFunc("GET /v1/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /v1/challenges", h.listChallenges)
	mux.HandleFunc("POST /v1/challenges/{id}/join", h.joinChallenge)
	mux.HandleFunc("GET /v1/challenge-instances", h.listInstances)
	mux.HandleFunc("POST /v1/challenge-instances/{id}/claim", h.claimReward)
	mux.HandleFunc("GET /v1/achievements", h.listAchievements)
	mux.HandleFunc("GET /v1/achievements/{id}", h.getAchievement)
	mux.HandleFunc("GET /v1/goals", h.listGoals)
	mux.HandleFunc("POST /v1/goals", h.createGoal)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) ingestActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req events.ActivityFinalized
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.UserID == "" {
		req.UserID = claims.Subject
	}
	if req.UserID != claims.Subject {
		writeError(w, http.StatusForbidden, "forbidden", "activities can only be ingested for the token subject")
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	identity := req.Identity()
	if identity == nil && (claims.DisplayName != "" || claims.Email != "") {
		identity = &domain.Identity{DisplayName: claims.DisplayName, Email: claims.Email}
	}

	report, err := h.engine.Record(r.Context(), req.Activity(), identity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if stepErr := report.Err(); stepErr != nil {
		h.logger.Printf("activity %s for user %s ingested with step failures: %v", report.ActivityID, report.UserID, stepErr)
	}
	writeJSON(w, http.StatusAccepted, toIngestView(report))
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeProgressionRead); !ok {
		return
	}

	userID := r.PathValue("userID")
	profile, err := h.engine.Accrual.Profile(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	unlocks, err := h.engine.Achievements.Unlocks(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(profile, h.engine.Accrual.Levels().Progress(profile.XPTotal), unlocks))
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeProgressionRead); !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxLeaderboardLimit)
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	profiles, next, err := h.engine.Accrual.Leaderboard(r.Context(), cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := LeaderboardResponse{Items: make([]LeaderboardEntry, 0, len(profiles)), NextCursor: persistence.EncodeCursor(next)}
	for _, p := range profiles {
		resp.Items = append(resp.Items, LeaderboardEntry{UserID: p.UserID, DisplayName: p.DisplayName, XPTotal: p.XPTotal, Level: p.Level})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeProgressionRead); !ok {
		return
	}

	challenges, err := h.engine.Challenges.ListChallenges(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		items = append(items, toChallengeView(c))
	}
	writeJSON(w, http.StatusOK, map[string][]ChallengeView{"items": items})
}

func (h *Handler) listAchievements(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeProgressionRead); !ok {
		return
	}

	definitions, err := h.engine.Achievements.Catalog(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]AchievementView, 0, len(definitions))
	for _, def := range definitions {
		items = append(items, toAchievementView(def))
	}
	writeJSON(w, http.StatusOK, map[string][]AchievementView{"items": items})
}

func (h *Handler) getAchievement(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeProgressionRead); !ok {
		return
	}

	def, err := h.engine.Achievements.Definition(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAchievementView(def))
}

func (h *Handler) joinChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	instance, err := h.engine.Challenges.JoinChallengeByID(r.Context(), claims.Subject, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInstanceView(instance))
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeProgressionRead)
	if !ok {
		return
	}

	instances, err := h.engine.Challenges.ListInstances(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]ChallengeInstanceView, 0, len(instances))
	for _, inst := range instances {
		items = append(items, toInstanceView(inst))
	}
	writeJSON(w, http.StatusOK, map[string][]ChallengeInstanceView{"items": items})
}

func (h *Handler) claimReward(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	result, err := h.engine.Challenges.ClaimChallengeReward(r.Context(), claims.Subject, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{
		Instance:  toInstanceView(result.Instance),
		XPAwarded: result.XPAwarded,
		XPTotal:   result.Accrual.XPTotal,
		Level:     result.Accrual.Level,
	})
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeProgressionRead)
	if !ok {
		return
	}

	goals, err := h.engine.Goals.ListGoals(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	items := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		items = append(items, toGoalView(g))
	}
	writeJSON(w, http.StatusOK, map[string][]GoalView{"items": items})
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeProgressionWrite)
	if !ok {
		return
	}

	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	goal, err := h.engine.Goals.CreateGoal(r.Context(), req.toNewGoal(claims.Subject))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalView(goal))
}

// requireScope writes 401/403 and returns false unless the caller holds scope.
// The write scope implies read.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if claims.HasScope(scope) || (scope == auth.ScopeProgressionRead && claims.HasScope(auth.ScopeProgressionWrite)) {
		return claims, true
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
	return nil, false
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
