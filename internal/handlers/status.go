package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"olympics-etl/internal/config"
	"olympics-etl/internal/database"
)

// StatusHandler serves read-only views of the run history and the
// aggregate tables
type StatusHandler struct {
	db     *database.DB
	config *config.Config
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *database.DB, cfg *config.Config) *StatusHandler {
	return &StatusHandler{
		db:     db,
		config: cfg,
		logger: slog.Default(),
	}
}

// authorize checks the bearer token when STATUS_API_KEY is set. It writes
// the error response and returns false on failure.
func (h *StatusHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	if h.config.StatusAPIKey == "" {
		return true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "Bearer "+h.config.StatusAPIKey {
		h.logger.Warn("Unauthorized status request", "path", r.URL.Path, "has_auth", authHeader != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// HandleHealth handles GET /health. It reports 503 when the database is
// unreachable.
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Health(r.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleRuns handles GET /runs
// Query parameters:
//   - limit: Maximum runs to return (default: 20, max: 500)
//
// Each run includes its task attempts.
func (h *StatusHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		if limit < 1 || limit > 500 {
			http.Error(w, "Limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
	}

	runs, err := h.db.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	for i := range runs {
		attempts, err := h.db.ListAttempts(r.Context(), runs[i].ID)
		if err != nil {
			h.logger.Error("Failed to list attempts", "run_id", runs[i].ID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		runs[i].Attempts = attempts
	}

	h.writeJSON(w, map[string]any{"runs": runs})
}

// parseFilter reads the optional year and season query parameters
func parseFilter(r *http.Request) (database.AggregateFilter, bool) {
	var filter database.AggregateFilter
	query := r.URL.Query()

	if yearStr := query.Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return filter, false
		}
		filter.Year = year
	}
	filter.Season = strings.TrimSpace(query.Get("season"))

	return filter, true
}

// HandleMedalCounts handles GET /medal-counts?year=&season=
func (h *StatusHandler) HandleMedalCounts(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	filter, ok := parseFilter(r)
	if !ok {
		http.Error(w, "Invalid year parameter", http.StatusBadRequest)
		return
	}

	rows, err := h.db.GetMedalCounts(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to get medal counts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]any{"medal_counts": rows})
}

// HandleCountryCounts handles GET /country-counts?year=&season=
func (h *StatusHandler) HandleCountryCounts(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	filter, ok := parseFilter(r)
	if !ok {
		http.Error(w, "Invalid year parameter", http.StatusBadRequest)
		return
	}

	rows, err := h.db.GetCountryCounts(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to get country counts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]any{"country_counts": rows})
}
