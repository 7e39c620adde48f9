// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// LeaderboardHandler handles public leaderboard requests.
type LeaderboardHandler struct {
	deps Dependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps Dependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard requests. The response is the
// same merged view the chat "leaderboard public" command returns: best public
// score per user plus any fake entries, ordered best first. Private scores
// never leave the store.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	rows, err := h.deps.PublicLeaderboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", ErrInternal)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
