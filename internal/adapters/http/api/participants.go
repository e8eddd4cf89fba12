package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// ParticipantDependencies moderates participants.
type ParticipantDependencies interface {
	Suppress(ctx context.Context, board, participantID string) error
	Reinstate(ctx context.Context, board, participantID string) (model.RankedEntry, error)
}

// ParticipantHandler handles moderation requests.
type ParticipantHandler struct {
	deps ParticipantDependencies
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(deps ParticipantDependencies) *ParticipantHandler {
	return &ParticipantHandler{deps: deps}
}

type moderationResponse struct {
	Status        string `json:"status"`
	ParticipantID string `json:"participant_id"`
	Rank          int    `json:"rank,omitempty"`
	Score         int64  `json:"score,omitempty"`
}

// HandlePostParticipant handles POST /participants/{id}/suppress and
// POST /participants/{id}/reinstate.
func (h *ParticipantHandler) HandlePostParticipant(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_participant"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/participants/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id, action := parts[0], parts[1]

	switch action {
	case "suppress":
		if err := h.deps.Suppress(r.Context(), board(r), id); err != nil {
			writeUpstreamError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, moderationResponse{Status: "suppressed", ParticipantID: id})
	case "reinstate":
		entry, err := h.deps.Reinstate(r.Context(), board(r), id)
		if err != nil {
			writeUpstreamError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, moderationResponse{
			Status:        "reinstated",
			ParticipantID: id,
			Rank:          entry.Rank,
			Score:         entry.Score,
		})
	default:
		http.NotFound(w, r)
	}
}
