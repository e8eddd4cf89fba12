package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/podium/internal/domain/model"
)

// CommandDependencies submits score deltas.
type CommandDependencies interface {
	Submit(ctx context.Context, board string, cmd model.ScoreDelta) (model.Outcome, error)
}

// CommandsHandler handles command submissions.
type CommandsHandler struct {
	deps CommandDependencies
}

// NewCommandsHandler creates a new commands handler.
func NewCommandsHandler(deps CommandDependencies) *CommandsHandler {
	return &CommandsHandler{deps: deps}
}

// HandlePostCommand handles POST /commands requests. The status code follows
// the outcome: 200 applied, 409 duplicate, 429 rate limited, 400 invalid.
func (h *CommandsHandler) HandlePostCommand(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_command"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.Submit(r.Context(), board(r), req.command())
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}

	resp := commandResponse{Status: out.Status, NewScore: out.NewScore, NewRank: out.NewRank}
	if out.Err != nil {
		resp.Message = out.Err.Error()
	}
	writeJSON(w, statusOf(out.Status), resp)
}

func statusOf(s model.Status) int {
	switch s {
	case model.StatusApplied:
		return http.StatusOK
	case model.StatusRejectedDuplicate:
		return http.StatusConflict
	case model.StatusRejectedRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}
