// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/engine"
)

// Dependencies required by HTTP handlers. An empty board selects the default
// board.
type Dependencies interface {
	CommandDependencies
	LeaderboardDependencies
	RankDependencies
	ParticipantDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	commandsHandler    *CommandsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	participantHandler *ParticipantHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		commandsHandler:    NewCommandsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		participantHandler: NewParticipantHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/commands", MetricsMiddleware(s.commandsHandler.HandlePostCommand, "commands"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/participants/", MetricsMiddleware(s.participantHandler.HandlePostParticipant, "participants"))
}

// commandRequest mirrors the body of POST /commands.
type commandRequest struct {
	ParticipantID string `json:"participant_id"`
	Delta         int64  `json:"delta"`
	CommandID     uint64 `json:"command_id"`
	SubmittedAt   string `json:"submitted_at"`
}

func (c commandRequest) validate() error {
	switch {
	case strings.TrimSpace(c.ParticipantID) == "":
		return errors.New("missing participant_id")
	case c.CommandID == 0:
		return errors.New("missing command_id")
	case c.Delta == 0:
		return errors.New("delta must not be zero")
	}
	if c.SubmittedAt != "" {
		if _, err := time.Parse(time.RFC3339, c.SubmittedAt); err != nil {
			return errors.New("invalid submitted_at; must be RFC3339")
		}
	}
	return nil
}

func (c commandRequest) command() model.ScoreDelta {
	cmd := model.ScoreDelta{
		ParticipantID: c.ParticipantID,
		Delta:         c.Delta,
		CommandID:     c.CommandID,
		SubmittedAt:   time.Now().UTC(),
	}
	if ts, err := time.Parse(time.RFC3339, c.SubmittedAt); err == nil {
		cmd.SubmittedAt = ts
	}
	return cmd
}

type commandResponse struct {
	Status   model.Status `json:"status"`
	NewScore int64        `json:"new_score"`
	NewRank  int          `json:"new_rank,omitempty"`
	Message  string       `json:"message,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeUpstreamError translates engine and store errors to HTTP statuses.
func writeUpstreamError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, engine.ErrBoardNotFound):
		writeError(w, http.StatusNotFound, "board_not_found", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, repository.ErrParticipantSuppressed),
		errors.Is(err, repository.ErrNotSuppressed):
		writeError(w, http.StatusConflict, "conflict", Wrap(op, err))
	case errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrStoreClosed),
		errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// board reads the optional ?board= selector.
func board(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("board"))
}
