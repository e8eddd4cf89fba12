package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// Response headers describing the snapshot a leaderboard was served from.
const (
	HeaderSnapshotGeneration = "X-Snapshot-Generation"
	HeaderSnapshotStale      = "X-Snapshot-Stale"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, board string) (*model.Snapshot, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests. The ETag is
// the snapshot digest, so an unchanged leaderboard answers 304.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
		return
	}

	snap, err := h.deps.Leaderboard(r.Context(), board(r))
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}

	etag := `"` + strconv.FormatUint(snap.Digest, 16) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(HeaderSnapshotGeneration, strconv.FormatUint(snap.Generation, 10))
	w.Header().Set(HeaderSnapshotStale, strconv.FormatBool(snap.Stale))

	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap.Ranked(n))
}

func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
