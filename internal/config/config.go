// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Underflow policies.
const (
	UnderflowClamp  = "clamp"
	UnderflowReject = "reject"
)

// Tie-break policies.
const (
	TieBreakIDAsc        = "id_asc"
	TieBreakIDDesc       = "id_desc"
	TieBreakFirstReached = "first_reached"
)

// maxSafeScore mirrors model.MaxSafeScore without importing the domain.
const maxSafeScore int64 = 1<<53 - 1

// Config contains process configuration. It is read once at startup.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Board names the default leaderboard hosted by this process.
	Board string `koanf:"board"`
	// Boards lists additional leaderboards opened at startup.
	Boards []string `koanf:"boards"`

	// TopK is the size of the observed top view.
	TopK int `koanf:"top_k"`
	// SnapshotDepth is the number of entries captured per snapshot. Must be >= TopK.
	SnapshotDepth int `koanf:"snapshot_depth"`
	// SnapshotTTLMS bounds snapshot age.
	SnapshotTTLMS int `koanf:"snapshot_ttl_ms"`

	// Per-participant fixed window.
	RateLimitWindowMS int `koanf:"rate_limit_window_ms"`
	RateLimitMax      int `koanf:"rate_limit_max"`
	RateLimitBlockMS  int `koanf:"rate_limit_block_ms"`

	// InstanceRatePerSec caps accepted commands per second for the whole
	// process. Zero disables the instance bucket.
	InstanceRatePerSec float64 `koanf:"instance_rate_per_sec"`
	InstanceBurst      int     `koanf:"instance_burst"`

	ScoreFloor      int64  `koanf:"score_floor"`
	ScoreCeiling    int64  `koanf:"score_ceiling"`
	UnderflowPolicy string `koanf:"underflow_policy"`
	TieBreak        string `koanf:"tie_break"`
	TrackZero       bool   `koanf:"track_zero"`

	// ScoreOnlyChanges also emits events when a ranked score changes without
	// any position change.
	ScoreOnlyChanges bool `koanf:"score_only_changes"`

	// EventQueueSize bounds the in-memory change-event queue.
	EventQueueSize int `koanf:"event_queue_size"`

	// LedgerPath enables the SQLite replay ledger when set.
	LedgerPath      string `koanf:"ledger_path"`
	LedgerQueueSize int    `koanf:"ledger_queue_size"`

	// NATSURL enables the NATS fan-out bus when set.
	NATSURL           string `koanf:"nats_url"`
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`
	NATSKVBucket      string `koanf:"nats_kv_bucket"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit. Must be <= SnapshotDepth.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// RedocBundle serves the docs page script from this file instead of the CDN.
	RedocBundle string `koanf:"redoc_bundle"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Board:               "global",
		TopK:                10,
		SnapshotDepth:       100,
		SnapshotTTLMS:       5_000,
		RateLimitWindowMS:   60_000,
		RateLimitMax:        10,
		RateLimitBlockMS:    0,
		InstanceRatePerSec:  0,
		InstanceBurst:       0,
		ScoreFloor:          0,
		ScoreCeiling:        maxSafeScore,
		UnderflowPolicy:     UnderflowClamp,
		TieBreak:            TieBreakIDAsc,
		TrackZero:           true,
		EventQueueSize:      10_000,
		LedgerPath:          "",
		LedgerQueueSize:     10_000,
		NATSURL:             "",
		NATSSubjectPrefix:   "podium",
		NATSKVBucket:        "",
		MaxLeaderboardLimit: 100,
	}
}

// SnapshotTTL returns the snapshot TTL as a duration.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLMS) * time.Millisecond
}

// RateLimitWindow returns the fixed window length.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// RateLimitBlock returns the block duration applied once the limit is exceeded.
func (c *Config) RateLimitBlock() time.Duration {
	return time.Duration(c.RateLimitBlockMS) * time.Millisecond
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.Board) == "":
		return fmt.Errorf("%w: board must not be empty", ErrInvalidConfig)
	case c.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	case c.SnapshotDepth < c.TopK:
		return fmt.Errorf("%w: snapshot_depth (%d) must be >= top_k (%d)", ErrInvalidConfig, c.SnapshotDepth, c.TopK)
	case c.SnapshotTTLMS <= 0:
		return fmt.Errorf("%w: snapshot_ttl_ms must be positive", ErrInvalidConfig)
	case c.RateLimitWindowMS <= 0:
		return fmt.Errorf("%w: rate_limit_window_ms must be positive", ErrInvalidConfig)
	case c.RateLimitMax <= 0:
		return fmt.Errorf("%w: rate_limit_max must be positive", ErrInvalidConfig)
	case c.RateLimitBlockMS < 0:
		return fmt.Errorf("%w: rate_limit_block_ms must not be negative", ErrInvalidConfig)
	case c.InstanceRatePerSec < 0:
		return fmt.Errorf("%w: instance_rate_per_sec must not be negative", ErrInvalidConfig)
	case c.InstanceRatePerSec > 0 && c.InstanceBurst <= 0:
		return fmt.Errorf("%w: instance_burst must be positive when instance_rate_per_sec is set", ErrInvalidConfig)
	case c.ScoreFloor >= c.ScoreCeiling:
		return fmt.Errorf("%w: score_floor must be below score_ceiling", ErrInvalidConfig)
	case c.ScoreCeiling > maxSafeScore:
		return fmt.Errorf("%w: score_ceiling exceeds 2^53-1", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: event_queue_size must be positive", ErrInvalidConfig)
	case c.LedgerPath != "" && c.LedgerQueueSize <= 0:
		return fmt.Errorf("%w: ledger_queue_size must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit > c.SnapshotDepth:
		return fmt.Errorf("%w: max_leaderboard_limit (%d) must be <= snapshot_depth (%d)", ErrInvalidConfig, c.MaxLeaderboardLimit, c.SnapshotDepth)
	}

	for _, b := range c.Boards {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("%w: boards must not contain empty names", ErrInvalidConfig)
		}
	}

	switch c.UnderflowPolicy {
	case UnderflowClamp, UnderflowReject:
	default:
		return fmt.Errorf("%w: unknown underflow_policy %q", ErrInvalidConfig, c.UnderflowPolicy)
	}

	switch c.TieBreak {
	case TieBreakIDAsc, TieBreakIDDesc, TieBreakFirstReached:
	default:
		return fmt.Errorf("%w: unknown tie_break %q", ErrInvalidConfig, c.TieBreak)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
