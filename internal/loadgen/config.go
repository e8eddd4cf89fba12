// Package loadgen drives a running podium instance over HTTP and checks the
// served leaderboard against a locally computed ranking.
package loadgen

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid load config")

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // base URL of the service
	Board        string        // board to target, empty for the default
	Participants int           // number of distinct participants
	Commands     int           // commands per participant
	MaxDelta     int64         // deltas are drawn from [1, MaxDelta]
	ReplayEvery  int           // resend every Nth command to exercise idempotency, 0 disables
	TopN         int           // leaderboard rows to verify
	Workers      int           // concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	Verbose      bool
}

// Validate reports whether the configuration can drive a run.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Participants <= 0 || c.Commands <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("participants and commands must be positive"))
	case c.MaxDelta <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("max delta must be positive"))
	case c.TopN <= 0 || c.Workers <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("top and workers must be positive"))
	case c.ReplayEvery < 0:
		return errors.Join(ErrInvalidConfig, errors.New("replay interval must not be negative"))
	}
	return nil
}

// Command is one scored command as sent on the wire.
type Command struct {
	ParticipantID string `json:"participant_id"`
	Delta         int64  `json:"delta"`
	CommandID     uint64 `json:"command_id"`
}

// Entry is a leaderboard row.
type Entry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participant_id"`
	Score         int64  `json:"score"`
}

// Stats holds run statistics.
type Stats struct {
	Generated          int
	Submitted          int
	Applied            int
	Duplicate          int
	RateLimited        int
	Invalid            int
	Failed             int
	LeaderboardEntries int
	Mismatches         []string
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
