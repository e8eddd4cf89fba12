package loadgen

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/podium/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the global logger, teeing to logFile when set.
func SetupLogging(logFile string, format logger.Format) error {
	var w io.Writer = os.Stdout
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
	}
	return logger.InitWith(w, format)
}

// ShowHelp prints usage information.
func ShowHelp() {
	os.Stdout.WriteString(`Podium Load Tool
================

Submits ordered score commands to a running podium instance and verifies the
served leaderboard against a locally computed ranking.

Usage:
  go run ./cmd/load-commands [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -board string        Board to target (default: the service default)
  -participants int    Distinct participants (default 500)
  -commands int        Commands per participant (default 5)
  -max-delta int       Largest delta drawn (default 100)
  -replay-every int    Resend every Nth command, 0 disables (default 7)
  -top int             Leaderboard rows to verify (default 10)
  -workers int         Concurrent submitters (default CPU cores * 2)
  -timeout duration    HTTP request timeout (default 30s)
  -log string          Also write logs to this file
  -verbose             Enable debug logging
  -help                Show this help message

The service rate limit applies per participant; raise PODIUM_RATE_LIMIT_MAX
above -commands to have every command applied.
`)
}
