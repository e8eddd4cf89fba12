package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/podium/internal/loadgen"
	"github.com/okian/podium/pkg/logger"
)

// Default configuration constants.
const (
	defaultParticipants = 500
	defaultCommands     = 5
	defaultMaxDelta     = 100
	defaultReplayEvery  = 7
	defaultTopN         = 10
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		board        = flag.String("board", "", "Board to target")
		participants = flag.Int("participants", defaultParticipants, "Distinct participants")
		commands     = flag.Int("commands", defaultCommands, "Commands per participant")
		maxDelta     = flag.Int64("max-delta", defaultMaxDelta, "Largest delta drawn")
		replayEvery  = flag.Int("replay-every", defaultReplayEvery, "Resend every Nth command, 0 disables")
		topN         = flag.Int("top", defaultTopN, "Leaderboard rows to verify")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile      = flag.String("log", "", "Also write logs to this file")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	if err := loadgen.SetupLogging(*logFile, logger.FormatText); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &loadgen.Config{
		BaseURL:      *baseURL,
		Board:        *board,
		Participants: *participants,
		Commands:     *commands,
		MaxDelta:     *maxDelta,
		ReplayEvery:  *replayEvery,
		TopN:         *topN,
		Workers:      *workers,
		Timeout:      *timeout,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		os.Exit(1)
	}
}
