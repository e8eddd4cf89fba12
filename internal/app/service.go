// Package service wires configuration, the board registry and the outer
// adapters (bus, ledger) into the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/podium/internal/adapters/bus"
	"github.com/okian/podium/internal/adapters/ledger"
	"github.com/okian/podium/internal/adapters/ledger/sqlite"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/engine"
	"github.com/okian/podium/pkg/logger"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	registry  *engine.Registry
	publisher bus.Publisher
	ledger    ledger.Ledger
	nc        *nats.Conn

	// Adapters passed in by the caller are not closed by Stop.
	ownsPublisher bool
	ownsLedger    bool

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher overrides the bus chosen from configuration.
func WithPublisher(p bus.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLedger overrides the ledger opened from configuration.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

// New constructs a new Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.New(context.Background())
	}
	return s
}

// EngineOptions maps configuration onto engine options.
func EngineOptions(cfg *config.Config) []engine.Option {
	return []engine.Option{
		engine.WithTopK(cfg.TopK),
		engine.WithSnapshotDepth(cfg.SnapshotDepth),
		engine.WithSnapshotTTL(cfg.SnapshotTTL()),
		engine.WithRateLimit(cfg.RateLimitMax, cfg.RateLimitWindow(), cfg.RateLimitBlock()),
		engine.WithInstanceRate(cfg.InstanceRatePerSec, cfg.InstanceBurst),
		engine.WithScoreBounds(cfg.ScoreFloor, cfg.ScoreCeiling),
		engine.WithUnderflowPolicy(repository.UnderflowPolicy(cfg.UnderflowPolicy)),
		engine.WithTieBreak(repository.TieBreak(cfg.TieBreak)),
		engine.WithTrackZero(cfg.TrackZero),
		engine.WithScoreOnlyChanges(cfg.ScoreOnlyChanges),
		engine.WithEventQueueSize(cfg.EventQueueSize),
		engine.WithLedgerQueueSize(cfg.LedgerQueueSize),
	}
}

// Start opens the adapters, replays every configured board and starts them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	if err := s.openPublisher(ctx); err != nil {
		return err
	}
	if err := s.openLedger(ctx); err != nil {
		s.closeAdapters(ctx)
		return err
	}

	opts := append(EngineOptions(s.cfg),
		engine.WithPublisher(s.publisher),
		engine.WithLogger(s.logger.Named("engine")),
	)
	if s.ledger != nil {
		opts = append(opts, engine.WithLedger(s.ledger))
	}
	s.registry = engine.NewRegistry(opts...)

	for _, board := range s.boardNames() {
		if _, err := s.registry.Open(ctx, board); err != nil {
			_ = s.registry.Close(ctx)
			s.closeAdapters(ctx)
			return fmt.Errorf("open board %s: %w", board, err)
		}
	}
	if err := s.registry.Start(ctx); err != nil {
		_ = s.registry.Close(ctx)
		s.closeAdapters(ctx)
		return err
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("default_board", s.cfg.Board),
		logger.Int("boards", len(s.registry.Boards())),
		logger.Int("top_k", s.cfg.TopK),
		logger.Bool("nats", s.nc != nil),
		logger.Bool("ledger", s.ledger != nil),
	)
	return nil
}

func (s *Service) boardNames() []string {
	names := []string{s.cfg.Board}
	for _, b := range s.cfg.Boards {
		if b = strings.TrimSpace(b); b != "" && b != s.cfg.Board {
			names = append(names, b)
		}
	}
	return names
}

func (s *Service) openPublisher(ctx context.Context) error {
	if s.publisher != nil {
		return nil
	}
	if s.cfg.NATSURL == "" {
		s.publisher = bus.NewMemoryBus()
		s.ownsPublisher = true
		return nil
	}

	nc, err := nats.Connect(s.cfg.NATSURL, nats.Name("podium"))
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", s.cfg.NATSURL, err)
	}
	nb, err := bus.NewNATSBus(ctx, nc,
		bus.WithSubjectPrefix(s.cfg.NATSSubjectPrefix),
		bus.WithKVBucket(s.cfg.NATSKVBucket),
	)
	if err != nil {
		nc.Close()
		return err
	}
	s.nc = nc
	s.publisher = nb
	s.ownsPublisher = true
	return nil
}

func (s *Service) openLedger(ctx context.Context) error {
	if s.ledger != nil || s.cfg.LedgerPath == "" {
		return nil
	}
	l, err := sqlite.Open(ctx, s.cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	s.ledger = l
	s.ownsLedger = true
	return nil
}

func (s *Service) closeAdapters(ctx context.Context) {
	if s.ownsPublisher && s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn(ctx, "close publisher", logger.Error(err))
		}
		s.publisher = nil
		s.ownsPublisher = false
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
	if s.ownsLedger && s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Warn(ctx, "close ledger", logger.Error(err))
		}
		s.ledger = nil
		s.ownsLedger = false
	}
}

// Stop drains every board and closes the adapters the service opened.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	err := s.registry.Close(ctx)
	s.closeAdapters(ctx)
	s.started = false

	s.logger.Info(ctx, "leaderboard service stopped")
	return err
}

// Registry exposes the board registry, nil before Start.
func (s *Service) Registry() *engine.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Publisher returns the bus events are published on.
func (s *Service) Publisher() bus.Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher
}

func (s *Service) board(name string) (*engine.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return nil, ErrNotStarted
	}
	if name == "" {
		name = s.cfg.Board
	}
	return s.registry.Get(name)
}

// Submit applies a score delta to board.
func (s *Service) Submit(ctx context.Context, board string, cmd model.ScoreDelta) (model.Outcome, error) {
	e, err := s.board(board)
	if err != nil {
		return model.Outcome{}, err
	}
	return e.Apply(ctx, cmd)
}

// Leaderboard returns the cached snapshot of board.
func (s *Service) Leaderboard(ctx context.Context, board string) (*model.Snapshot, error) {
	e, err := s.board(board)
	if err != nil {
		return nil, err
	}
	return e.Leaderboard(ctx)
}

// Rank returns a participant's live rank on board.
func (s *Service) Rank(ctx context.Context, board, participantID string) (model.RankedEntry, error) {
	e, err := s.board(board)
	if err != nil {
		return model.RankedEntry{}, err
	}
	return e.RankOf(ctx, participantID)
}

// Suppress removes a participant from board's ranking.
func (s *Service) Suppress(ctx context.Context, board, participantID string) error {
	e, err := s.board(board)
	if err != nil {
		return err
	}
	return e.Suppress(ctx, participantID)
}

// Reinstate returns a suppressed participant to board's ranking.
func (s *Service) Reinstate(ctx context.Context, board, participantID string) (model.RankedEntry, error) {
	e, err := s.board(board)
	if err != nil {
		return model.RankedEntry{}, err
	}
	return e.Reinstate(ctx, participantID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"default_board": s.cfg.Board,
		"top_k":         s.cfg.TopK,
		"nats":          s.nc != nil,
		"ledger":        s.ledger != nil,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	names := s.registry.Boards()
	boards := make([]engine.Stats, 0, len(names))
	for _, name := range names {
		if e, err := s.registry.Get(name); err == nil {
			boards = append(boards, e.Stats(ctx))
		}
	}
	stats["boards"] = boards
	stats["uptime_seconds"] = int64(time.Since(s.startedAt).Seconds())
	return stats
}
