package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/podium/pkg/logger"
)

// Registry hosts several named boards that share one option set.
type Registry struct {
	opts []Option
	log  logger.Logger

	mu      sync.RWMutex
	boards  map[string]*Engine
	started bool
	closed  bool
	runCtx  context.Context
}

// NewRegistry returns an empty registry. opts apply to every board it opens.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:   opts,
		log:    logger.Get().Named("registry"),
		boards: make(map[string]*Engine),
	}
}

// Open returns the engine for board, creating it if needed. A new engine is
// recovered from the ledger and the publisher, and started if the registry
// already is.
func (r *Registry) Open(ctx context.Context, board string) (*Engine, error) {
	board = strings.TrimSpace(board)
	if board == "" {
		return nil, ErrInvalidBoard
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if e, ok := r.boards[board]; ok {
		return e, nil
	}

	e, err := New(board, r.opts...)
	if err != nil {
		return nil, err
	}
	if _, err := e.Recover(ctx); err != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("open board %s: %w", board, err)
	}
	if r.started {
		if err := e.Start(r.runCtx); err != nil {
			_ = e.Close(ctx)
			return nil, fmt.Errorf("start board %s: %w", board, err)
		}
	}
	r.boards[board] = e
	r.log.Info(ctx, "board opened", logger.String("board", board))
	return e, nil
}

// Get returns an open board.
func (r *Registry) Get(board string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.boards[board]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBoardNotFound, board)
	}
	return e, nil
}

// Boards lists open board names in lexical order.
func (r *Registry) Boards() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.boards))
	for name := range r.boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start starts every open board and any opened later.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.started {
		return nil
	}
	for name, e := range r.boards {
		if err := e.Start(ctx); err != nil {
			return fmt.Errorf("start board %s: %w", name, err)
		}
	}
	r.started = true
	r.runCtx = context.WithoutCancel(ctx)
	return nil
}

// Close closes every board, draining their dispatchers.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	boards := make([]*Engine, 0, len(r.boards))
	for _, e := range r.boards {
		boards = append(boards, e)
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range boards {
		if err := e.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close board %s: %w", e.Board(), err))
		}
	}
	return errors.Join(errs...)
}
