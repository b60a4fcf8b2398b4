package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ShutdownHook is one teardown step. Lower priority runs first, so stop
// accepting traffic (priority 0) before closing stores (priority 10+).
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownHandler runs registered hooks on SIGTERM/SIGINT or on demand.
type ShutdownHandler struct {
	mu      sync.Mutex
	hooks   []ShutdownHook
	timeout time.Duration
	logger  *slog.Logger

	triggerOnce sync.Once
	trigger     chan struct{}
	done        chan struct{}
}

// NewShutdownHandler creates a handler. timeout <= 0 defaults to 30s.
func NewShutdownHandler(timeout time.Duration, logger *slog.Logger) *ShutdownHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownHandler{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// RegisterHook adds a teardown step.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, ShutdownHook{Name: name, Priority: priority, Fn: fn})
	sort.SliceStable(s.hooks, func(i, j int) bool { return s.hooks[i].Priority < s.hooks[j].Priority })
}

// Start listens for termination signals in the background.
func (s *ShutdownHandler) Start() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info("shutdown signal received", "signal", sig.String())
		case <-s.trigger:
		}
		signal.Stop(sigCh)
		s.run()
	}()
}

// Shutdown triggers teardown without a signal.
func (s *ShutdownHandler) Shutdown() {
	s.triggerOnce.Do(func() { close(s.trigger) })
}

// Wait blocks until all hooks have run.
func (s *ShutdownHandler) Wait() { <-s.done }

func (s *ShutdownHandler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		if err := hook.Fn(ctx); err != nil {
			s.logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
		} else {
			s.logger.Debug("shutdown hook complete", "hook", hook.Name)
		}
	}
	close(s.done)
}
