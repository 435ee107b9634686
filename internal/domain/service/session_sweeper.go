package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/pkg/safego"
)

// SweeperConfig controls how often the batch processor reclaims finished
// sessions (§6.6 sessionRetentionMs / sessionSweepIntervalMs).
type SweeperConfig struct {
	RetentionTTL time.Duration
	Interval     time.Duration
	Enabled      bool
}

// SessionSweeper periodically evicts BatchSessions that finished more than
// RetentionTTL ago: a single start/stop goroutine driven by a ticker.
type SessionSweeper struct {
	config SweeperConfig
	sweep  func(now time.Time)
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	running bool
}

// NewSessionSweeper wires a sweeper; sweep is called on every tick with the
// current time and should evict sessions whose FinishedAt is older than
// RetentionTTL.
func NewSessionSweeper(cfg SweeperConfig, sweep func(now time.Time), logger *zap.Logger) *SessionSweeper {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RetentionTTL == 0 {
		cfg.RetentionTTL = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionSweeper{
		config: cfg,
		sweep:  sweep,
		logger: logger.With(zap.String("component", "session_sweeper")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the sweep loop. No-op if disabled or already running.
func (s *SessionSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.Enabled || s.running {
		return
	}
	s.running = true
	s.logger.Info("starting session sweeper",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retention", s.config.RetentionTTL),
	)
	safego.Go(s.logger, "session-sweeper", s.loop)
}

// Stop halts the sweep loop.
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.cancel()
		s.running = false
	}
}

func (s *SessionSweeper) loop() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}
