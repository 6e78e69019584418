package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bt-bridge/gemini-live/shared"
	"go.uber.org/zap"
)

const (
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBackoff     = 3 * time.Second
	// DefaultReconnectStableAfter is how long a reconnected session must stay up before the
	// attempt count is cleared.
	DefaultReconnectStableAfter = 30 * time.Second
)

// Connector is what the supervisor re-runs after a drop. *Session satisfies it.
type Connector interface {
	Connect(ctx context.Context) error
}

type SupervisorOptions struct {
	MaxAttempts int
	// Delay is the fixed wait before every attempt.
	Delay time.Duration
	// StableAfter is the uptime after a successful attempt that clears the attempt count.
	StableAfter time.Duration
	Metrics     *Metrics
}

// Supervisor reconnects a session after session-level drops. Consecutive attempts are bounded by
// MaxAttempts. An attempt whose session drops before it returns counts as failed, and the count is
// only cleared once a reconnected session has stayed up for StableAfter. After the last attempt it
// reports that a manual reconnect is required and stays idle until Reset.
type Supervisor struct {
	logger shared.LoggerAdapter
	target Connector
	opts   SupervisorOptions

	mu        sync.Mutex
	enabled   bool
	attempts  int
	gaveUp    bool
	epoch     uint64
	timer     *time.Timer
	cancel    context.CancelFunc
	stable    *time.Timer
	stableSeq uint64
	// dropped holds a drop reported while an attempt was running.
	dropped string
	hasDrop bool

	onStatus      func(text string)
	onReconnected func()
}

func NewSupervisor(logger shared.LoggerAdapter, target Connector, opts SupervisorOptions) (*Supervisor, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if target == nil {
		return nil, shared.ErrNoTransport
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxReconnectAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultReconnectBackoff
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = DefaultReconnectStableAfter
	}
	return &Supervisor{logger: logger, target: target, opts: opts, enabled: true}, nil
}

// OnStatus receives the human-readable progress lines (attempt n of m, give-up). Setting replaces.
func (s *Supervisor) OnStatus(cb func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = cb
}

func (s *Supervisor) OnReconnected(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnected = cb
}

// SetEnabled turns automatic reconnects on or off. Disabling cancels a pending attempt.
func (s *Supervisor) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	if !enabled {
		s.Stop()
	}
}

func (s *Supervisor) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// HandleDisconnect schedules the next attempt, or gives up once the attempts are spent. A drop
// reported before a scheduled attempt starts is folded into it; one reported while an attempt runs
// fails that attempt.
func (s *Supervisor) HandleDisconnect(detail string) {
	s.mu.Lock()
	if !s.enabled || s.gaveUp || s.timer != nil {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.dropped, s.hasDrop = detail, true
		s.mu.Unlock()
		return
	}
	if s.stable != nil {
		s.stable.Stop()
		s.stable = nil
	}
	s.scheduleLocked(detail)
}

// scheduleLocked is called with s.mu held and releases it.
func (s *Supervisor) scheduleLocked(detail string) {
	if s.attempts >= s.opts.MaxAttempts {
		s.gaveUp = true
		n := s.attempts
		cb := s.onStatus
		s.mu.Unlock()
		s.logger.Warn("giving up on reconnect", zap.Int("attempts", n), zap.String("detail", detail))
		if cb != nil {
			cb(fmt.Sprintf("Reconnect failed after %d attempts. Manual reconnect required.", n))
		}
		return
	}
	s.attempts++
	n := s.attempts
	ep := s.epoch
	s.timer = time.AfterFunc(s.opts.Delay, func() { s.attempt(ep, n) })
	cb := s.onStatus
	s.mu.Unlock()

	s.logger.Info("scheduling session reconnect",
		zap.Int("attempt", n),
		zap.Int("max", s.opts.MaxAttempts),
		zap.Duration("delay", s.opts.Delay),
		zap.String("detail", detail),
	)
	if cb != nil {
		cb(fmt.Sprintf("Connection lost. Reconnecting (attempt %d/%d)...", n, s.opts.MaxAttempts))
	}
}

func (s *Supervisor) attempt(ep uint64, n int) {
	s.mu.Lock()
	if ep != s.epoch {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.hasDrop = false
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.opts.Metrics.reconnectAttempt()
	err := s.target.Connect(ctx)
	cancel()

	s.mu.Lock()
	if ep != s.epoch {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	if err == nil && s.hasDrop {
		err = fmt.Errorf("session dropped after connect: %s", s.dropped)
	}
	s.hasDrop = false
	if err == nil {
		s.stableSeq++
		seq := s.stableSeq
		s.stable = time.AfterFunc(s.opts.StableAfter, func() { s.markStable(ep, seq) })
		status, reconnected := s.onStatus, s.onReconnected
		s.mu.Unlock()
		s.logger.Info("session reconnected", zap.Int("attempt", n))
		if status != nil {
			status("Reconnected.")
		}
		if reconnected != nil {
			reconnected()
		}
		return
	}
	s.logger.Warn("reconnect attempt failed", zap.Int("attempt", n), zap.Error(err))
	if !s.enabled || s.gaveUp {
		s.mu.Unlock()
		return
	}
	s.scheduleLocked(err.Error())
}

func (s *Supervisor) markStable(ep, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep != s.epoch || seq != s.stableSeq || s.stable == nil {
		return
	}
	s.stable = nil
	s.attempts = 0
	s.logger.Debug("reconnected session stable, attempt count cleared")
}

// Stop cancels a pending or running attempt. The attempt count is kept.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stable != nil {
		s.stable.Stop()
		s.stable = nil
	}
	s.hasDrop = false
}

// Reset stops any attempt and clears the count, e.g. after the user reconnected by hand.
func (s *Supervisor) Reset() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
	s.gaveUp = false
}
