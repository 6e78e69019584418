package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/bt-bridge/gemini-live/shared"
	"go.uber.org/zap"
)

// Mode is the shared audio routing of the device. Record and playback are mutually exclusive
// on the hardware abstraction, so exactly one is active.
type Mode int

const (
	ModePlayback Mode = iota
	ModeRecord
)

func (m Mode) String() string {
	switch m {
	case ModePlayback:
		return "playback"
	case ModeRecord:
		return "record"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Router applies a routing mode to the platform. A nil Router makes transitions bookkeeping only.
type Router interface {
	Apply(ctx context.Context, m Mode) error
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, m Mode) error

func (f RouterFunc) Apply(ctx context.Context, m Mode) error { return f(ctx, m) }

// ModeMachine owns the routing mode. EnableRecording and EnablePlayback are the only way to flip it.
type ModeMachine struct {
	logger shared.LoggerAdapter
	router Router

	mu   sync.Mutex
	mode Mode
}

func NewModeMachine(logger shared.LoggerAdapter, router Router) *ModeMachine {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &ModeMachine{logger: logger, router: router, mode: ModePlayback}
}

func (m *ModeMachine) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *ModeMachine) EnableRecording(ctx context.Context) error {
	return m.transition(ctx, ModeRecord)
}

func (m *ModeMachine) EnablePlayback(ctx context.Context) error {
	return m.transition(ctx, ModePlayback)
}

func (m *ModeMachine) transition(ctx context.Context, to Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == to {
		return nil
	}
	if m.router != nil {
		if err := m.router.Apply(ctx, to); err != nil {
			return fmt.Errorf("switching audio mode to %s: %w", to, err)
		}
	}
	m.logger.Trace("audio mode changed", zap.Stringer("prev", m.mode), zap.Stringer("new", to))
	m.mode = to
	return nil
}
