package agents

import (
	"fmt"
	"strings"
	"sync"

	live "github.com/bt-bridge/gemini-live"
	"github.com/bt-bridge/gemini-live/audio"
)

// Peripheral is a paired wearable. Only its link state matters here; pairing and the radio
// protocol stay with the platform.
type Peripheral interface {
	Connected() bool
	// OnConnectionChange sets the link-state callback. Setting replaces.
	OnConnectionChange(cb func(connected bool))
}

// Status is a point-in-time view of the agent for status lines and /status.
type Status struct {
	Transport           live.TransportState
	Session             live.SessionState
	Audio               audio.Mode
	Recording           bool
	ReconnectAttempts   int
	Resumable           bool
	PeripheralConnected bool
	KeepAwake           bool
	Tools               int
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session=%s transport=%s audio=%s", s.Session, s.Transport, s.Audio)
	if s.Recording {
		b.WriteString(" recording")
	}
	if s.ReconnectAttempts > 0 {
		fmt.Fprintf(&b, " reconnects=%d", s.ReconnectAttempts)
	}
	if s.Resumable {
		b.WriteString(" resumable")
	}
	if s.PeripheralConnected {
		b.WriteString(" glasses=connected")
	} else {
		b.WriteString(" glasses=disconnected")
	}
	fmt.Fprintf(&b, " tools=%d", s.Tools)
	return b.String()
}

// StaticPeripheral is a Peripheral whose state is set by hand, e.g. from a CLI flag.
type StaticPeripheral struct {
	mu        sync.Mutex
	connected bool
	cb        func(bool)
}

func (p *StaticPeripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *StaticPeripheral) OnConnectionChange(cb func(connected bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

// SetConnected updates the state and notifies on change.
func (p *StaticPeripheral) SetConnected(connected bool) {
	p.mu.Lock()
	changed := p.connected != connected
	p.connected = connected
	cb := p.cb
	p.mu.Unlock()
	if changed && cb != nil {
		cb(connected)
	}
}
