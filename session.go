package live

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bt-bridge/gemini-live/audio"
	"github.com/bt-bridge/gemini-live/shared"
	"github.com/bt-bridge/gemini-live/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is the part of Channel the session drives.
type Transport interface {
	Connect(url string, autoReconnect bool)
	Disconnect()
	Send(v any) bool
	SendAudioChunk(b64 string) bool
	IsConnected() bool
	LastClose() CloseInfo
	OnMessage(h MessageHandler) func()
	OnStateChange(h StateHandler) func()
}

var _ Transport = (*Channel)(nil)

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionHandshaking
	SessionActive
	SessionClosing
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionHandshaking:
		return "handshaking"
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

const (
	DefaultConnectTimeout    = 15 * time.Second
	DefaultSetupTimeout      = 10 * time.Second
	DefaultKeepaliveInterval = 15 * time.Second
)

// keepaliveChunk is 10 ms of 16 kHz mono silence.
var keepaliveChunk = base64.StdEncoding.EncodeToString(audio.Silence(10*time.Millisecond, audio.CaptureFormat))

type SessionOptions struct {
	ConnectTimeout    time.Duration
	SetupTimeout      time.Duration
	KeepaliveInterval time.Duration
	// Tools answers toolCall frames and supplies the setup declarations. nil means no tools.
	Tools   *tools.Registry
	Metrics *Metrics
	// PreferAudioOverText drops text parts of a model turn when the same frame carries audio.
	PreferAudioOverText bool
}

// attempt is everything owned by one Connect call. Tearing it down invalidates its callbacks.
type attempt struct {
	id        string
	abort     chan struct{}
	keepalive chan struct{}
	unsubs    []func()
	ctx       context.Context
	cancel    context.CancelFunc
	closed    bool
}

func (a *attempt) teardown() {
	if a.closed {
		return
	}
	a.closed = true
	close(a.abort)
	if a.keepalive != nil {
		close(a.keepalive)
	}
	a.cancel()
	for _, u := range a.unsubs {
		u()
	}
	a.unsubs = nil
}

// Session runs the Gemini Live handshake over a Transport and classifies server frames into
// callbacks. Each callback slot holds one function; setting it replaces the previous one.
type Session struct {
	logger    shared.LoggerAdapter
	transport Transport
	registry  *tools.Registry
	metrics   *Metrics
	opts      SessionOptions

	mu     sync.Mutex
	cfg    *Config
	state  SessionState
	cur    *attempt
	handle string

	cbMu           sync.Mutex
	onTranscript   func(text string, role Role)
	onAudio        func(b64 string)
	onTurnComplete func()
	onDisconnect   func(detail string)
	onInterrupted  func()
	onHandle       func(handle string)
}

func NewSession(logger shared.LoggerAdapter, transport Transport, opts SessionOptions) (*Session, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if transport == nil {
		return nil, shared.ErrNoTransport
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	registry := opts.Tools
	if registry == nil {
		registry = tools.NewRegistry(logger)
	}
	return &Session{
		logger:    logger,
		transport: transport,
		registry:  registry,
		metrics:   opts.Metrics,
		opts:      opts,
	}, nil
}

// Configure stores cfg for the next Connect. A non-empty ResumptionHandle replaces the current handle.
func (s *Session) Configure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cfg
	s.cfg = &c
	if cfg.ResumptionHandle != "" {
		s.handle = cfg.ResumptionHandle
	}
}

// Connect opens the transport, sends the setup frame and waits for setupComplete. It returns
// nil once the session is active. Any previous attempt is torn down first; the resumption
// handle survives and is presented in the setup frame.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.cfg == nil {
		s.mu.Unlock()
		s.metrics.connect("config")
		return &shared.ConfigurationError{Err: shared.ErrNoConfig}
	}
	cfg := *s.cfg
	if err := cfg.Validate(); err != nil {
		s.mu.Unlock()
		s.metrics.connect("config")
		return err
	}
	url, err := cfg.URL()
	if err != nil {
		s.mu.Unlock()
		s.metrics.connect("config")
		return &shared.ConfigurationError{Field: "baseURL", Err: err}
	}
	if s.cur != nil {
		s.cur.teardown()
	}
	actx, cancel := context.WithCancel(context.Background())
	a := &attempt{
		id:     uuid.NewString(),
		abort:  make(chan struct{}),
		ctx:    actx,
		cancel: cancel,
	}
	s.cur = a
	s.state = SessionHandshaking
	handle := s.handle
	s.mu.Unlock()

	logger := s.logger.With(zap.String("session", a.id))
	logger.Info("connecting", zap.String("model", cfg.ModelName()), zap.Bool("resuming", handle != ""))

	var (
		connected = make(chan struct{}, 1)
		failed    = make(chan string, 1)
		setupDone = make(chan struct{}, 1)
	)
	// Events queued by the previous socket are delivered before this attempt's connecting state.
	var seenConnecting atomic.Bool
	unsubHandshake := s.transport.OnStateChange(func(st TransportState, detail string) {
		switch st {
		case TransportConnecting:
			seenConnecting.Store(true)
		case TransportConnected:
			if seenConnecting.Load() {
				signal(connected)
			}
		case TransportDisconnected, TransportError:
			if seenConnecting.Load() {
				select {
				case failed <- detail:
				default:
				}
			}
		}
	})
	unsubMsg := s.transport.OnMessage(func(msg *ServerMessage) {
		if !seenConnecting.Load() {
			return
		}
		s.handleMessage(a, msg, setupDone)
	})

	s.mu.Lock()
	if s.cur != a {
		s.mu.Unlock()
		unsubHandshake()
		unsubMsg()
		return shared.ErrHandshakeSuperseded
	}
	a.unsubs = append(a.unsubs, unsubHandshake, unsubMsg)
	s.mu.Unlock()

	s.transport.Connect(url, false)

	connectTimer := time.NewTimer(s.opts.ConnectTimeout)
	defer connectTimer.Stop()
	select {
	case <-connected:
	case detail := <-failed:
		lc := s.transport.LastClose()
		return s.failHandshake(a, logger, "connect_failed", &shared.SetupError{Code: lc.Code, Reason: lc.Reason, Detail: detail})
	case <-connectTimer.C:
		return s.failHandshake(a, logger, "timeout", &shared.TimeoutError{Stage: "connect", After: s.opts.ConnectTimeout})
	case <-ctx.Done():
		return s.failHandshake(a, logger, "canceled", ctx.Err())
	case <-a.abort:
		return shared.ErrHandshakeSuperseded
	}

	setup := cfg.SetupMessage(handle, s.registry.Config())
	if !s.transport.Send(setup) {
		lc := s.transport.LastClose()
		return s.failHandshake(a, logger, "setup_failed", &shared.SetupError{Code: lc.Code, Reason: lc.Reason, Detail: "setup frame not written"})
	}

	setupTimer := time.NewTimer(s.opts.SetupTimeout)
	defer setupTimer.Stop()
	select {
	case <-setupDone:
	case detail := <-failed:
		lc := s.transport.LastClose()
		return s.failHandshake(a, logger, "setup_failed", &shared.SetupError{Code: lc.Code, Reason: lc.Reason, Detail: detail})
	case <-setupTimer.C:
		return s.failHandshake(a, logger, "timeout", &shared.TimeoutError{Stage: "setup", After: s.opts.SetupTimeout})
	case <-ctx.Done():
		return s.failHandshake(a, logger, "canceled", ctx.Err())
	case <-a.abort:
		return shared.ErrHandshakeSuperseded
	}

	s.mu.Lock()
	if s.cur != a {
		s.mu.Unlock()
		return shared.ErrHandshakeSuperseded
	}
	unsubHandshake()
	monitor := s.transport.OnStateChange(func(st TransportState, detail string) {
		if st == TransportDisconnected || st == TransportError {
			s.handleDrop(a, detail)
		}
	})
	a.unsubs = append(a.unsubs, monitor)
	a.keepalive = make(chan struct{})
	go s.keepalive(a, a.keepalive)
	s.state = SessionActive
	s.mu.Unlock()

	s.metrics.connect("ok")
	logger.Info("session active")

	// A drop dispatched before the monitor existed would otherwise go unnoticed.
	if !s.transport.IsConnected() {
		s.handleDrop(a, s.transport.LastClose().String())
	}
	return nil
}

func (s *Session) failHandshake(a *attempt, logger shared.LoggerAdapter, result string, err error) error {
	s.mu.Lock()
	if s.cur != a {
		s.mu.Unlock()
		return shared.ErrHandshakeSuperseded
	}
	a.teardown()
	s.cur = nil
	s.state = SessionIdle
	s.mu.Unlock()

	s.transport.Disconnect()
	s.metrics.connect(result)
	logger.Warn("handshake failed", zap.Error(err))
	return err
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Session) keepalive(a *attempt, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		if s.cur == a && s.state == SessionActive && s.transport.IsConnected() {
			if s.transport.SendAudioChunk(keepaliveChunk) {
				s.metrics.keepalive()
			}
		}
		s.mu.Unlock()
	}
}

// handleDrop turns a transport loss while active into a session-level disconnect. The handle is kept.
func (s *Session) handleDrop(a *attempt, detail string) {
	s.mu.Lock()
	if s.cur != a || s.state != SessionActive {
		s.mu.Unlock()
		return
	}
	a.teardown()
	s.cur = nil
	s.state = SessionIdle
	s.mu.Unlock()

	s.metrics.disconnect("remote")
	s.logger.Warn("session dropped", zap.String("session", a.id), zap.String("detail", detail))
	s.emitTranscript("Disconnected: "+detail, RoleSystem)
	s.emitDisconnect(detail)
}

func (s *Session) handleGoAway(a *attempt, timeLeft string) {
	s.mu.Lock()
	if s.cur != a || s.state != SessionActive {
		s.mu.Unlock()
		return
	}
	a.teardown()
	s.cur = nil
	s.state = SessionClosing
	s.mu.Unlock()

	s.transport.Disconnect()

	s.mu.Lock()
	if s.cur == nil {
		s.state = SessionIdle
	}
	s.mu.Unlock()

	reason := "session expired: server sent go-away"
	if timeLeft != "" {
		reason += " (time left " + timeLeft + ")"
	}
	s.metrics.disconnect("go_away")
	s.logger.Info("go-away received", zap.String("session", a.id), zap.String("timeLeft", timeLeft))
	s.emitTranscript(reason, RoleSystem)
	s.emitDisconnect(reason)
}

func (s *Session) handleMessage(a *attempt, msg *ServerMessage, setupDone chan struct{}) {
	s.mu.Lock()
	current := s.cur == a
	s.mu.Unlock()
	if !current {
		return
	}

	if pe := msg.ParseError; pe != nil {
		s.logger.Warn("server frame not parseable",
			zap.Error(&shared.ProtocolError{RawType: pe.RawType, Preview: pe.Preview, Err: pe.Err}))
		s.emitTranscript(fmt.Sprintf("[WS parse error] type=%s preview=%s", pe.RawType, pe.Preview), RoleSystem)
		return
	}
	if msg.Error != nil {
		s.emitTranscript("Error: "+msg.Error.Text(), RoleAssistant)
		return
	}
	if msg.SetupComplete != nil {
		signal(setupDone)
	}
	if u := msg.SessionResumptionUpdate; u != nil && u.NewHandle != "" {
		s.mu.Lock()
		if s.cur == a {
			s.handle = u.NewHandle
		}
		s.mu.Unlock()
		s.cbMu.Lock()
		cb := s.onHandle
		s.cbMu.Unlock()
		if cb != nil {
			cb(u.NewHandle)
		}
	}
	if sc := msg.ServerContent; sc != nil {
		s.handleServerContent(sc)
	}
	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		s.runTools(a, tc.FunctionCalls)
	}
	if c := msg.ToolCallCancellation; c != nil {
		s.logger.Info("tool calls cancelled by server", zap.Strings("ids", c.IDs))
	}
	if msg.GoAway != nil {
		s.handleGoAway(a, msg.GoAway.TimeLeft)
	}
}

func (s *Session) handleServerContent(sc *ServerContent) {
	if sc.Interrupted {
		s.cbMu.Lock()
		cb := s.onInterrupted
		s.cbMu.Unlock()
		if cb != nil {
			cb()
		}
	}
	if t := sc.InputTranscription; t != nil && strings.TrimSpace(t.Text) != "" {
		s.emitTranscript(t.Text, RoleUser)
	}
	if t := sc.OutputTranscription; t != nil && strings.TrimSpace(t.Text) != "" {
		s.emitTranscript(t.Text, RoleAssistant)
	}
	if turn := sc.ModelTurn; turn != nil {
		hasAudio := false
		for _, p := range turn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				hasAudio = true
				break
			}
		}
		suppressText := s.opts.PreferAudioOverText && hasAudio
		for _, p := range turn.Parts {
			if p.Text != "" && !suppressText {
				s.emitTranscript(p.Text, RoleAssistant)
			}
			if p.InlineData != nil && p.InlineData.Data != "" {
				s.metrics.audioChunk("in")
				s.emitAudio(p.InlineData.Data)
			}
		}
	}
	if sc.TurnComplete {
		s.cbMu.Lock()
		cb := s.onTurnComplete
		s.cbMu.Unlock()
		if cb != nil {
			cb()
		}
	}
}

// runTools executes the calls off the dispatch goroutine and answers only if the attempt that
// received them is still the active one.
func (s *Session) runTools(a *attempt, calls []tools.FunctionCall) {
	for _, c := range calls {
		s.metrics.toolCall(c.Name)
	}
	go func() {
		resp := s.registry.ExecuteAll(a.ctx, calls)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cur != a || s.state != SessionActive {
			s.logger.Debug("dropping tool response for stale session", zap.String("session", a.id))
			return
		}
		if !s.transport.Send(resp) {
			s.logger.Warn("tool response not written", zap.String("session", a.id))
		}
	}()
}

// Disconnect closes the session and the transport and forgets the resumption handle.
func (s *Session) Disconnect() {
	s.mu.Lock()
	wasActive := s.state == SessionActive
	if s.cur != nil {
		s.cur.teardown()
		s.cur = nil
	}
	s.state = SessionClosing
	s.handle = ""
	s.mu.Unlock()

	s.transport.Disconnect()

	s.mu.Lock()
	if s.cur == nil {
		s.state = SessionIdle
	}
	s.mu.Unlock()
	if wasActive {
		s.metrics.disconnect("client")
	}
	s.logger.Info("session disconnected")
}

// SendAudio forwards base64 PCM captured at 16 kHz. It fails with ErrSessionNotActive unless active.
func (s *Session) SendAudio(b64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return shared.ErrSessionNotActive
	}
	if !s.transport.SendAudioChunk(b64) {
		return shared.ErrSessionNotActive
	}
	s.metrics.audioChunk("out")
	return nil
}

// SendText sends one complete user turn and records it in the transcript.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return shared.ErrSessionNotActive
	}
	ok := s.transport.Send(newTextTurn(text))
	s.mu.Unlock()
	if !ok {
		return shared.ErrSessionNotActive
	}
	s.emitTranscript(text, RoleUser)
	return nil
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle is the current resumption handle, "" when there is none.
func (s *Session) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) IsConnected() bool {
	return s.transport.IsConnected()
}

func (s *Session) OnTranscript(cb func(text string, role Role)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onTranscript = cb
}

func (s *Session) OnAudioResponse(cb func(b64 string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onAudio = cb
}

func (s *Session) OnTurnComplete(cb func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onTurnComplete = cb
}

func (s *Session) OnDisconnect(cb func(detail string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onDisconnect = cb
}

func (s *Session) OnInterrupted(cb func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onInterrupted = cb
}

// OnResumptionHandle is called with every new handle, e.g. to persist it.
func (s *Session) OnResumptionHandle(cb func(handle string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onHandle = cb
}

func (s *Session) emitTranscript(text string, role Role) {
	s.cbMu.Lock()
	cb := s.onTranscript
	s.cbMu.Unlock()
	if cb != nil {
		cb(text, role)
	}
}

func (s *Session) emitAudio(b64 string) {
	s.cbMu.Lock()
	cb := s.onAudio
	s.cbMu.Unlock()
	if cb != nil {
		cb(b64)
	}
}

func (s *Session) emitDisconnect(detail string) {
	s.cbMu.Lock()
	cb := s.onDisconnect
	s.cbMu.Unlock()
	if cb != nil {
		cb(detail)
	}
}
