package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bt-bridge/gemini-live/audio"
	"github.com/bt-bridge/gemini-live/shared"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type TransportState string

const (
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportError        TransportState = "error"
)

type (
	MessageHandler func(msg *ServerMessage)
	StateHandler   func(state TransportState, detail string)
)

// CloseInfo is the close code and reason of the last socket that went away.
type CloseInfo struct {
	Code   int
	Reason string
}

func (c CloseInfo) String() string {
	return fmt.Sprintf("code=%d reason=%s", c.Code, c.Reason)
}

const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultDialTimeout    = 15 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	utf8ChunkSize         = 32 * 1024
)

type ChannelOptions struct {
	// ReconnectDelay is the flat delay before an automatic reconnect.
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	Dialer         *websocket.Dialer
	Metrics        *Metrics
}

type subscription[H any] struct {
	handler H
	active  atomic.Bool
}

// Channel is a WebSocket transport with pub/sub delivery. Every state change and inbound message
// is delivered on a single dispatch goroutine in arrival order. No method panics or returns
// socket faults; faults surface as state events.
type Channel struct {
	logger         shared.LoggerAdapter
	dialer         *websocket.Dialer
	dialTimeout    time.Duration
	reconnectDelay time.Duration
	metrics        *Metrics

	mu             sync.Mutex
	conn           *websocket.Conn
	epoch          uint64
	url            string
	autoReconnect  bool
	reconnectTimer *time.Timer
	state          TransportState
	lastClose      CloseInfo

	writeMu sync.Mutex

	subsMu    sync.Mutex
	msgSubs   []*subscription[MessageHandler]
	stateSubs []*subscription[StateHandler]

	qmu     sync.Mutex
	qcond   *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
}

func NewChannel(logger shared.LoggerAdapter, opts ChannelOptions) (*Channel, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Dialer == nil {
		d := *websocket.DefaultDialer
		opts.Dialer = &d
	}
	c := &Channel{
		logger:         logger,
		dialer:         opts.Dialer,
		dialTimeout:    opts.DialTimeout,
		reconnectDelay: opts.ReconnectDelay,
		metrics:        opts.Metrics,
		state:          TransportDisconnected,
		done:           make(chan struct{}),
	}
	c.qcond = sync.NewCond(&c.qmu)
	go c.dispatch()
	return c, nil
}

// Connect discards any prior socket and dials url in the background. It publishes connecting
// immediately. With autoReconnect, every close schedules one flat-delay retry.
func (c *Channel) Connect(url string, autoReconnect bool) {
	c.mu.Lock()
	c.epoch++
	ep := c.epoch
	prev := c.conn
	c.conn = nil
	c.url = url
	c.autoReconnect = autoReconnect
	c.stopReconnectLocked()
	c.publishLocked(TransportConnecting, "")
	c.mu.Unlock()

	if prev != nil {
		c.closeConn(prev)
	}
	c.logger.Debug("dialing", zap.String("url", shared.RedactURL(url)), zap.Uint64("epoch", ep))
	go c.dial(ep, url)
}

func (c *Channel) dial(ep uint64, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		terr := &shared.TransportError{Op: "dial", URL: url, Err: err}
		c.logger.Warn("dial failed", zap.Error(terr))
		c.lastClose = CloseInfo{Code: websocket.CloseAbnormalClosure}
		c.publishLocked(TransportError, terr.Error())
		c.publishLocked(TransportDisconnected, c.lastClose.String())
		c.scheduleReconnectLocked(ep)
		return
	}
	c.conn = conn
	c.publishLocked(TransportConnected, "")
	go c.read(ep, conn)
}

func (c *Channel) read(ep uint64, conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.readFailed(ep, conn, err)
			return
		}
		var (
			rawType string
			text    string
		)
		switch mt {
		case websocket.BinaryMessage:
			rawType, text = "binary", decodeUTF8(data)
		default:
			rawType, text = "text", string(data)
		}
		msg := decodeServerMessage(rawType, text)
		if msg.ParseError != nil {
			c.logger.Warn("unparseable frame",
				zap.String("rawType", rawType),
				zap.Int("bytes", len(data)),
				zap.Error(msg.ParseError.Err),
			)
			c.metrics.frame("parse_error")
		} else {
			c.metrics.frame(rawType)
		}

		c.mu.Lock()
		if ep != c.epoch {
			c.mu.Unlock()
			return
		}
		c.enqueue(func() { c.deliverMessage(msg) })
		c.mu.Unlock()
	}
}

func (c *Channel) readFailed(ep uint64, conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep != c.epoch {
		return
	}
	c.conn = nil
	_ = conn.Close()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.lastClose = CloseInfo{Code: ce.Code, Reason: ce.Text}
		c.logger.Info("socket closed", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
	} else {
		c.lastClose = CloseInfo{Code: websocket.CloseAbnormalClosure}
		c.logger.Warn("socket failed", zap.Error(err))
		c.publishLocked(TransportError, err.Error())
	}
	c.publishLocked(TransportDisconnected, c.lastClose.String())
	c.scheduleReconnectLocked(ep)
}

func (c *Channel) scheduleReconnectLocked(ep uint64) {
	if !c.autoReconnect || c.reconnectTimer != nil || c.url == "" {
		return
	}
	c.logger.Info("scheduling reconnect", zap.Duration("delay", c.reconnectDelay))
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		if ep != c.epoch || !c.autoReconnect {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		url, auto := c.url, c.autoReconnect
		c.mu.Unlock()
		c.Connect(url, auto)
	})
}

func (c *Channel) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// Disconnect disables auto-reconnect, cancels a pending reconnect and closes the socket. It
// publishes disconnected once when a socket was open or being dialed. Safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.autoReconnect = false
	c.stopReconnectLocked()
	c.epoch++
	conn := c.conn
	c.conn = nil
	live := c.state == TransportConnecting || c.state == TransportConnected
	if live {
		c.lastClose = CloseInfo{Code: websocket.CloseNormalClosure}
		c.publishLocked(TransportDisconnected, c.lastClose.String())
	}
	c.mu.Unlock()

	if conn != nil {
		c.closeConn(conn)
	}
}

func (c *Channel) closeConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// Send writes a text frame. Strings go out verbatim, everything else is JSON-encoded. It reports
// whether the frame was written; nothing is sent while the socket is not open.
func (c *Channel) Send(v any) bool {
	var payload []byte
	switch m := v.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		b, err := sonic.Marshal(v)
		if err != nil {
			c.logger.Error("encoding outbound frame", err)
			return false
		}
		payload = b
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("write failed", zap.Error(err))
		return false
	}
	return true
}

// SendAudioChunk sends base64 PCM at the capture rate as realtime input.
func (c *Channel) SendAudioChunk(b64 string) bool {
	return c.Send(newAudioInput(audio.CaptureFormat.MimeType(), b64))
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.state == TransportConnected
}

func (c *Channel) State() TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) LastClose() CloseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastClose
}

// OnMessage subscribes h to inbound messages. The returned func unsubscribes; calling it more than
// once is harmless.
func (c *Channel) OnMessage(h MessageHandler) func() {
	sub := &subscription[MessageHandler]{handler: h}
	sub.active.Store(true)
	c.subsMu.Lock()
	c.msgSubs = append(c.msgSubs, sub)
	c.subsMu.Unlock()
	return func() {
		if !sub.active.Swap(false) {
			return
		}
		c.subsMu.Lock()
		c.msgSubs = removeSub(c.msgSubs, sub)
		c.subsMu.Unlock()
	}
}

func (c *Channel) OnStateChange(h StateHandler) func() {
	sub := &subscription[StateHandler]{handler: h}
	sub.active.Store(true)
	c.subsMu.Lock()
	c.stateSubs = append(c.stateSubs, sub)
	c.subsMu.Unlock()
	return func() {
		if !sub.active.Swap(false) {
			return
		}
		c.subsMu.Lock()
		c.stateSubs = removeSub(c.stateSubs, sub)
		c.subsMu.Unlock()
	}
}

func removeSub[H any](subs []*subscription[H], target *subscription[H]) []*subscription[H] {
	out := make([]*subscription[H], 0, len(subs))
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// Close disconnects and stops the dispatch goroutine after it drains queued events.
func (c *Channel) Close() {
	c.Disconnect()
	c.qmu.Lock()
	c.stopped = true
	c.qcond.Signal()
	c.qmu.Unlock()
	<-c.done
}

func (c *Channel) publishLocked(state TransportState, detail string) {
	if c.state != state {
		c.logger.Trace("transport state changed",
			zap.String("prev", string(c.state)),
			zap.String("new", string(state)),
		)
	}
	c.state = state
	c.enqueue(func() { c.deliverState(state, detail) })
}

func (c *Channel) enqueue(fn func()) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if c.stopped {
		return
	}
	c.queue = append(c.queue, fn)
	c.qcond.Signal()
}

func (c *Channel) dispatch() {
	defer close(c.done)
	for {
		c.qmu.Lock()
		for len(c.queue) == 0 && !c.stopped {
			c.qcond.Wait()
		}
		if len(c.queue) == 0 {
			c.qmu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.qmu.Unlock()
		fn()
	}
}

func (c *Channel) deliverMessage(msg *ServerMessage) {
	c.subsMu.Lock()
	subs := append([]*subscription[MessageHandler](nil), c.msgSubs...)
	c.subsMu.Unlock()
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		c.safely("message", func() { s.handler(msg) })
	}
}

func (c *Channel) deliverState(state TransportState, detail string) {
	c.subsMu.Lock()
	subs := append([]*subscription[StateHandler](nil), c.stateSubs...)
	c.subsMu.Unlock()
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		c.safely("state", func() { s.handler(state, detail) })
	}
}

func (c *Channel) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("subscriber panicked", fmt.Errorf("%v", r), zap.String("kind", kind))
		}
	}()
	fn()
}

// decodeUTF8 converts a binary frame to text in bounded chunks, never splitting a rune, and
// replaces invalid sequences.
func decodeUTF8(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		n := min(utf8ChunkSize, len(data))
		if n < len(data) {
			// back off to a rune start so a multi-byte sequence stays whole
			for i := 0; i < utf8.UTFMax && n > 0 && !utf8.RuneStart(data[n]); i++ {
				n--
			}
			if n == 0 {
				n = min(utf8ChunkSize, len(data))
			}
		}
		b.WriteString(strings.ToValidUTF8(string(data[:n]), "�"))
		data = data[n:]
	}
	return b.String()
}
