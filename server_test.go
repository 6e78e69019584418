package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeGemini is a scripted Live endpoint. Every inbound text frame is recorded; a setup frame is
// answered with setupComplete unless holdSetup is set, and dropAfterSetup closes the socket with
// 1011 right after that answer.
type fakeGemini struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     []*websocket.Conn
	writeMu   sync.Mutex
	holdSetup bool
	dropSetup bool
	queries   []string

	accepted chan *websocket.Conn
	frames   chan map[string]any
}

func newFakeGemini(t *testing.T) *fakeGemini {
	t.Helper()
	f := &fakeGemini{
		accepted: make(chan *websocket.Conn, 16),
		frames:   make(chan map[string]any, 256),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.queries = append(f.queries, r.URL.RawQuery)
		hold := f.holdSetup
		f.mu.Unlock()
		f.accepted <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := sonic.Unmarshal(data, &frame); err != nil {
				continue
			}
			f.frames <- frame
			if _, ok := frame["setup"]; ok && !hold {
				f.send(conn, `{"setupComplete":{}}`)
				f.mu.Lock()
				drop := f.dropSetup
				f.mu.Unlock()
				if drop {
					f.closeWith(conn, 1011, "overloaded")
					return
				}
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGemini) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeGemini) setHoldSetup(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdSetup = hold
}

func (f *fakeGemini) send(conn *websocket.Conn, text string) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (f *fakeGemini) sendBinary(conn *websocket.Conn, data []byte) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteMessage(websocket.BinaryMessage, data)
}

func (f *fakeGemini) closeWith(conn *websocket.Conn, code int, reason string) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

func (f *fakeGemini) setDropAfterSetup(drop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropSetup = drop
}

func (f *fakeGemini) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeGemini) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func (f *fakeGemini) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.accepted:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

// waitFrame returns the next recorded frame carrying key, skipping others.
func (f *fakeGemini) waitFrame(t *testing.T, key string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case fr := <-f.frames:
			if _, ok := fr[key]; ok {
				return fr
			}
		case <-deadline:
			t.Fatalf("no %q frame received", key)
			return nil
		}
	}
}

// drainFrames returns everything recorded within d.
func (f *fakeGemini) drainFrames(d time.Duration) []map[string]any {
	var out []map[string]any
	deadline := time.After(d)
	for {
		select {
		case fr := <-f.frames:
			out = append(out, fr)
		case <-deadline:
			return out
		}
	}
}

func frameKeys(frames []map[string]any) []string {
	var out []string
	for _, fr := range frames {
		for k := range fr {
			out = append(out, k)
		}
	}
	return out
}

type stateEvent struct {
	state  TransportState
	detail string
}

func recordStates(t *testing.T, c *Channel) (<-chan stateEvent, func()) {
	t.Helper()
	ch := make(chan stateEvent, 64)
	unsub := c.OnStateChange(func(st TransportState, detail string) {
		ch <- stateEvent{st, detail}
	})
	return ch, unsub
}

func waitState(t *testing.T, ch <-chan stateEvent, want TransportState) stateEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.state == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("state %q not published", want)
			return stateEvent{}
		}
	}
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
