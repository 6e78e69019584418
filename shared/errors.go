package shared

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrNoLogger              = errors.New("no logger provided")
	ErrNoConfig              = errors.New("no config provided")
	ErrNoAPIKey              = errors.New("no API key provided")
	ErrNoTransport           = errors.New("no transport provided")
	ErrSessionNotActive      = errors.New("session not active")
	ErrSessionAlreadyRunning = errors.New("session already running")
	ErrHandshakeSuperseded   = errors.New("handshake superseded by a newer connect")
	ErrNoRecorder            = errors.New("no recorder provided")
	ErrNoSpeaker             = errors.New("no speaker provided")
	ErrEmptyToolName         = errors.New("tool declaration has no name")
	ErrNoToolHandler         = errors.New("tool has no handler")
)

// ConfigurationError reports a session that cannot be attempted at all. Not retryable.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TimeoutError reports a bounded wait that elapsed. Stage is "connect" or "setup".
type TimeoutError struct {
	Stage string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	switch e.Stage {
	case "setup":
		return fmt.Sprintf("setup timeout after %s: server did not acknowledge config", e.After)
	case "connect":
		return fmt.Sprintf("connection timeout after %s", e.After)
	default:
		return fmt.Sprintf("%s timeout after %s", e.Stage, e.After)
	}
}

// Timeout lets callers treat it like a net.Error.
func (e *TimeoutError) Timeout() bool { return true }

// SetupError reports a transport that went away before the handshake finished.
type SetupError struct {
	Code   int
	Reason string
	Detail string
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("setup failed [close=%d %s]", e.Code, e.Reason)
	if e.Detail != "" {
		msg += " " + e.Detail
	}
	return msg
}

// TransportError represents socket-level failures (DNS, TLS, resets) while talking to the server.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, RedactURL(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProtocolError describes an inbound frame that could not be parsed.
type ProtocolError struct {
	RawType string
	Preview string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: type=%s preview=%q: %v", e.RawType, e.Preview, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failing tool handler. It never leaves the tool registry as an error;
// the registry turns it into a structured result.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RedactURL strips user info and the key query parameter so URLs can be logged.
func RedactURL(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	q := parsed.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
