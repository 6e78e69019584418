package live

import (
	"sync"
	"sync/atomic"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var transcriptSeq atomic.Int64

// TranscriptMessage is one line of the conversation. IDs increase monotonically within the process.
type TranscriptMessage struct {
	ID        int64     `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Text      string    `json:"text" yaml:"text"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

func NewTranscriptMessage(role Role, text string) TranscriptMessage {
	return TranscriptMessage{
		ID:        transcriptSeq.Add(1),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// TranscriptLog is an append-only conversation log.
type TranscriptLog struct {
	mu       sync.RWMutex
	messages []TranscriptMessage
}

func (l *TranscriptLog) Append(role Role, text string) TranscriptMessage {
	m := NewTranscriptMessage(role, text)
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
	return m
}

func (l *TranscriptLog) Messages() []TranscriptMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TranscriptMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *TranscriptLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Clear empties the log. IDs keep increasing.
func (l *TranscriptLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}
