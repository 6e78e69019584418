package tools

import (
	"context"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const (
	SetReminderName   = "set_reminder"
	ListRemindersName = "list_reminders"
)

type Reminder struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReminderStore holds reminders for the lifetime of the process.
type ReminderStore struct {
	mu        sync.Mutex
	reminders []Reminder
	nextID    int
}

func NewReminderStore() *ReminderStore {
	return &ReminderStore{nextID: 1}
}

func (s *ReminderStore) Add(text string, at time.Time) (Reminder, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Reminder{ID: s.nextID, Text: text, CreatedAt: at}
	s.nextID++
	s.reminders = append(s.reminders, r)
	return r, len(s.reminders)
}

func (s *ReminderStore) List() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, len(s.reminders))
	copy(out, s.reminders)
	return out
}

// Reset drops every reminder and restarts IDs at 1.
func (s *ReminderStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = nil
	s.nextID = 1
}

func SetReminder(store *ReminderStore, now Clock) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name: SetReminderName,
			Description: "Saves a reminder note for the user. The reminder is stored in memory for this session. " +
				`Use this when the user says "remind me to...", "don't let me forget...", or similar.`,
			Parameters: objectSchema(map[string]*genai.Schema{
				"text": stringProp(`The reminder text, e.g. "Call the office at 3pm"`),
			}, "text"),
		},
		Handler: func(_ context.Context, args map[string]any) (Result, error) {
			text := strings.TrimSpace(stringArg(args, "text"))
			if text == "" {
				return errorResult("No reminder text provided"), nil
			}
			r, total := store.Add(text, now())
			return Result{
				"saved":          true,
				"reminder":       r.Text,
				"totalReminders": total,
			}, nil
		},
	}
}

func ListReminders(store *ReminderStore) Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name: ListRemindersName,
			Description: "Lists all reminders the user has set during this session. " +
				`Use this when the user asks "what are my reminders?", "show my reminders", or similar.`,
			Parameters: objectSchema(nil),
		},
		Handler: func(context.Context, map[string]any) (Result, error) {
			list := store.List()
			if len(list) == 0 {
				return Result{"reminders": []any{}, "message": "No reminders set yet"}, nil
			}
			items := make([]map[string]any, len(list))
			for i, r := range list {
				items[i] = map[string]any{
					"id":        r.ID,
					"text":      r.Text,
					"createdAt": r.CreatedAt.UTC().Format(time.RFC3339Nano),
				}
			}
			return Result{"reminders": items, "count": len(list)}, nil
		},
	}
}
