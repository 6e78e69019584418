package tools

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr     string
		expected float64
	}{
		{"2+2", 4},
		{"145 * 3.5", 507.5},
		{"(100 + 50) / 3", 50},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 % 4", 2},
		{"-3 + 5", 2},
		{"-(2 * 3)", -6},
		{".5 + .25", 0.75},
		{"8 / 2 / 2", 2},
		{"10 - 2 - 3", 5},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestEvaluateRejects(t *testing.T) {
	tests := []struct {
		expr string
		err  error
	}{
		{"alert(1)", ErrInvalidCharacter},
		{"2 ** x", ErrInvalidCharacter},
		{"1 / 0", ErrNotFinite},
		{"(1 + 2", ErrMalformedExpr},
		{"1 +", ErrMalformedExpr},
		{"1.2.3", ErrMalformedExpr},
		{"2 3", ErrMalformedExpr},
		{"()", ErrMalformedExpr},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Evaluate(tt.expr)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCalculateTool(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]any
		expected Result
	}{
		{
			name:     "Grouped result",
			args:     map[string]any{"expression": " 1000 * 1000 "},
			expected: Result{"expression": "1000 * 1000", "result": 1e6, "formatted": "1,000,000"},
		},
		{
			name:     "Rounded",
			args:     map[string]any{"expression": "0.1 + 0.2"},
			expected: Result{"expression": "0.1 + 0.2", "result": 0.3, "formatted": "0.3"},
		},
		{
			name:     "Empty",
			args:     map[string]any{},
			expected: Result{"error": "No expression provided"},
		},
		{
			name:     "Unsafe",
			args:     map[string]any{"expression": "process.exit()"},
			expected: Result{"error": "Invalid expression: only numbers and arithmetic operators are allowed"},
		},
		{
			name:     "Division by zero",
			args:     map[string]any{"expression": "5/0"},
			expected: Result{"error": "Expression did not produce a valid number"},
		},
		{
			name:     "Unbalanced",
			args:     map[string]any{"expression": "(5"},
			expected: Result{"error": "Could not evaluate expression"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calculate(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDatetimeTool(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	res, err := Datetime(func() time.Time { return fixed }).Handler(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Tuesday, March 5, 2024 at 2:07:09 PM", res["formatted"])
	assert.Equal(t, "2024-03-05", res["date"])
	assert.Equal(t, "Tuesday", res["dayOfWeek"])
	assert.Equal(t, "UTC", res["timezone"])
	assert.Equal(t, fixed.Unix(), res["unixTimestamp"])
}

func TestReminderTools(t *testing.T) {
	store := NewReminderStore()
	at := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	set := SetReminder(store, func() time.Time { return at })
	list := ListReminders(store)
	ctx := context.Background()

	res, err := list.Handler(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "No reminders set yet", res["message"])

	res, err = set.Handler(ctx, map[string]any{"text": "   "})
	require.NoError(t, err)
	assert.Equal(t, "No reminder text provided", res["error"])

	res, err = set.Handler(ctx, map[string]any{"text": " Call the office at 3pm "})
	require.NoError(t, err)
	assert.Equal(t, Result{"saved": true, "reminder": "Call the office at 3pm", "totalReminders": 1}, res)
	_, err = set.Handler(ctx, map[string]any{"text": "Buy fuses"})
	require.NoError(t, err)

	res, err = list.Handler(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res["count"])
	items := res["reminders"].([]map[string]any)
	assert.Equal(t, 1, items[0]["id"])
	assert.Equal(t, "Buy fuses", items[1]["text"])
	assert.Equal(t, "2024-03-05T09:00:00Z", items[0]["createdAt"])

	store.Reset()
	assert.Empty(t, store.List())
	r, total := store.Add("again", at)
	assert.Equal(t, 1, r.ID)
	assert.Equal(t, 1, total)
}

func TestDeviceInfoTool(t *testing.T) {
	res, err := DeviceInfo().Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, runtime.GOOS, res["platform"])
	assert.Equal(t, shared.Version, res["appVersion"])
	assert.Equal(t, shared.AppName, res["appName"])
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, NewReminderStore(), nil))

	names := make([]string, 0, r.Len())
	for _, d := range r.Declarations() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{DatetimeName, CalculateName, SetReminderName, ListRemindersName, DeviceInfoName}, names)
}
