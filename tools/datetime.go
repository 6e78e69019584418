package tools

import (
	"context"
	"time"

	"google.golang.org/genai"
)

const DatetimeName = "get_current_datetime"

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func Datetime(now Clock) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name: DatetimeName,
			Description: "Returns the current date, time, day of week, and timezone. " +
				"Use this when the user asks what time it is, what today's date is, or anything about the current date/time.",
			Parameters: objectSchema(nil),
		},
		Handler: func(context.Context, map[string]any) (Result, error) {
			t := now()
			clock := t.Format("3:04:05 PM")
			return Result{
				"formatted":     t.Format("Monday, January 2, 2006") + " at " + clock,
				"date":          t.UTC().Format(time.DateOnly),
				"time":          clock,
				"dayOfWeek":     t.Weekday().String(),
				"timezone":      t.Format("MST"),
				"unixTimestamp": t.Unix(),
			}, nil
		},
	}
}
