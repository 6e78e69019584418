package tools

import (
	"context"
	"runtime"

	"github.com/bt-bridge/gemini-live/shared"
	"google.golang.org/genai"
)

const DeviceInfoName = "get_device_info"

func DeviceInfo() Tool {
	return Tool{
		Declaration: &genai.FunctionDeclaration{
			Name: DeviceInfoName,
			Description: "Returns information about the device running the app, including platform, OS version, and app version. " +
				`Use this when the user asks "what phone am I using?", "what device is this?", or similar.`,
			Parameters: objectSchema(nil),
		},
		Handler: func(context.Context, map[string]any) (Result, error) {
			return Result{
				"platform":   runtime.GOOS,
				"arch":       runtime.GOARCH,
				"runtime":    runtime.Version(),
				"appVersion": shared.Version,
				"appName":    shared.AppName,
			}, nil
		},
	}
}

// Builtins returns the default tool set sharing one reminder store.
func Builtins(store *ReminderStore, now Clock) []Tool {
	return []Tool{
		Datetime(now),
		Calculator(),
		SetReminder(store, now),
		ListReminders(store),
		DeviceInfo(),
	}
}

// RegisterBuiltins adds Builtins to r.
func RegisterBuiltins(r *Registry, store *ReminderStore, now Clock) error {
	for _, t := range Builtins(store, now) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
