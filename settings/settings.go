package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	live "github.com/bt-bridge/gemini-live"
)

// Settings is the persisted user configuration of the voice client.
type Settings struct {
	APIKey              string `yaml:"apiKey" json:"apiKey"`
	Model               string `yaml:"model" json:"model"`
	AutoReconnect       bool   `yaml:"autoReconnect" json:"autoReconnect"`
	KeepAwake           bool   `yaml:"keepAwake" json:"keepAwake"`
	ToolsEnabled        bool   `yaml:"toolsEnabled" json:"toolsEnabled"`
	PreferAudioOverText bool   `yaml:"preferAudioOverText" json:"preferAudioOverText"`
	VoiceName           string `yaml:"voiceName" json:"voiceName"`
	SystemInstruction   string `yaml:"systemInstruction" json:"systemInstruction"`
	// ResumptionHandle is the last handle the server issued, kept across restarts.
	ResumptionHandle string `yaml:"resumptionHandle,omitempty" json:"resumptionHandle,omitempty"`
}

func Defaults() Settings {
	return Settings{
		Model:             live.DefaultModel,
		AutoReconnect:     true,
		KeepAwake:         true,
		ToolsEnabled:      true,
		VoiceName:         live.DefaultVoice,
		SystemInstruction: live.DefaultSystemInstruction,
	}
}

// SessionConfig maps the settings onto a connect configuration.
func (s Settings) SessionConfig() live.Config {
	return live.Config{
		APIKey:            s.APIKey,
		Model:             s.Model,
		SystemInstruction: s.SystemInstruction,
		ResumptionHandle:  s.ResumptionHandle,
		VoiceName:         s.VoiceName,
		EnableResumption:  true,
	}
}

// Masked returns a copy safe to print: secrets keep their last four characters.
func (s Settings) Masked() Settings {
	out := s
	out.APIKey = mask(s.APIKey)
	out.ResumptionHandle = mask(s.ResumptionHandle)
	return out
}

func mask(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 4:
		return "***"
	default:
		return "***" + v[len(v)-4:]
	}
}

type field struct {
	get    func(s *Settings) string
	set    func(s *Settings, v string) error
	secret bool
}

func stringField(p func(s *Settings) *string, secret bool) field {
	return field{
		get:    func(s *Settings) string { return *p(s) },
		set:    func(s *Settings, v string) error { *p(s) = v; return nil },
		secret: secret,
	}
}

func boolField(p func(s *Settings) *bool) field {
	return field{
		get: func(s *Settings) string { return strconv.FormatBool(*p(s)) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parsing bool: %w", err)
			}
			*p(s) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"apiKey":              stringField(func(s *Settings) *string { return &s.APIKey }, true),
	"model":               stringField(func(s *Settings) *string { return &s.Model }, false),
	"voiceName":           stringField(func(s *Settings) *string { return &s.VoiceName }, false),
	"systemInstruction":   stringField(func(s *Settings) *string { return &s.SystemInstruction }, false),
	"resumptionHandle":    stringField(func(s *Settings) *string { return &s.ResumptionHandle }, true),
	"autoReconnect":       boolField(func(s *Settings) *bool { return &s.AutoReconnect }),
	"keepAwake":           boolField(func(s *Settings) *bool { return &s.KeepAwake }),
	"toolsEnabled":        boolField(func(s *Settings) *bool { return &s.ToolsEnabled }),
	"preferAudioOverText": boolField(func(s *Settings) *bool { return &s.PreferAudioOverText }),
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func IsSecretKey(key string) bool {
	return fields[key].secret
}

// Get renders one value as text.
func (s *Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s (known: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	return f.get(s), nil
}

// Set parses value into key.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%w: %s (known: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	if err := f.set(s, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}
