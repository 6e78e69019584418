package live

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/bt-bridge/gemini-live/tools"
	"google.golang.org/genai"
)

const (
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel   = "gemini-2.0-flash-exp"
	DefaultVoice   = "Kore"

	DefaultSystemInstruction = "You are a helpful voice assistant for field workers using Meta Ray-Ban smart glasses. " +
		"Keep responses concise and actionable. You help with inventory, task management, " +
		"and work order operations through the WorkSuite system."
)

// Config is what one connect attempt needs. The session copies it at Connect, so later edits
// only affect the next attempt.
type Config struct {
	APIKey            string
	Model             string
	SystemInstruction string
	// ResumptionHandle seeds the session's handle, e.g. one persisted by a previous process.
	ResumptionHandle string

	// ResponseModalities defaults to AUDIO.
	ResponseModalities []genai.Modality
	VoiceName          string
	Temperature        *float32
	// EnableResumption asks the server for resumption updates even without a handle to resume.
	EnableResumption         bool
	ContextWindowCompression *SlidingWindow
	InputAudioTranscription  bool
	OutputAudioTranscription bool

	BaseURL string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &shared.ConfigurationError{Field: "apiKey", Err: shared.ErrNoAPIKey}
	}
	if c.BaseURL != "" {
		if _, err := url.Parse(c.BaseURL); err != nil {
			return &shared.ConfigurationError{Field: "baseURL", Err: err}
		}
	}
	return nil
}

// ModelName is the model in resource form, models/<name>.
func (c Config) ModelName() string {
	m := c.Model
	if m == "" {
		m = DefaultModel
	}
	if strings.HasPrefix(m, "models/") {
		return m
	}
	return "models/" + m
}

// URL is the endpoint with the credential in the key query parameter.
func (c Config) URL() (string, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	q := u.Query()
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SetupMessage builds the first client frame. handle is the resumption handle to present, if any.
func (c Config) SetupMessage(handle string, decls []tools.DeclarationSet) SetupMessage {
	modalities := c.ResponseModalities
	if len(modalities) == 0 {
		modalities = []genai.Modality{genai.ModalityAudio}
	}
	voice := c.VoiceName
	if voice == "" {
		voice = DefaultVoice
	}
	instruction := c.SystemInstruction
	if instruction == "" {
		instruction = DefaultSystemInstruction
	}

	setup := Setup{
		Model: c.ModelName(),
		GenerationConfig: &GenerationConfig{
			ResponseModalities: modalities,
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
			Temperature: c.Temperature,
		},
		SystemInstruction: &Content{Parts: []Part{{Text: instruction}}},
	}
	if len(decls) > 0 {
		setup.Tools = decls
	}
	if handle != "" || c.EnableResumption {
		setup.SessionResumption = &SessionResumptionConfig{Handle: handle}
	}
	if c.ContextWindowCompression != nil {
		setup.ContextWindowCompression = &ContextWindowCompression{SlidingWindow: c.ContextWindowCompression}
	}
	if c.InputAudioTranscription {
		setup.InputAudioTranscription = &AudioTranscriptionConfig{}
	}
	if c.OutputAudioTranscription {
		setup.OutputAudioTranscription = &AudioTranscriptionConfig{}
	}
	return SetupMessage{Setup: setup}
}
