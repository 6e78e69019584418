package live

import (
	"errors"
	"strings"

	"github.com/bt-bridge/gemini-live/tools"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"google.golang.org/genai"
)

// ServerMessageType names a top-level member of a server frame. A frame may carry several.
type ServerMessageType string

const (
	ServerMessageTypeSetupComplete           ServerMessageType = "setupComplete"
	ServerMessageTypeServerContent           ServerMessageType = "serverContent"
	ServerMessageTypeToolCall                ServerMessageType = "toolCall"
	ServerMessageTypeToolCallCancellation    ServerMessageType = "toolCallCancellation"
	ServerMessageTypeGoAway                  ServerMessageType = "goAway"
	ServerMessageTypeSessionResumptionUpdate ServerMessageType = "sessionResumptionUpdate"
	ServerMessageTypeUsageMetadata           ServerMessageType = "usageMetadata"
	ServerMessageTypeError                   ServerMessageType = "error"
	// ServerMessageTypeParseError marks the sentinel produced for frames that are not valid JSON.
	ServerMessageTypeParseError ServerMessageType = "_parseError"
)

// ServerMessage is one decoded inbound frame.
type ServerMessage struct {
	SetupComplete           *SetupComplete           `json:"setupComplete,omitempty"`
	ServerContent           *ServerContent           `json:"serverContent,omitempty"`
	ToolCall                *ToolCall                `json:"toolCall,omitempty"`
	ToolCallCancellation    *ToolCallCancellation    `json:"toolCallCancellation,omitempty"`
	GoAway                  *GoAway                  `json:"goAway,omitempty"`
	SessionResumptionUpdate *SessionResumptionUpdate `json:"sessionResumptionUpdate,omitempty"`
	UsageMetadata           map[string]any           `json:"usageMetadata,omitempty"`
	Error                   *ServerError             `json:"error,omitempty"`

	// ParseError is set only on the sentinel message; every other field is then empty.
	ParseError *ParseError `json:"-"`
}

type SetupComplete struct{}

type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob keeps Data base64-encoded, exactly as it travels.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Transcription struct {
	Text string `json:"text"`
}

type ToolCall struct {
	FunctionCalls []tools.FunctionCall `json:"functionCalls"`
}

type ToolCallCancellation struct {
	IDs []string `json:"ids"`
}

type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type SessionResumptionUpdate struct {
	NewHandle string `json:"newHandle,omitempty"`
	Resumable bool   `json:"resumable,omitempty"`
}

type ServerError struct {
	Code    int    `json:"code,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text is the message, or the error rendered as JSON when the server sent no message.
func (e *ServerError) Text() string {
	if e.Message != "" {
		return e.Message
	}
	b, err := sonic.MarshalString(e)
	if err != nil {
		return "unknown error"
	}
	return b
}

// ParseError describes an inbound frame that could not be decoded.
type ParseError struct {
	RawType string `json:"rawType"`
	Preview string `json:"preview"`
	Err     error  `json:"-"`
}

const parsePreviewLimit = 200

func newParseError(rawType string, raw string, err error) *ParseError {
	preview := raw
	if len(preview) > parsePreviewLimit {
		preview = strings.ToValidUTF8(preview[:parsePreviewLimit], "")
	}
	return &ParseError{RawType: rawType, Preview: preview, Err: err}
}

// Types lists the members present in the frame, in wire declaration order.
func (m *ServerMessage) Types() []ServerMessageType {
	if m.ParseError != nil {
		return []ServerMessageType{ServerMessageTypeParseError}
	}
	var out []ServerMessageType
	if m.SetupComplete != nil {
		out = append(out, ServerMessageTypeSetupComplete)
	}
	if m.ServerContent != nil {
		out = append(out, ServerMessageTypeServerContent)
	}
	if m.ToolCall != nil {
		out = append(out, ServerMessageTypeToolCall)
	}
	if m.ToolCallCancellation != nil {
		out = append(out, ServerMessageTypeToolCallCancellation)
	}
	if m.GoAway != nil {
		out = append(out, ServerMessageTypeGoAway)
	}
	if m.SessionResumptionUpdate != nil {
		out = append(out, ServerMessageTypeSessionResumptionUpdate)
	}
	if m.UsageMetadata != nil {
		out = append(out, ServerMessageTypeUsageMetadata)
	}
	if m.Error != nil {
		out = append(out, ServerMessageTypeError)
	}
	return out
}

func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	type plain ServerMessage
	var p plain
	if err := sonic.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ServerMessage(p)
	return nil
}

func (m *ServerMessage) MarshalJSON() ([]byte, error) {
	if m.ParseError != nil {
		return sonic.Marshal(map[string]any{string(ServerMessageTypeParseError): m.ParseError})
	}
	type plain ServerMessage
	return sonic.Marshal((*plain)(m))
}

// MarshalYAML renders the frame for debug logs.
func (m *ServerMessage) MarshalYAML() ([]byte, error) {
	j, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := sonic.Unmarshal(j, &raw); err != nil {
		return nil, err
	}
	return yaml.MarshalWithOptions(raw, yaml.UseJSONMarshaler())
}

// Client frames.

type SetupMessage struct {
	Setup Setup `json:"setup"`
}

type Setup struct {
	Model                    string                    `json:"model"`
	GenerationConfig         *GenerationConfig         `json:"generationConfig,omitempty"`
	SystemInstruction        *Content                  `json:"systemInstruction,omitempty"`
	Tools                    []tools.DeclarationSet    `json:"tools,omitempty"`
	SessionResumption        *SessionResumptionConfig  `json:"sessionResumption,omitempty"`
	ContextWindowCompression *ContextWindowCompression `json:"contextWindowCompression,omitempty"`
	InputAudioTranscription  *AudioTranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *AudioTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []genai.Modality    `json:"responseModalities,omitempty"`
	SpeechConfig       *genai.SpeechConfig `json:"speechConfig,omitempty"`
	Temperature        *float32            `json:"temperature,omitempty"`
}

type SessionResumptionConfig struct {
	Handle string `json:"handle,omitempty"`
}

type ContextWindowCompression struct {
	SlidingWindow *SlidingWindow `json:"slidingWindow"`
}

type SlidingWindow struct {
	TargetTokens int64 `json:"targetTokens,omitempty"`
}

type AudioTranscriptionConfig struct{}

type ClientContentMessage struct {
	ClientContent ClientContent `json:"clientContent"`
}

type ClientContent struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

func newTextTurn(text string) ClientContentMessage {
	return ClientContentMessage{ClientContent: ClientContent{
		Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
		TurnComplete: true,
	}}
}

type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

func newAudioInput(mimeType, b64 string) RealtimeInputMessage {
	return RealtimeInputMessage{RealtimeInput: RealtimeInput{
		MediaChunks: []Blob{{MimeType: mimeType, Data: b64}},
	}}
}

var errEmptyFrame = errors.New("empty frame")

// decodeServerMessage parses one frame. Any failure yields the parse-error sentinel instead.
func decodeServerMessage(rawType string, text string) *ServerMessage {
	if strings.TrimSpace(text) == "" {
		return &ServerMessage{ParseError: newParseError(rawType, text, errEmptyFrame)}
	}
	msg := new(ServerMessage)
	if err := msg.UnmarshalJSON([]byte(text)); err != nil {
		return &ServerMessage{ParseError: newParseError(rawType, text, err)}
	}
	return msg
}
