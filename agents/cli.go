package agents

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	live "github.com/bt-bridge/gemini-live"
	"github.com/bt-bridge/gemini-live/audio"
	"github.com/bt-bridge/gemini-live/settings"
	"github.com/bt-bridge/gemini-live/shared"
	"github.com/bt-bridge/gemini-live/tools"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// ChunkSource is a recorder that also streams what it captures.
type ChunkSource interface {
	OnChunk(cb func(pcm []byte))
}

type AgentOptions struct {
	Store   settings.Store
	Printer *shared.Printer

	Speaker  audio.Speaker
	Recorder audio.Recorder
	// Peripheral is the optional wearable whose link state feeds Status.
	Peripheral Peripheral

	Metrics   *live.Metrics
	Reminders *tools.ReminderStore
	Clock     tools.Clock
	TempDir   string

	// BaseURL overrides the Live endpoint, e.g. for a local test server.
	BaseURL string
	Channel live.ChannelOptions
	Session live.SessionOptions
	Retry   live.SupervisorOptions
}

// CLIAgent runs one voice conversation in a terminal: it owns the session, plays the model's
// audio turns, streams the microphone while talking and reconnects after drops.
type CLIAgent struct {
	logger     shared.LoggerAdapter
	printer    *shared.Printer
	store      settings.Store
	settings   settings.Settings
	channel    *live.Channel
	session    *live.Session
	player     *audio.Player
	registry   *tools.Registry
	supervisor *live.Supervisor
	peripheral Peripheral
	transcript *live.TranscriptLog

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
}

func (a *CLIAgent) Spawn(ctx context.Context, logger shared.LoggerAdapter, opts AgentOptions) error {
	if logger == nil {
		return shared.ErrNoLogger
	}
	if opts.Store == nil {
		return shared.ErrNoConfig
	}
	if opts.Printer == nil {
		return errors.New("no printer provided")
	}
	a.logger = logger
	a.printer = opts.Printer
	a.store = opts.Store
	a.peripheral = opts.Peripheral
	a.transcript = &live.TranscriptLog{}
	a.done = make(chan struct{})
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("spawning CLI agent")
	a.say("🤖 Spawning CLI agent...\n")

	s, err := a.store.Load()
	if err != nil {
		a.logger.Error("loading settings", err)
		return err
	}
	a.settings = s
	cfg := s.SessionConfig()
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if err := cfg.Validate(); err != nil {
		a.logger.Error("validating session config", err)
		a.say("❌ No API key configured. Set GEMINI_API_KEY or run `config set apiKey <key>`.\n")
		return err
	}

	// Tools
	a.registry = tools.NewRegistry(a.logger)
	if s.ToolsEnabled {
		reminders := opts.Reminders
		if reminders == nil {
			reminders = tools.NewReminderStore()
		}
		if err := tools.RegisterBuiltins(a.registry, reminders, opts.Clock); err != nil {
			a.logger.Error("registering built-in tools", err)
			return err
		}
	}
	a.logger.Info("tools registered", zap.Int("count", a.registry.Len()))

	// Transport and session
	chOpts := opts.Channel
	chOpts.Metrics = opts.Metrics
	if a.channel, err = live.NewChannel(a.logger, chOpts); err != nil {
		a.logger.Error("creating channel", err)
		return err
	}
	sessOpts := opts.Session
	sessOpts.Tools = a.registry
	sessOpts.Metrics = opts.Metrics
	sessOpts.PreferAudioOverText = s.PreferAudioOverText
	if a.session, err = live.NewSession(a.logger, a.channel, sessOpts); err != nil {
		a.logger.Error("creating session", err)
		return err
	}
	a.session.Configure(cfg)

	a.say("📋 Session Config\n")
	setupYAML, err := yaml.MarshalWithOptions(cfg.SetupMessage(cfg.ResumptionHandle, a.registry.Config()), yaml.UseJSONMarshaler())
	if err != nil {
		a.logger.Error("marshaling setup frame to yaml", err)
		return err
	}
	if err := a.printer.Write(string(setupYAML), 1); err != nil {
		a.logger.Error("printing session config", err)
	}

	// Audio
	playerOpts := []audio.PlayerOption{}
	if opts.TempDir != "" {
		playerOpts = append(playerOpts, audio.WithTempDir(opts.TempDir))
	}
	if a.player, err = audio.NewPlayer(a.logger, opts.Recorder, opts.Speaker, playerOpts...); err != nil {
		a.logger.Error("creating player", err)
		return err
	}
	if src, ok := opts.Recorder.(ChunkSource); ok {
		src.OnChunk(a.streamChunk)
	}

	retry := opts.Retry
	retry.Metrics = opts.Metrics
	if a.supervisor, err = live.NewSupervisor(a.logger, a.session, retry); err != nil {
		a.logger.Error("creating supervisor", err)
		return err
	}
	a.supervisor.SetEnabled(s.AutoReconnect)
	a.wire()

	a.say("\n🔌 Connecting to Gemini Live...")
	if err := a.session.Connect(a.ctx); err != nil {
		a.logger.Error("connecting session", err)
		a.say("❌ " + err.Error() + "\n")
		a.shutdown()
		return err
	}
	a.say("✅ Connected. Type a message, /talk to speak, /quit to leave.\n")
	return nil
}

func (a *CLIAgent) wire() {
	a.session.OnTranscript(a.record)
	a.session.OnAudioResponse(a.player.AddAudioChunk)
	a.session.OnInterrupted(a.player.DiscardAudio)
	a.session.OnTurnComplete(func() {
		if err := a.player.PlayAccumulatedAudio(a.ctx); err != nil {
			a.logger.Error("playing model audio", err)
		}
	})
	a.session.OnResumptionHandle(a.persistHandle)
	a.session.OnDisconnect(func(detail string) {
		a.player.DiscardAudio()
		a.supervisor.HandleDisconnect(detail)
	})
	a.supervisor.OnStatus(func(text string) { a.record(text, live.RoleSystem) })

	if a.peripheral != nil {
		a.peripheral.OnConnectionChange(func(connected bool) {
			a.logger.Info("peripheral link changed", zap.Bool("connected", connected))
			if connected {
				a.record("Glasses connected", live.RoleSystem)
			} else {
				a.record("Glasses disconnected", live.RoleSystem)
			}
		})
	}
}

var roleLabels = map[live.Role]string{
	live.RoleUser:      "🧑",
	live.RoleAssistant: "🤖",
	live.RoleSystem:    "⚙️",
}

func (a *CLIAgent) record(text string, role live.Role) {
	a.transcript.Append(role, text)
	if err := a.printer.Transcript(roleLabels[role], text); err != nil {
		a.logger.Error("printing transcript", err)
	}
}

func (a *CLIAgent) say(s string) {
	if err := a.printer.Writeln(s, 0); err != nil {
		a.logger.Error("printing message", err)
	}
}

func (a *CLIAgent) streamChunk(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	err := a.session.SendAudio(base64.StdEncoding.EncodeToString(pcm))
	if err != nil && !errors.Is(err, shared.ErrSessionNotActive) {
		a.logger.Warn("streaming microphone audio", zap.Error(err))
	}
}

func (a *CLIAgent) persistHandle(handle string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settings.ResumptionHandle == handle {
		return
	}
	a.settings.ResumptionHandle = handle
	err := a.store.Update(func(s *settings.Settings) error {
		s.ResumptionHandle = handle
		return nil
	})
	if err != nil {
		a.logger.Error("persisting resumption handle", err)
	}
}

// SendText sends a typed user turn.
func (a *CLIAgent) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return a.session.SendText(text)
}

// StartTalking switches audio to recording and streams the microphone to the model.
func (a *CLIAgent) StartTalking() error {
	a.player.DiscardAudio()
	return a.player.StartRecording(a.ctx)
}

// StopTalking ends the take and returns the WAV path of what was captured.
func (a *CLIAgent) StopTalking() (string, error) {
	return a.player.StopRecording(a.ctx)
}

func (a *CLIAgent) IsTalking() bool {
	return a.player.IsRecording()
}

// Reconnect is the manual reconnect offered once the supervisor has given up.
func (a *CLIAgent) Reconnect(ctx context.Context) error {
	a.supervisor.Reset()
	a.record("Reconnecting...", live.RoleSystem)
	if err := a.session.Connect(ctx); err != nil {
		a.record("Reconnect failed: "+err.Error(), live.RoleSystem)
		return err
	}
	a.record("Reconnected.", live.RoleSystem)
	return nil
}

func (a *CLIAgent) Status() Status {
	st := Status{
		Transport:         a.channel.State(),
		Session:           a.session.State(),
		Audio:             a.player.Mode(),
		Recording:         a.player.IsRecording(),
		ReconnectAttempts: a.supervisor.Attempts(),
		Resumable:         a.session.Handle() != "",
		KeepAwake:         a.settings.KeepAwake,
		Tools:             a.registry.Len(),
	}
	if a.peripheral != nil {
		st.PeripheralConnected = a.peripheral.Connected()
	}
	return st
}

func (a *CLIAgent) Transcript() []live.TranscriptMessage {
	return a.transcript.Messages()
}

func (a *CLIAgent) Done() <-chan struct{} {
	return a.done
}

// Close ends the session and releases audio resources. Safe to call more than once.
func (a *CLIAgent) Close() error {
	if a.done == nil {
		return nil
	}
	a.shutdown()
	return nil
}

func (a *CLIAgent) shutdown() {
	a.closeOnce.Do(func() {
		a.logger.Info("closing CLI agent")
		if a.supervisor != nil {
			a.supervisor.Stop()
		}
		if a.session != nil {
			a.session.Disconnect()
			// a clean exit ends the conversation, so the stored handle is stale
			a.persistHandle("")
		}
		if a.player != nil {
			if a.player.IsRecording() {
				if _, err := a.player.StopRecording(context.Background()); err != nil {
					a.logger.Warn("stopping recording", zap.Error(err))
				}
			}
			a.player.Cleanup(context.Background())
		}
		if a.channel != nil {
			a.channel.Close()
		}
		a.cancel()
		close(a.done)
	})
}
