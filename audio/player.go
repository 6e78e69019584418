package audio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/bt-bridge/gemini-live/shared"
	"go.uber.org/zap"
)

// Recorder is the platform microphone.
type Recorder interface {
	Start(ctx context.Context) error
	// Stop ends capture and returns the captured WAV path, or "" when nothing was recorded.
	Stop(ctx context.Context) (string, error)
}

// Playback is one sound being played.
type Playback interface {
	// Done yields once when playback ends; a nil value means it finished normally.
	Done() <-chan error
	Stop()
}

// Speaker is the platform output that plays WAV files.
type Speaker interface {
	Play(ctx context.Context, path string) (Playback, error)
}

type activePlayback struct {
	id   uint64
	pb   Playback
	path string
}

// Player accumulates the model's PCM chunks for the current turn and plays them as one WAV
// when the turn completes. A new PlayAccumulatedAudio supersedes the sound still playing.
type Player struct {
	logger   shared.LoggerAdapter
	recorder Recorder
	speaker  Speaker
	modes    *ModeMachine
	format   Format
	tempDir  string

	playMu sync.Mutex

	mu         sync.Mutex
	chunks     []string
	recording  bool
	current    *activePlayback
	playSeq    uint64
	onFinished func()
}

type PlayerOption func(*Player)

// WithFormat overrides the output format (default OutputFormat).
func WithFormat(f Format) PlayerOption {
	return func(p *Player) { p.format = f }
}

// WithTempDir sets where WAV files are written (default os.TempDir()).
func WithTempDir(dir string) PlayerOption {
	return func(p *Player) { p.tempDir = dir }
}

// WithModeMachine shares a routing machine with other audio users.
func WithModeMachine(m *ModeMachine) PlayerOption {
	return func(p *Player) { p.modes = m }
}

func NewPlayer(logger shared.LoggerAdapter, recorder Recorder, speaker Speaker, opts ...PlayerOption) (*Player, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if speaker == nil {
		return nil, shared.ErrNoSpeaker
	}
	p := &Player{
		logger:   logger,
		recorder: recorder,
		speaker:  speaker,
		format:   OutputFormat,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.modes == nil {
		p.modes = NewModeMachine(logger, nil)
	}
	return p, nil
}

// Mode reports the current audio routing.
func (p *Player) Mode() Mode {
	return p.modes.Current()
}

func (p *Player) StartRecording(ctx context.Context) error {
	if p.recorder == nil {
		return shared.ErrNoRecorder
	}
	if p.IsRecording() {
		if _, err := p.StopRecording(ctx); err != nil {
			return fmt.Errorf("stopping previous recording: %w", err)
		}
	}
	if err := p.modes.EnableRecording(ctx); err != nil {
		return err
	}
	if err := p.recorder.Start(ctx); err != nil {
		if perr := p.modes.EnablePlayback(ctx); perr != nil {
			p.logger.Error("restoring playback mode", perr)
		}
		return fmt.Errorf("starting recorder: %w", err)
	}
	p.mu.Lock()
	p.recording = true
	p.mu.Unlock()
	p.logger.Debug("recording started")
	return nil
}

// StopRecording returns the captured file path, or "" when no recording was running.
func (p *Player) StopRecording(ctx context.Context) (string, error) {
	p.mu.Lock()
	if !p.recording {
		p.mu.Unlock()
		return "", nil
	}
	p.recording = false
	p.mu.Unlock()

	path, err := p.recorder.Stop(ctx)
	if merr := p.modes.EnablePlayback(ctx); merr != nil {
		p.logger.Error("switching to playback mode", merr)
	}
	if err != nil {
		return "", fmt.Errorf("stopping recorder: %w", err)
	}
	p.logger.Debug("recording stopped", zap.String("path", path))
	return path, nil
}

func (p *Player) IsRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// OnPlaybackFinished sets the single finished callback; setting replaces the previous one.
func (p *Player) OnPlaybackFinished(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = cb
}

func (p *Player) AddAudioChunk(b64 string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, b64)
}

func (p *Player) HasAudioChunks() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks) > 0
}

// DiscardAudio drops the buffered chunks of the current turn without playing them.
func (p *Player) DiscardAudio() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = nil
}

// PlayAccumulatedAudio plays everything buffered for the turn as one WAV. It returns once the file
// is written and playback has started. The finished callback fires exactly once per call unless a
// later call supersedes the sound: when playback ends (with or without a playback error), at once
// when nothing is buffered, and before returning when the turn could not be played.
func (p *Player) PlayAccumulatedAudio(ctx context.Context) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.mu.Lock()
	chunks := p.chunks
	p.chunks = nil
	cb := p.onFinished
	p.mu.Unlock()

	if len(chunks) == 0 {
		if cb != nil {
			cb()
		}
		return nil
	}

	pb, path, pcm, err := p.start(ctx, chunks)
	if err != nil {
		p.logger.Warn("turn audio skipped", zap.Int("chunks", len(chunks)), zap.Error(err))
		if cb != nil {
			cb()
		}
		return err
	}

	p.mu.Lock()
	p.playSeq++
	active := &activePlayback{id: p.playSeq, pb: pb, path: path}
	p.current = active
	p.mu.Unlock()

	p.logger.Debug(
		"playing turn audio",
		zap.Int("chunks", len(chunks)),
		zap.Int("bytes", len(pcm)),
		zap.Uint64("playback", active.id),
	)
	go p.watch(active)
	return nil
}

func (p *Player) start(ctx context.Context, chunks []string) (Playback, string, []byte, error) {
	pcm, err := JoinBase64(chunks)
	if err != nil {
		return nil, "", nil, fmt.Errorf("joining audio chunks: %w", err)
	}
	path, err := p.writeTemp(EncodeWAV(p.format, pcm))
	if err != nil {
		return nil, "", nil, err
	}

	p.supersede()

	if err := p.modes.EnablePlayback(ctx); err != nil {
		p.removeTemp(path)
		return nil, "", nil, err
	}
	pb, err := p.speaker.Play(ctx, path)
	if err != nil {
		p.removeTemp(path)
		return nil, "", nil, fmt.Errorf("starting playback: %w", err)
	}
	return pb, path, pcm, nil
}

func (p *Player) watch(a *activePlayback) {
	err := <-a.pb.Done()
	p.removeTemp(a.path)

	p.mu.Lock()
	superseded := p.current != a
	if !superseded {
		p.current = nil
	}
	cb := p.onFinished
	p.mu.Unlock()

	if superseded {
		p.logger.Trace("superseded playback ended", zap.Uint64("playback", a.id))
		return
	}
	if err != nil {
		p.logger.Error("playback ended with error", err, zap.Uint64("playback", a.id))
	}
	if cb != nil {
		cb()
	}
}

// supersede stops the sound currently playing. Its watcher removes the file and skips the callback.
func (p *Player) supersede() {
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()
	if prev != nil {
		prev.pb.Stop()
	}
}

func (p *Player) writeTemp(wav []byte) (string, error) {
	f, err := os.CreateTemp(p.tempDir, "gemini_audio_*.wav")
	if err != nil {
		return "", fmt.Errorf("creating temp audio file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(wav); err != nil {
		_ = f.Close()
		p.removeTemp(path)
		return "", fmt.Errorf("writing temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		p.removeTemp(path)
		return "", fmt.Errorf("closing temp audio file: %w", err)
	}
	return path, nil
}

func (p *Player) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Error("removing temp audio file", err, zap.String("path", path))
	}
}

// Cleanup stops recording and playback and drops buffered audio. Safe to call repeatedly.
func (p *Player) Cleanup(ctx context.Context) {
	if _, err := p.StopRecording(ctx); err != nil {
		p.logger.Error("stopping recording during cleanup", err)
	}
	p.supersede()
	p.mu.Lock()
	p.chunks = nil
	p.onFinished = nil
	p.mu.Unlock()
}
