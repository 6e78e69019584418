package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// OtoSpeaker plays WAV files on the default output device. oto allows a single context per
// process, so the first played format fixes the device format.
type OtoSpeaker struct {
	logger     shared.LoggerAdapter
	bufferSize time.Duration
	poll       time.Duration

	mu     sync.Mutex
	otoCtx *oto.Context
	format Format
}

func NewOtoSpeaker(logger shared.LoggerAdapter, bufferSize time.Duration) *OtoSpeaker {
	if bufferSize <= 0 {
		bufferSize = 100 * time.Millisecond
	}
	return &OtoSpeaker{logger: logger, bufferSize: bufferSize, poll: 20 * time.Millisecond}
}

func (s *OtoSpeaker) context(f Format) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.otoCtx != nil {
		if s.format != f {
			return nil, fmt.Errorf("%w: device opened at %dHz/%dch, got %dHz/%dch",
				ErrUnsupportedWAV, s.format.SampleRate, s.format.Channels, f.SampleRate, f.Channels)
		}
		return s.otoCtx, nil
	}
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, f.BitDepth)
	}
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   s.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oto context: %w", err)
	}
	<-ready
	s.logger.Info("audio output ready",
		zap.Int("sampleRate", f.SampleRate),
		zap.Int("channels", f.Channels),
	)
	s.otoCtx = otoCtx
	s.format = f
	return otoCtx, nil
}

func (s *OtoSpeaker) Play(ctx context.Context, path string) (Playback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, pcm, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	otoCtx, err := s.context(f)
	if err != nil {
		return nil, err
	}
	player := otoCtx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	pb := &otoPlayback{player: player, done: make(chan error, 1), stop: make(chan struct{})}
	go pb.run(ctx, s.poll)
	return pb, nil
}

type otoPlayback struct {
	player   *oto.Player
	done     chan error
	stop     chan struct{}
	stopOnce sync.Once
}

func (p *otoPlayback) run(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	var err error
	for p.player.IsPlaying() {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-p.stop:
		case <-ticker.C:
			continue
		}
		p.player.Pause()
		break
	}
	if cerr := p.player.Close(); cerr != nil && err == nil {
		err = cerr
	}
	p.done <- err
}

func (p *otoPlayback) Done() <-chan error { return p.done }

func (p *otoPlayback) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
