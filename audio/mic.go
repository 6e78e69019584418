package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"
	"go.uber.org/zap"
)

var ErrNoAudioTrack = errors.New("no audio track in media stream")

// Microphone captures 16 kHz mono PCM from the default input device. Every captured chunk is
// handed to OnChunk as it arrives, and Stop writes the whole take to a WAV file.
type Microphone struct {
	logger  shared.LoggerAdapter
	format  Format
	tempDir string

	mu      sync.Mutex
	onChunk func(pcm []byte)
	track   mediadevices.Track
	pcm     []byte
	done    chan struct{}
}

func NewMicrophone(logger shared.LoggerAdapter, tempDir string) *Microphone {
	return &Microphone{logger: logger, format: CaptureFormat, tempDir: tempDir}
}

// OnChunk sets the callback that receives little-endian PCM while recording.
func (m *Microphone) OnChunk(cb func(pcm []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChunk = cb
}

func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.track != nil {
		return errors.New("microphone already started")
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(m.format.SampleRate)
			c.ChannelCount = prop.Int(m.format.Channels)
			c.SampleSize = prop.Int(m.format.BitDepth)
		},
	})
	if err != nil {
		return fmt.Errorf("getting user media: %w", err)
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return ErrNoAudioTrack
	}
	track, ok := tracks[0].(*mediadevices.AudioTrack)
	if !ok {
		_ = tracks[0].Close()
		return ErrNoAudioTrack
	}
	m.track = track
	m.pcm = m.pcm[:0]
	m.done = make(chan struct{})
	go m.capture(ctx, track, m.done)
	return nil
}

func (m *Microphone) capture(ctx context.Context, track *mediadevices.AudioTrack, done chan struct{}) {
	defer close(done)
	reader := track.NewReader(false)
	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		chunk, release, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Debug("microphone reader stopped", zap.Error(err))
			}
			return
		}
		info := chunk.ChunkInfo()
		if !warned && info.SamplingRate != m.format.SampleRate {
			m.logger.Warn("microphone sample rate differs from capture format",
				zap.Int("got", info.SamplingRate),
				zap.Int("want", m.format.SampleRate),
			)
			warned = true
		}
		pcm := toPCM16(chunk)
		release()
		if len(pcm) == 0 {
			continue
		}
		m.mu.Lock()
		m.pcm = append(m.pcm, pcm...)
		cb := m.onChunk
		m.mu.Unlock()
		if cb != nil {
			cb(pcm)
		}
	}
}

// toPCM16 flattens a chunk to interleaved little-endian 16-bit samples.
func toPCM16(chunk wave.Audio) []byte {
	switch c := chunk.(type) {
	case *wave.Int16Interleaved:
		out := make([]byte, len(c.Data)*2)
		for i, s := range c.Data {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out
	case *wave.Float32Interleaved:
		out := make([]byte, len(c.Data)*2)
		for i, s := range c.Data {
			v := math.Max(-1, math.Min(1, float64(s)))
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
		}
		return out
	default:
		return nil
	}
}

// Stop closes the device and writes what was captured to a temp WAV file. It returns "" when
// nothing was captured or the microphone was not started.
func (m *Microphone) Stop(ctx context.Context) (string, error) {
	m.mu.Lock()
	track, done := m.track, m.done
	m.track, m.done = nil, nil
	m.mu.Unlock()
	if track == nil {
		return "", nil
	}
	if err := track.Close(); err != nil {
		m.logger.Error("closing microphone track", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	m.mu.Lock()
	pcm := m.pcm
	m.pcm = nil
	m.mu.Unlock()
	if len(pcm) == 0 {
		return "", nil
	}

	f, err := os.CreateTemp(m.tempDir, "gemini_recording_*.wav")
	if err != nil {
		return "", fmt.Errorf("creating recording file: %w", err)
	}
	if _, err := f.Write(EncodeWAV(m.format, pcm)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing recording file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("closing recording file: %w", err)
	}
	return f.Name(), nil
}
