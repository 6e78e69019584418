package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameSamples(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		rate     int
		channels int
		expected int
	}{
		{
			name:     "Keepalive frame at capture rate",
			duration: 10 * time.Millisecond,
			rate:     16000,
			channels: 1,
			expected: 160,
		},
		{
			name:     "Mic read at capture rate",
			duration: 20 * time.Millisecond,
			rate:     16000,
			channels: 1,
			expected: 320,
		},
		{
			name:     "One second of model output",
			duration: time.Second,
			rate:     24000,
			channels: 1,
			expected: 24000,
		},
		{
			name:     "Stereo doubles the count",
			duration: 100 * time.Millisecond,
			rate:     24000,
			channels: 2,
			expected: 4800,
		},
		{
			name:     "Zero duration",
			duration: 0,
			rate:     16000,
			channels: 1,
			expected: 0,
		},
		{
			name:     "Zero channels",
			duration: time.Second,
			rate:     16000,
			channels: 0,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FrameSamples(tt.duration, tt.rate, tt.channels)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFrameBytesAndSilence(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		format   Format
		expected int
	}{
		{
			name:     "10ms of capture format",
			duration: 10 * time.Millisecond,
			format:   CaptureFormat,
			expected: 320, // 160 samples * 2 bytes
		},
		{
			name:     "1s of output format",
			duration: time.Second,
			format:   OutputFormat,
			expected: 48000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FrameBytes(tt.duration, tt.format))
			silence := Silence(tt.duration, tt.format)
			assert.Len(t, silence, tt.expected)
			for _, b := range silence {
				if b != 0 {
					t.Fatalf("silence contains non-zero byte %d", b)
				}
			}
		})
	}
}
