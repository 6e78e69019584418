package audio

import "time"

// FrameSamples returns the number of interleaved samples in duration of audio.
func FrameSamples(duration time.Duration, rate, channels int) int {
	return int(duration.Seconds() * float64(channels) * float64(rate))
}

// FrameBytes is FrameSamples scaled by the sample width of f.
func FrameBytes(duration time.Duration, f Format) int {
	return FrameSamples(duration, f.SampleRate, f.Channels) * f.BitDepth / 8
}

// Silence returns duration worth of zeroed PCM in format f.
func Silence(duration time.Duration, f Format) []byte {
	return make([]byte, FrameBytes(duration, f))
}
