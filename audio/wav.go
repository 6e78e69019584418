package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// HeaderSize is the length of a canonical PCM WAV header.
const HeaderSize = 44

const formatPCM = 1

// Format describes uncompressed PCM audio.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

var (
	// OutputFormat is what the model speaks: 24 kHz mono 16-bit.
	OutputFormat = Format{SampleRate: 24000, Channels: 1, BitDepth: 16}
	// CaptureFormat is what the uplink carries: 16 kHz mono 16-bit.
	CaptureFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
)

func (f Format) ByteRate() int {
	return f.SampleRate * f.Channels * (f.BitDepth / 8)
}

func (f Format) BlockAlign() int {
	return f.Channels * (f.BitDepth / 8)
}

// MimeType is the realtimeInput mime type for this format.
func (f Format) MimeType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

var (
	ErrNotWAV          = errors.New("not a RIFF/WAVE container")
	ErrUnsupportedWAV  = errors.New("unsupported WAV encoding")
	ErrTruncatedWAV    = errors.New("truncated WAV data")
	ErrInvalidBase64   = errors.New("invalid base64 audio chunk")
	errHeaderTooShort  = fmt.Errorf("%w: header shorter than %d bytes", ErrTruncatedWAV, HeaderSize)
	errDataSizeInvalid = fmt.Errorf("%w: data size exceeds payload", ErrTruncatedWAV)
)

// Header builds the 44-byte header for dataLen bytes of PCM in format f.
func Header(f Format, dataLen int) []byte {
	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.ByteRate()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitDepth))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}

// EncodeWAV frames pcm into a WAV container. Every size field is derived from len(pcm).
func EncodeWAV(f Format, pcm []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(pcm))
	out = append(out, Header(f, len(pcm))...)
	return append(out, pcm...)
}

// DecodeWAV parses a canonical 44-byte-header PCM WAV and returns its format and payload.
func DecodeWAV(data []byte) (Format, []byte, error) {
	if len(data) < HeaderSize {
		return Format{}, nil, errHeaderTooShort
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Format{}, nil, ErrNotWAV
	}
	if binary.LittleEndian.Uint16(data[20:22]) != formatPCM {
		return Format{}, nil, ErrUnsupportedWAV
	}
	f := Format{
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
		BitDepth:   int(binary.LittleEndian.Uint16(data[34:36])),
	}
	size := int(binary.LittleEndian.Uint32(data[40:44]))
	if size > len(data)-HeaderSize {
		return Format{}, nil, errDataSizeInvalid
	}
	return f, data[HeaderSize : HeaderSize+size], nil
}

// JoinBase64 decodes each chunk independently and concatenates the bytes. Base64 strings are not
// concatenation-safe because every chunk may carry its own padding.
func JoinBase64(chunks []string) ([]byte, error) {
	decoded := make([][]byte, len(chunks))
	total := 0
	for i, c := range chunks {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrInvalidBase64, i, err)
		}
		decoded[i] = b
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range decoded {
		out = append(out, b...)
	}
	return out, nil
}
