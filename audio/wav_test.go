package audio

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 48000)
	wav := EncodeWAV(OutputFormat, pcm)

	require.Len(t, wav, HeaderSize+48000)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(48036), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(wav[16:20]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestDecodeWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	f, got, err := DecodeWAV(EncodeWAV(CaptureFormat, pcm))
	require.NoError(t, err)
	assert.Equal(t, CaptureFormat, f)
	assert.Equal(t, pcm, got)

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"Short", []byte("RIFF"), ErrTruncatedWAV},
		{"Not RIFF", append([]byte("JUNK"), make([]byte, 60)...), ErrNotWAV},
		{"Data size too large", func() []byte {
			w := EncodeWAV(CaptureFormat, pcm)
			binary.LittleEndian.PutUint32(w[40:44], 1000)
			return w
		}(), ErrTruncatedWAV},
		{"Not PCM", func() []byte {
			w := EncodeWAV(CaptureFormat, pcm)
			binary.LittleEndian.PutUint16(w[20:22], 3)
			return w
		}(), ErrUnsupportedWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tt.data)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestJoinBase64DecodesEachChunk(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03, 0x04}
	b := []byte{0x05}
	c := []byte{0x06, 0x07}
	chunks := []string{
		base64.StdEncoding.EncodeToString(a),
		base64.StdEncoding.EncodeToString(b),
		base64.StdEncoding.EncodeToString(c),
	}

	got, err := JoinBase64(chunks)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7}, got)

	wav := EncodeWAV(OutputFormat, got)
	assert.Len(t, wav, HeaderSize+7)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestJoinBase64RejectsGarbage(t *testing.T) {
	_, err := JoinBase64([]string{"AAAA", "!!not base64!!"})
	assert.ErrorIs(t, err, ErrInvalidBase64)

	got, err := JoinBase64(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormatMimeType(t *testing.T) {
	assert.Equal(t, "audio/pcm;rate=16000", CaptureFormat.MimeType())
	assert.Equal(t, 48000, OutputFormat.ByteRate())
	assert.Equal(t, 2, OutputFormat.BlockAlign())
}
