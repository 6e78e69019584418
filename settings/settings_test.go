package settings

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	live "github.com/bt-bridge/gemini-live"
	"github.com/bt-bridge/gemini-live/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	t.Setenv(EnvKeyAPIKey, "")
	t.Setenv(EnvKeyModel, "")
	s, err := NewFileStore(shared.NewNopLogger(), filepath.Join(t.TempDir(), "nested", "settings.yaml"))
	require.NoError(t, err)
	return s
}

func TestNewFileStoreValidates(t *testing.T) {
	_, err := NewFileStore(nil, "x.yaml")
	assert.ErrorIs(t, err, shared.ErrNoLogger)
	_, err = NewFileStore(shared.NewNopLogger(), "")
	assert.ErrorIs(t, err, shared.ErrNoConfig)
}

func TestLoadWritesDefaults(t *testing.T) {
	store := newStore(t)
	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
	assert.True(t, s.AutoReconnect)
	assert.True(t, s.KeepAwake)
	assert.Equal(t, live.DefaultModel, s.Model)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "autoReconnect: true")
	assert.NotContains(t, string(data), "resumptionHandle")
}

func TestSaveAndReload(t *testing.T) {
	store := newStore(t)
	s := Defaults()
	s.APIKey = "key-123456"
	s.PreferAudioOverText = true
	s.ResumptionHandle = "h-1"
	require.NoError(t, store.Save(s))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestEnvOverridesAreNotPersisted(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(Defaults()))

	t.Setenv(EnvKeyAPIKey, "from-env")
	t.Setenv(EnvKeyModel, "gemini-live-2.5-flash")
	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.APIKey)
	assert.Equal(t, "gemini-live-2.5-flash", s.Model)

	file, err := store.LoadFile()
	require.NoError(t, err)
	assert.Empty(t, file.APIKey)
	assert.Equal(t, live.DefaultModel, file.Model)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("autoReconnect: [nope"), 0o600))
	_, err := store.Load()
	assert.Error(t, err)
}

func TestUpdate(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Update(func(s *Settings) error {
		return s.Set("keepAwake", "false")
	}))
	s, err := store.Load()
	require.NoError(t, err)
	assert.False(t, s.KeepAwake)

	err = store.Update(func(s *Settings) error { return s.Set("bogus", "1") })
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestConcurrentUpdatesKeepEveryWrite(t *testing.T) {
	store := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(func(s *Settings) error {
				s.ResumptionHandle += "h"
				return nil
			}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(func(s *Settings) error {
				s.VoiceName += "v"
				return nil
			}))
		}()
	}
	wg.Wait()

	s, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, s.ResumptionHandle, 20)
	assert.Equal(t, live.DefaultVoice+strings.Repeat("v", 20), s.VoiceName)
}

func TestGetSet(t *testing.T) {
	s := Defaults()
	tests := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{"apiKey", "abc", false},
		{"model", "gemini-live-2.5-flash", false},
		{"toolsEnabled", "false", false},
		{"preferAudioOverText", "true", false},
		{"autoReconnect", "maybe", true},
		{"nope", "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := s.Set(tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got, err := s.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
	assert.True(t, IsSecretKey("apiKey"))
	assert.False(t, IsSecretKey("model"))
	assert.Contains(t, Keys(), "keepAwake")
}

func TestMasked(t *testing.T) {
	s := Settings{APIKey: "AIzaSyExample1234", ResumptionHandle: "abc"}
	m := s.Masked()
	assert.Equal(t, "***1234", m.APIKey)
	assert.Equal(t, "***", m.ResumptionHandle)
	assert.Equal(t, "AIzaSyExample1234", s.APIKey)
}

func TestSessionConfig(t *testing.T) {
	s := Defaults()
	s.APIKey = "k"
	s.ResumptionHandle = "h"
	cfg := s.SessionConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "h", cfg.ResumptionHandle)
	assert.Equal(t, "Kore", cfg.VoiceName)
	assert.True(t, cfg.EnableResumption)
}
