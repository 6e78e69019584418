package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bt-bridge/gemini-live/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckModel(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotKey = r.URL.Path, r.URL.Query().Get("key")
		switch r.URL.Path {
		case "/v1beta/models/gemini-2.0-flash-exp":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"models/gemini-2.0-flash-exp","displayName":"Gemini 2.0 Flash",` +
				`"supportedGenerationMethods":["generateContent","bidiGenerateContent"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"status":"NOT_FOUND","message":"model not found"}}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	info, err := CheckModel(ctx, Config{APIKey: "k1"}, srv.URL+"/v1beta")
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash-exp", gotPath)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, "Gemini 2.0 Flash", info.DisplayName)
	assert.True(t, info.SupportsLive())

	_, err = CheckModel(ctx, Config{APIKey: "k1", Model: "nope"}, srv.URL+"/v1beta")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
	assert.Contains(t, err.Error(), "models/nope")
}

func TestCheckModelValidatesConfig(t *testing.T) {
	_, err := CheckModel(context.Background(), Config{}, "")
	assert.ErrorIs(t, err, shared.ErrNoAPIKey)
}

func TestCheckModelHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := CheckModel(ctx, Config{APIKey: "k"}, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestModelInfoSupportsLive(t *testing.T) {
	assert.False(t, ModelInfo{SupportedGenerationMethods: []string{"generateContent"}}.SupportsLive())
	assert.True(t, ModelInfo{SupportedGenerationMethods: []string{"BidiGenerateContent"}}.SupportsLive())
}
