package whisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/internal/config"
)

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF", string(data[:4]))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" what time is it "}`))
	}))
	defer srv.Close()

	wh, err := NewWhisper(config.WhisperConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "whisper-1"}, "en")
	require.NoError(t, err)

	text, err := wh.Recognize(context.Background(), make([]float32, 1600), 16000)
	require.NoError(t, err)
	assert.Equal(t, "what time is it", text)
}

func TestRecognizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	wh, err := NewWhisper(config.WhisperConfig{BaseURL: srv.URL, Model: "whisper-1"}, "")
	require.NoError(t, err)

	_, err = wh.Recognize(context.Background(), make([]float32, 160), 16000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestNewWhisperRequiresBaseURL(t *testing.T) {
	_, err := NewWhisper(config.WhisperConfig{}, "en")
	assert.Error(t, err)
}
