package vad

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
)

func TestLoadModelUnsupportedProvider(t *testing.T) {
	_, err := LoadModel(context.Background(), config.VadConfig{Provider: "cobra", PoolSize: 1}, 16000)

	var unsupported *config.UnsupportedProviderError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "vad", unsupported.Kind)
	assert.Equal(t, "cobra", unsupported.Provider)
}

func TestLoadModelWebRTC(t *testing.T) {
	model, err := LoadModel(context.Background(), config.VadConfig{
		Provider: constants.VadTypeWebRTCVad,
		PoolSize: 2,
		WebRTC:   config.WebRTCConfig{Mode: 2},
	}, 16000)
	require.NoError(t, err)
	defer model.Close(context.Background())

	assert.Equal(t, string(constants.VadTypeWebRTCVad), model.Provider())
	assert.Equal(t, 16000, model.SampleRate())

	d, err := model.Acquire(context.Background())
	require.NoError(t, err)
	speaking, err := d.IsVAD(make([]float32, 320))
	require.NoError(t, err)
	assert.False(t, speaking)
	model.Release(context.Background(), d)
}

func TestDownloadModel(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("onnx"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "models", "silero_vad.onnx")
	cfg := config.VadConfig{
		Provider: constants.VadTypeSileroVad,
		Silero:   config.SileroConfig{ModelPath: path, ModelURL: srv.URL},
	}

	downloaded, err := DownloadModel(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, downloaded)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "onnx", string(data))

	// 已存在时不再下载
	downloaded, err = DownloadModel(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Equal(t, 1, hits)
}

func TestDownloadModelSkipsWebRTC(t *testing.T) {
	downloaded, err := DownloadModel(context.Background(), config.VadConfig{Provider: constants.VadTypeWebRTCVad})
	require.NoError(t, err)
	assert.False(t, downloaded)
}
