package tts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/tts/cosyvoice"
	"voice-agent-server-golang/internal/domain/tts/edge"
)

func pipeline(provider constants.TtsType) config.PipelineConfig {
	return config.PipelineConfig{TTS: config.TTSConfig{
		Provider:  provider,
		Edge:      config.EdgeConfig{Voice: "en-US-AriaNeural"},
		Cosyvoice: config.CosyvoiceConfig{APIURL: "http://localhost:50000/tts", AudioFormat: "mp3"},
	}}
}

func TestCreateTTS(t *testing.T) {
	p, err := CreateTTS(pipeline(constants.TtsTypeEdge))
	require.NoError(t, err)
	assert.IsType(t, &edge.EdgeTTSProvider{}, p)

	p, err = CreateTTS(pipeline(constants.TtsTypeCosyvoice))
	require.NoError(t, err)
	assert.IsType(t, &cosyvoice.CosyVoiceTTSProvider{}, p)
}

func TestCreateTTSReturnsFreshInstances(t *testing.T) {
	a, err := CreateTTS(pipeline(constants.TtsTypeEdge))
	require.NoError(t, err)
	b, err := CreateTTS(pipeline(constants.TtsTypeEdge))
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestCreateTTSUnsupported(t *testing.T) {
	_, err := CreateTTS(pipeline("elevenlabs"))
	var unsupported *config.UnsupportedProviderError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "tts", unsupported.Kind)
}
