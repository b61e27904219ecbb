package stt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/stt/funasr"
	"voice-agent-server-golang/internal/domain/stt/whisper"
)

func pipeline(provider constants.SttType) config.PipelineConfig {
	return config.PipelineConfig{STT: config.STTConfig{
		Provider: provider,
		Language: "en",
		Funasr:   config.FunasrConfig{Host: "localhost", Port: 10095},
		Whisper:  config.WhisperConfig{BaseURL: "https://api.openai.com/v1", Model: "whisper-1"},
	}}
}

func TestCreateSTT(t *testing.T) {
	p, err := CreateSTT(pipeline(constants.SttTypeFunasr))
	require.NoError(t, err)
	assert.IsType(t, &funasr.Funasr{}, p)

	p, err = CreateSTT(pipeline(constants.SttTypeWhisper))
	require.NoError(t, err)
	assert.IsType(t, &whisper.Whisper{}, p)
}

func TestCreateSTTReturnsFreshInstances(t *testing.T) {
	a, err := CreateSTT(pipeline(constants.SttTypeFunasr))
	require.NoError(t, err)
	b, err := CreateSTT(pipeline(constants.SttTypeFunasr))
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestCreateSTTUnsupported(t *testing.T) {
	_, err := CreateSTT(pipeline("deepgram"))
	var unsupported *config.UnsupportedProviderError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "stt", unsupported.Kind)
	assert.Equal(t, "deepgram", unsupported.Provider)
}
