package msg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientHello(t *testing.T) {
	m, err := ParseClientMessage([]byte(`{"type":"hello","version":1,"transport":"websocket","audio_params":{"format":"opus","sample_rate":16000,"channels":1,"frame_duration":60}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeHello, m.Type)
	require.NotNil(t, m.AudioFormat)
	assert.Equal(t, 16000, m.AudioFormat.SampleRate)
	assert.Equal(t, 60, m.AudioFormat.FrameDuration)
}

func TestParseClientMessageInvalid(t *testing.T) {
	_, err := ParseClientMessage([]byte("not json"))
	assert.Error(t, err)
}

func TestServerMessageJSON(t *testing.T) {
	data, err := json.Marshal(NewTtsMessage("s1", MessageStateSentenceStart, "hello"))
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "tts", got["type"])
	assert.Equal(t, "sentence_start", got["state"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "s1", got["session_id"])
	assert.NotContains(t, got, "audio_params")

	data, err = json.Marshal(NewHelloMessage("s1", AudioFormat{Format: "opus", SampleRate: 24000, Channels: 1, FrameDuration: 60}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "websocket", got["transport"])
	assert.Equal(t, float64(24000), got["audio_params"].(map[string]interface{})["sample_rate"])
}
