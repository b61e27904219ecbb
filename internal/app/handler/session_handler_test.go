package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/internal/app/agent"
	"voice-agent-server-golang/internal/app/server"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/transcript"
)

type stubSTT struct{}

func (stubSTT) Recognize(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	return "", nil
}

type stubLLM struct{}

func (stubLLM) ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (stubLLM) GetModelInfo() map[string]interface{} { return nil }

type stubTTS struct{}

func (stubTTS) TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (chan []byte, error) {
	return nil, nil
}

func TestHandleForwardsComponents(t *testing.T) {
	sttProvider, llmProvider, ttsProvider := stubSTT{}, stubLLM{}, stubTTS{}
	assistant := agent.NewAssistant("")
	session := config.SessionConfig{MinEndpointingDelay: 300 * time.Millisecond}
	store := transcript.NopStore{}
	job := &server.JobContext{ID: "job-1", Participant: "alice"}

	calls := 0
	h := NewSessionHandler(sttProvider, llmProvider, ttsProvider, assistant, session,
		WithGreeting("hello"),
		WithTranscript(store),
		WithStartFunc(func(ctx context.Context, gotJob *server.JobContext, gotAgent server.Agent, opts server.SessionOptions) (*server.AgentSession, error) {
			calls++
			assert.Same(t, job, gotJob)
			assert.Same(t, assistant, gotAgent)
			assert.Equal(t, sttProvider, opts.STT)
			assert.Equal(t, llmProvider, opts.LLM)
			assert.Equal(t, ttsProvider, opts.TTS)
			assert.Equal(t, session, opts.Config)
			assert.Equal(t, "hello", opts.Greeting)
			assert.Equal(t, store, opts.Transcript)
			return nil, nil
		}),
	)

	require.NoError(t, h.Handle(context.Background(), job))
	assert.Equal(t, 1, calls)
}

func TestHandlePropagatesError(t *testing.T) {
	h := NewSessionHandler(stubSTT{}, stubLLM{}, stubTTS{}, agent.NewAssistant(""), config.SessionConfig{},
		WithStartFunc(func(ctx context.Context, job *server.JobContext, a server.Agent, opts server.SessionOptions) (*server.AgentSession, error) {
			return nil, errors.New("no vad")
		}),
	)
	err := h.Handle(context.Background(), &server.JobContext{})
	assert.EqualError(t, err, "no vad")
}
