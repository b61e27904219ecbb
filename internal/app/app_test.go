package app

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/app/agent"
	"voice-agent-server-golang/internal/app/server"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/llm"
	"voice-agent-server-golang/internal/domain/stt"
	"voice-agent-server-golang/internal/domain/tts"
	"voice-agent-server-golang/internal/domain/vad/inter"
)

type fakeSTT struct{ id int }

func (*fakeSTT) Recognize(ctx context.Context, pcm []float32, sampleRate int) (string, error) {
	return "", nil
}

type fakeLLM struct{ id int }

func (*fakeLLM) ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (*fakeLLM) GetModelInfo() map[string]interface{} { return nil }

type fakeTTS struct{ id int }

func (*fakeTTS) TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (chan []byte, error) {
	return nil, nil
}

type fakeModel struct{ closed atomic.Bool }

func (m *fakeModel) Provider() string                                    { return "fake" }
func (m *fakeModel) SampleRate() int                                     { return 16000 }
func (m *fakeModel) Acquire(ctx context.Context) (inter.Detector, error) { return nil, nil }
func (m *fakeModel) Release(ctx context.Context, d inter.Detector)       {}
func (m *fakeModel) Stats() (int, int)                                   { return 0, 1 }
func (m *fakeModel) Close(ctx context.Context) error {
	m.closed.Store(true)
	return nil
}

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.Agent.Greeting = "hi"
	cfg.Session.InputSampleRate = 16000
	cfg.Server.WsPath = "/agent/v1/"
	cfg.Vad.Provider = constants.VadTypeSileroVad
	return cfg
}

func fakeFactories() []Option {
	var n int
	return []Option{
		WithSTTFactory(func(config.PipelineConfig) (stt.STTProvider, error) { n++; return &fakeSTT{id: n}, nil }),
		WithLLMFactory(func(config.PipelineConfig) (llm.LLMProvider, error) { n++; return &fakeLLM{id: n}, nil }),
		WithTTSFactory(func(config.PipelineConfig) (tts.TTSProvider, error) { n++; return &fakeTTS{id: n}, nil }),
	}
}

func TestHandleSessionCreatesFreshComponents(t *testing.T) {
	var captured []server.SessionOptions
	var agents []server.Agent
	opts := append(fakeFactories(), WithStartFunc(func(ctx context.Context, job *server.JobContext, a server.Agent, o server.SessionOptions) (*server.AgentSession, error) {
		captured = append(captured, o)
		agents = append(agents, a)
		return nil, nil
	}))
	a := NewApp(testConfig(), opts...)

	require.NoError(t, a.HandleSession(context.Background(), &server.JobContext{ID: "1"}))
	require.NoError(t, a.HandleSession(context.Background(), &server.JobContext{ID: "2"}))
	require.Len(t, captured, 2)

	assert.NotSame(t, captured[0].STT, captured[1].STT)
	assert.NotSame(t, captured[0].LLM, captured[1].LLM)
	assert.NotSame(t, captured[0].TTS, captured[1].TTS)
	assert.NotSame(t, agents[0], agents[1])
	assert.Equal(t, agent.DefaultInstructions, agents[0].Instructions())
	assert.Equal(t, "hi", captured[0].Greeting)
}

func TestHandleSessionUnsupportedProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.STT.Provider = "deepgram"
	a := NewApp(cfg, WithStartFunc(func(ctx context.Context, job *server.JobContext, ag server.Agent, o server.SessionOptions) (*server.AgentSession, error) {
		t.Fatal("不应启动会话")
		return nil, nil
	}))

	err := a.HandleSession(context.Background(), &server.JobContext{ID: "1"})
	var unsupported *config.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "stt", unsupported.Kind)
}

func TestPrewarmLoadsVADOnce(t *testing.T) {
	var calls atomic.Int32
	model := &fakeModel{}
	a := NewApp(testConfig(), WithVadLoader(func(ctx context.Context, cfg config.VadConfig, sampleRate int) (inter.Model, error) {
		calls.Add(1)
		assert.Equal(t, 16000, sampleRate)
		return model, nil
	}))
	srv := a.Server()

	proc, err := srv.Prewarm(context.Background())
	require.NoError(t, err)
	again, err := srv.Prewarm(context.Background())
	require.NoError(t, err)

	assert.Same(t, proc, again)
	assert.Same(t, model, proc.VAD)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPrewarmError(t *testing.T) {
	a := NewApp(testConfig(), WithVadLoader(func(ctx context.Context, cfg config.VadConfig, sampleRate int) (inter.Model, error) {
		return nil, errors.New("no model")
	}))
	_, err := a.Prewarm(context.Background())
	assert.ErrorContains(t, err, "no model")
}

func TestDownloadFiles(t *testing.T) {
	model := &fakeModel{}
	downloads := 0
	a := NewApp(testConfig(),
		WithVadDownloader(func(ctx context.Context, cfg config.VadConfig) (bool, error) {
			downloads++
			return true, nil
		}),
		WithVadLoader(func(ctx context.Context, cfg config.VadConfig, sampleRate int) (inter.Model, error) {
			return model, nil
		}),
	)

	var out bytes.Buffer
	require.NoError(t, a.DownloadFiles(context.Background(), &out))
	assert.Equal(t, 1, downloads)
	assert.True(t, model.closed.Load())
	assert.Contains(t, out.String(), "Downloading Silero VAD model...")
	assert.Contains(t, out.String(), "✓ Silero VAD model downloaded")
	assert.Contains(t, out.String(), "All models downloaded successfully!")
}

func TestDownloadFilesError(t *testing.T) {
	a := NewApp(testConfig(), WithVadDownloader(func(ctx context.Context, cfg config.VadConfig) (bool, error) {
		return false, errors.New("network down")
	}))
	var out bytes.Buffer
	assert.ErrorContains(t, a.DownloadFiles(context.Background(), &out), "network down")
	assert.NotContains(t, out.String(), "successfully")
}

func TestCreateAppWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enable: true, Host: mr.Host(), Port: port, KeyPrefix: "agent"}
	srv, err := CreateApp(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestCreateAppRedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enable: true, Host: "127.0.0.1", Port: 1}
	_, err := CreateApp(context.Background(), cfg)
	assert.Error(t, err)
}
