package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"voice-agent-server-golang/internal/app/agent"
	"voice-agent-server-golang/internal/app/handler"
	"voice-agent-server-golang/internal/app/server"
	"voice-agent-server-golang/internal/config"
	i_redis "voice-agent-server-golang/internal/db/redis"
	"voice-agent-server-golang/internal/domain/llm"
	"voice-agent-server-golang/internal/domain/stt"
	"voice-agent-server-golang/internal/domain/transcript"
	"voice-agent-server-golang/internal/domain/tts"
	"voice-agent-server-golang/internal/domain/vad"
	"voice-agent-server-golang/internal/domain/vad/inter"
	log "voice-agent-server-golang/logger"
)

// 对话记录在 redis 中的保留时长
const transcriptTTL = 7 * 24 * time.Hour

type (
	STTFactory    func(config.PipelineConfig) (stt.STTProvider, error)
	LLMFactory    func(config.PipelineConfig) (llm.LLMProvider, error)
	TTSFactory    func(config.PipelineConfig) (tts.TTSProvider, error)
	VadLoader     func(ctx context.Context, cfg config.VadConfig, sampleRate int) (inter.Model, error)
	VadDownloader func(ctx context.Context, cfg config.VadConfig) (bool, error)
)

// App 组装 worker：预热加载 VAD，每个呼叫新建一套 STT/LLM/TTS 和助手
type App struct {
	cfg *config.AppConfig

	createSTT   STTFactory
	createLLM   LLMFactory
	createTTS   TTSFactory
	loadVAD     VadLoader
	downloadVAD VadDownloader

	transcript transcript.Store
	startFunc  handler.StartFunc
}

type Option func(*App)

func WithSTTFactory(f STTFactory) Option { return func(a *App) { a.createSTT = f } }

func WithLLMFactory(f LLMFactory) Option { return func(a *App) { a.createLLM = f } }

func WithTTSFactory(f TTSFactory) Option { return func(a *App) { a.createTTS = f } }

func WithVadLoader(f VadLoader) Option { return func(a *App) { a.loadVAD = f } }

func WithVadDownloader(f VadDownloader) Option { return func(a *App) { a.downloadVAD = f } }

func WithTranscript(store transcript.Store) Option { return func(a *App) { a.transcript = store } }

func WithStartFunc(f handler.StartFunc) Option { return func(a *App) { a.startFunc = f } }

func NewApp(cfg *config.AppConfig, opts ...Option) *App {
	a := &App{
		cfg:         cfg,
		createSTT:   stt.CreateSTT,
		createLLM:   llm.CreateLLM,
		createTTS:   tts.CreateTTS,
		loadVAD:     vad.LoadModel,
		downloadVAD: vad.DownloadModel,
		transcript:  transcript.NopStore{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateApp 按配置创建服务，启用 redis 时对话记录写入 redis
func CreateApp(ctx context.Context, cfg *config.AppConfig) (*server.AgentServer, error) {
	var opts []Option
	if cfg.Redis.Enable {
		client, err := i_redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		i_redis.LogStats(client)
		store := transcript.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Session.MaxHistoryTurns*2, transcriptTTL)
		opts = append(opts, WithTranscript(store))
	}
	return NewApp(cfg, opts...).Server(), nil
}

// Server 注册预热与呼叫入口
func (a *App) Server() *server.AgentServer {
	srv := server.NewAgentServer(a.cfg.Server)
	srv.SetSetupFunc(a.Prewarm)
	srv.RTCSession(a.HandleSession)
	return srv
}

// Prewarm 加载 VAD 模型，每个 worker 只执行一次
func (a *App) Prewarm(ctx context.Context) (*server.WorkerProcess, error) {
	model, err := a.loadVAD(ctx, a.cfg.Vad, a.cfg.Session.InputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("加载VAD模型失败: %w", err)
	}
	return &server.WorkerProcess{VAD: model, StartedAt: time.Now()}, nil
}

// HandleSession 每个呼叫新建 provider 和助手，然后启动会话
func (a *App) HandleSession(ctx context.Context, job *server.JobContext) error {
	sttProvider, err := a.createSTT(a.cfg.Pipeline)
	if err != nil {
		return err
	}
	llmProvider, err := a.createLLM(a.cfg.Pipeline)
	if err != nil {
		return err
	}
	ttsProvider, err := a.createTTS(a.cfg.Pipeline)
	if err != nil {
		return err
	}
	assistant := agent.NewAssistant(a.cfg.Agent.Instructions)

	opts := []handler.Option{
		handler.WithGreeting(a.cfg.Agent.Greeting),
		handler.WithTranscript(a.transcript),
	}
	if a.startFunc != nil {
		opts = append(opts, handler.WithStartFunc(a.startFunc))
	}
	h := handler.NewSessionHandler(sttProvider, llmProvider, ttsProvider, assistant, a.cfg.Session, opts...)
	log.Debugf("job %s 组件创建完成, stt: %s, llm: %v, tts: %s", job.ID,
		a.cfg.Pipeline.STT.Provider, llmProvider.GetModelInfo(), a.cfg.Pipeline.TTS.Provider)
	return h.Handle(ctx, job)
}

// DownloadFiles 提前下载并加载一次模型文件
func (a *App) DownloadFiles(ctx context.Context, out io.Writer) error {
	fmt.Fprintln(out, "Downloading Silero VAD model...")
	if _, err := a.downloadVAD(ctx, a.cfg.Vad); err != nil {
		return err
	}
	model, err := a.loadVAD(ctx, a.cfg.Vad, a.cfg.Session.InputSampleRate)
	if err != nil {
		return fmt.Errorf("加载VAD模型失败: %w", err)
	}
	if err := model.Close(ctx); err != nil {
		log.Warnf("关闭VAD失败: %v", err)
	}
	fmt.Fprintln(out, "✓ Silero VAD model downloaded")

	fmt.Fprintln(out, "\nNote: turn detection uses VAD endpointing and needs no extra model")
	fmt.Fprintln(out, "\nAll models downloaded successfully!")
	return nil
}
