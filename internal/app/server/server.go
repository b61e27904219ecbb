package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"voice-agent-server-golang/internal/config"
	log "voice-agent-server-golang/logger"
)

const shutdownTimeout = 5 * time.Second

// AgentServer 接收呼叫并为每个呼叫运行一次 entrypoint
type AgentServer struct {
	cfg        config.ServerConfig
	setup      SetupFunc
	entrypoint EntrypointFunc

	upgrader websocket.Upgrader
	jobs     cmap.ConcurrentMap[string, *JobContext]
	metrics  *metrics

	prewarmOnce sync.Once
	proc        *WorkerProcess
	prewarmErr  error

	// 所有 job 的父 ctx，Run 退出时取消
	baseCtx context.Context
}

func NewAgentServer(cfg config.ServerConfig) *AgentServer {
	return &AgentServer{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源的连接
			},
		},
		jobs:    cmap.New[*JobContext](),
		metrics: newMetrics(),
		baseCtx: context.Background(),
	}
}

// SetSetupFunc 注册预热函数
func (s *AgentServer) SetSetupFunc(fn SetupFunc) {
	s.setup = fn
}

// RTCSession 注册呼叫入口
func (s *AgentServer) RTCSession(fn EntrypointFunc) {
	s.entrypoint = fn
}

// Prewarm 执行一次预热，重复调用返回第一次的结果
func (s *AgentServer) Prewarm(ctx context.Context) (*WorkerProcess, error) {
	s.prewarmOnce.Do(func() {
		startTs := time.Now()
		if s.setup == nil {
			s.proc = &WorkerProcess{StartedAt: startTs}
			return
		}
		s.proc, s.prewarmErr = s.setup(ctx)
		if s.prewarmErr == nil && s.proc == nil {
			s.proc = &WorkerProcess{}
		}
		if s.proc != nil && s.proc.StartedAt.IsZero() {
			s.proc.StartedAt = startTs
		}
		s.metrics.prewarmSeconds.Set(time.Since(startTs).Seconds())
		log.Infof("worker 预热完成, 耗时: %d ms", time.Since(startTs).Milliseconds())
	})
	return s.proc, s.prewarmErr
}

// Handler 路由：ws_path 接收呼叫，/healthz，按配置开启 /metrics
func (s *AgentServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WsPath, s.handleCall)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok, active jobs: %d", s.jobs.Count())
		if s.proc != nil && s.proc.VAD != nil {
			active, idle := s.proc.VAD.Stats()
			fmt.Fprintf(w, ", vad active: %d, idle: %d", active, idle)
		}
	})
	if s.cfg.EnableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run 先预热再开始监听，阻塞直到 ctx 取消或监听失败
func (s *AgentServer) Run(ctx context.Context) error {
	if s.entrypoint == nil {
		return errors.New("未注册呼叫入口")
	}
	if _, err := s.Prewarm(ctx); err != nil {
		return fmt.Errorf("worker 预热失败: %w", err)
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	s.baseCtx = jobCtx

	httpServer := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("语音助手服务启动在 ws://%s%s", s.cfg.ListenAddr(), s.cfg.WsPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("服务正在关闭")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.shutdownJobs("server shutdown")
		return err
	})

	err := g.Wait()
	if s.proc != nil && s.proc.VAD != nil {
		if closeErr := s.proc.VAD.Close(context.Background()); closeErr != nil {
			log.Warnf("关闭VAD失败: %v", closeErr)
		}
	}
	return err
}

func (s *AgentServer) shutdownJobs(reason string) {
	for _, job := range s.jobs.Items() {
		job.Shutdown(reason)
	}
}

// ActiveJobs 当前进行中的呼叫数
func (s *AgentServer) ActiveJobs() int {
	return s.jobs.Count()
}

func (s *AgentServer) handleCall(w http.ResponseWriter, r *http.Request) {
	proc, err := s.Prewarm(r.Context())
	if err != nil {
		http.Error(w, "worker 未就绪", http.StatusServiceUnavailable)
		return
	}

	participant := r.Header.Get("Device-Id")
	if participant == "" {
		participant = r.URL.Query().Get("participant")
	}
	if participant == "" {
		log.Warn("缺少 Device-Id 请求头")
		http.Error(w, "缺少 Device-Id 请求头", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket 升级失败: %v", err)
		return
	}

	job := newJobContext(s.baseCtx, uuid.NewString(), participant, proc, newWsRoom(conn))
	job.metrics = s.metrics
	go s.runJob(job)
}

func (s *AgentServer) runJob(job *JobContext) {
	s.jobs.Set(job.ID, job)
	s.metrics.activeJobs.Inc()
	defer func() {
		s.jobs.Remove(job.ID)
		s.metrics.activeJobs.Dec()
	}()

	log.Infof("新呼叫 job: %s, participant: %s", job.ID, job.Participant)

	// 连接断开即结束 job
	go func() {
		select {
		case <-job.Room.Closed():
			job.Shutdown("connection closed")
		case <-job.Done():
		}
	}()

	if err := s.entrypoint(job.Context(), job); err != nil {
		log.Errorf("job %s 入口执行失败: %v", job.ID, err)
		s.metrics.jobsTotal.WithLabelValues("error").Inc()
		job.Shutdown("entrypoint error")
		return
	}
	<-job.Done()
	s.metrics.jobsTotal.WithLabelValues("completed").Inc()
}
