package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/schema"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/data/msg"
	"voice-agent-server-golang/internal/domain/audio"
	"voice-agent-server-golang/internal/domain/llm"
	"voice-agent-server-golang/internal/domain/stt"
	"voice-agent-server-golang/internal/domain/transcript"
	"voice-agent-server-golang/internal/domain/tts"
	"voice-agent-server-golang/internal/domain/vad/inter"
	log "voice-agent-server-golang/logger"
)

// 连接建立后等待 hello 的时长
var helloTimeout = 10 * time.Second

const (
	// opus 单帧最长 120ms
	maxFrameMs = 120
	// 首句先连续发送的帧数，之后按帧长匀速发送
	preBufferFrames = 3
)

// Agent 会话使用的助手
type Agent interface {
	Instructions() string
}

// SessionOptions 一次会话的组件
type SessionOptions struct {
	STT    stt.STTProvider
	LLM    llm.LLMProvider
	TTS    tts.TTSProvider
	Config config.SessionConfig

	// Greeting 握手完成后播报，为空不播报
	Greeting   string
	Transcript transcript.Store
}

// AgentSession 一路呼叫的语音对话：VAD -> 端点检测 -> STT -> LLM -> TTS
type AgentSession struct {
	job   *JobContext
	agent Agent
	opts  SessionOptions
	room  Room

	detector inter.Detector
	decoder  *audio.AudioProcesser
	turn     *turnDetector
	metrics  *metrics

	helloDone bool

	historyMu sync.Mutex
	history   []*schema.Message

	replyMu     sync.Mutex
	replyCancel context.CancelFunc
	replyDone   chan struct{}

	agentSpeaking atomic.Bool
	lastActivity  atomic.Int64
}

// StartAgentSession 为 job 启动一个会话，会话在 job 结束时释放资源
func StartAgentSession(ctx context.Context, job *JobContext, agent Agent, opts SessionOptions) (*AgentSession, error) {
	if opts.STT == nil || opts.LLM == nil || opts.TTS == nil {
		return nil, errors.New("stt/llm/tts 不能为空")
	}
	if agent == nil {
		return nil, errors.New("agent 不能为空")
	}
	if job.Proc == nil || job.Proc.VAD == nil {
		return nil, errors.New("worker 未加载VAD")
	}
	if opts.Transcript == nil {
		opts.Transcript = transcript.NopStore{}
	}

	sampleRate := job.Proc.VAD.SampleRate()
	decoder, err := audio.GetAudioProcesser(sampleRate, audio.Channels, audio.FrameDuration)
	if err != nil {
		return nil, fmt.Errorf("创建音频解码器失败: %w", err)
	}
	detector, err := job.Proc.VAD.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取VAD实例失败: %w", err)
	}

	s := &AgentSession{
		job:      job,
		agent:    agent,
		opts:     opts,
		room:     job.Room,
		detector: detector,
		decoder:  decoder,
		turn:     newTurnDetector(sampleRate, opts.Config.MinEndpointingDelay, opts.Config.MaxUtterance),
	}
	s.metrics = job.metrics
	s.lastActivity.Store(time.Now().UnixNano())

	if opts.Config.RestoreHistory {
		s.restoreHistory(ctx)
	}

	job.AddShutdownCallback(func(reason string) {
		s.cancelReply()
		job.Proc.VAD.Release(context.Background(), detector)
	})

	go s.run(job.Context())
	return s, nil
}

func (s *AgentSession) restoreHistory(ctx context.Context) {
	limit := s.opts.Config.MaxHistoryTurns * 2
	messages, err := s.opts.Transcript.History(ctx, s.job.Participant, limit)
	if err != nil {
		log.Warnf("恢复对话记录失败: %v", err)
		return
	}
	s.history = messages
	log.Debugf("恢复对话记录 %d 条, participant: %s", len(messages), s.job.Participant)
}

func (s *AgentSession) run(ctx context.Context) {
	helloTimer := time.NewTimer(helloTimeout)
	defer helloTimer.Stop()

	var idle <-chan time.Time
	if s.opts.Config.IdleTimeout > 0 {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		idle = ticker.C
	}

	pcmBuf := make([]float32, s.turn.sampleRate*maxFrameMs/1000*audio.Channels)
	for {
		select {
		case <-ctx.Done():
			return
		case <-helloTimer.C:
			if !s.helloDone {
				log.Warnf("job %s 等待 hello 超时", s.job.ID)
				s.job.Shutdown("hello timeout")
				return
			}
		case data, ok := <-s.room.Commands():
			if !ok {
				s.job.Shutdown("connection closed")
				return
			}
			if err := s.handleTextMessage(data); err != nil {
				log.Errorf("处理文本消息失败: %v", err)
			}
		case frame, ok := <-s.room.Audio():
			if !ok {
				s.job.Shutdown("connection closed")
				return
			}
			if !s.helloDone {
				continue
			}
			s.handleAudio(frame, pcmBuf)
		case <-idle:
			last := time.Unix(0, s.lastActivity.Load())
			if !s.agentSpeaking.Load() && !s.turn.Speaking() && time.Since(last) > s.opts.Config.IdleTimeout {
				log.Infof("job %s 空闲超时", s.job.ID)
				s.job.Shutdown("idle timeout")
				return
			}
		}
	}
}

func (s *AgentSession) handleTextMessage(data []byte) error {
	clientMsg, err := msg.ParseClientMessage(data)
	if err != nil {
		return fmt.Errorf("解析消息失败: %w", err)
	}
	log.Debugf("收到文本消息: %s", string(data))

	switch clientMsg.Type {
	case msg.MessageTypeHello:
		return s.handleHello(clientMsg)
	case msg.MessageTypeListen:
		if clientMsg.State == msg.MessageStateDetect && clientMsg.Text != "" {
			s.touch()
			s.startReply(clientMsg.Text)
		}
		return nil
	case msg.MessageTypeAbort:
		log.Infof("job %s abort 会话", s.job.ID)
		s.interrupt()
		return nil
	case msg.MessageTypeGoodBye:
		s.job.Shutdown("goodbye")
		return nil
	default:
		return fmt.Errorf("未知消息类型: %s", clientMsg.Type)
	}
}

func (s *AgentSession) handleHello(clientMsg *msg.ClientMessage) error {
	if clientMsg.AudioFormat != nil && clientMsg.AudioFormat.Format != "" && clientMsg.AudioFormat.Format != audio.Format {
		return fmt.Errorf("不支持的音频格式: %s", clientMsg.AudioFormat.Format)
	}
	out := msg.AudioFormat{
		Format:        audio.Format,
		SampleRate:    s.opts.Config.OutputSampleRate,
		Channels:      audio.Channels,
		FrameDuration: s.opts.Config.FrameDuration,
	}
	if err := s.sendJSON(msg.NewHelloMessage(s.job.ID, out)); err != nil {
		return err
	}
	first := !s.helloDone
	s.helloDone = true
	s.touch()

	if first && s.opts.Greeting != "" {
		s.startSay(s.opts.Greeting)
	}
	return nil
}

func (s *AgentSession) handleAudio(frame []byte, pcmBuf []float32) {
	pcmData, err := s.decoder.DecodeFloat32(frame, pcmBuf)
	if err != nil {
		log.Warnf("opus 解码失败: %v", err)
		return
	}
	isSpeech, err := s.detector.IsVAD(pcmData)
	if err != nil {
		log.Warnf("vad 检测失败: %v", err)
		return
	}

	res := s.turn.Push(pcmData, isSpeech)
	if res.Started {
		s.touch()
	}
	if s.opts.Config.AllowInterruptions && s.agentSpeaking.Load() && res.Speech >= s.opts.Config.MinInterruptionDuration && res.Speech > 0 {
		log.Infof("job %s 用户打断", s.job.ID)
		s.interrupt()
	}
	if res.Utterance == nil {
		return
	}
	if !s.opts.Config.AllowInterruptions && s.agentSpeaking.Load() {
		log.Infof("job %s 不允许打断，丢弃播报期间的用户输入", s.job.ID)
		return
	}
	utterance := res.Utterance
	s.startTask(func(ctx context.Context) {
		s.recognizeAndReply(ctx, utterance)
	})
}

func (s *AgentSession) recognizeAndReply(ctx context.Context, utterance []float32) {
	startTs := time.Now()
	text, err := s.opts.STT.Recognize(ctx, utterance, s.turn.sampleRate)
	if err != nil {
		if ctx.Err() == nil {
			log.Errorf("语音识别失败: %v", err)
		}
		return
	}
	log.Debugf("识别结果: %s, 耗时: %d ms", text, time.Since(startTs).Milliseconds())
	if text == "" || ctx.Err() != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.userTurns.Inc()
	}
	if err := s.sendJSON(msg.NewSttMessage(s.job.ID, text)); err != nil {
		log.Errorf("发送stt消息失败: %v", err)
		return
	}
	s.touch()
	s.reply(ctx, text)
}

func (s *AgentSession) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// startReply 取消上一轮回复后开始新一轮 LLM -> TTS
func (s *AgentSession) startReply(text string) {
	s.startTask(func(ctx context.Context) {
		s.reply(ctx, text)
	})
}

// startSay 直接播报文本，不经过 LLM
func (s *AgentSession) startSay(text string) {
	s.startTask(func(ctx context.Context) {
		s.say(ctx, text)
	})
}

func (s *AgentSession) startTask(task func(ctx context.Context)) {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()

	s.stopReplyLocked()
	ctx, cancel := context.WithCancel(s.job.Context())
	done := make(chan struct{})
	s.replyCancel = cancel
	s.replyDone = done
	go func() {
		defer close(done)
		defer cancel()
		task(ctx)
	}()
}

// stopReplyLocked 取消当前回复并等待其退出，正在播报时通知客户端停止
func (s *AgentSession) stopReplyLocked() {
	if s.replyCancel == nil {
		return
	}
	wasSpeaking := s.agentSpeaking.Load()
	s.replyCancel()
	<-s.replyDone
	s.replyCancel = nil
	s.replyDone = nil
	if wasSpeaking {
		s.sendJSON(msg.NewTtsMessage(s.job.ID, msg.MessageStateStop, ""))
	}
}

func (s *AgentSession) cancelReply() {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	s.stopReplyLocked()
}

// interrupt 打断正在进行的回复
func (s *AgentSession) interrupt() {
	s.cancelReply()
}

func (s *AgentSession) dialogue(userText string) []*schema.Message {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	messages := make([]*schema.Message, 0, len(s.history)+2)
	if instructions := s.agent.Instructions(); instructions != "" {
		messages = append(messages, schema.SystemMessage(instructions))
	}
	messages = append(messages, s.history...)
	messages = append(messages, schema.UserMessage(userText))
	return messages
}

func (s *AgentSession) remember(ctx context.Context, role schema.RoleType, content string) {
	s.historyMu.Lock()
	s.history = append(s.history, &schema.Message{Role: role, Content: content})
	if limit := s.opts.Config.MaxHistoryTurns * 2; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.historyMu.Unlock()

	if err := s.opts.Transcript.Append(ctx, s.job.Participant, role, content); err != nil {
		log.Warnf("保存对话记录失败: %v", err)
	}
}

func (s *AgentSession) reply(ctx context.Context, userText string) {
	startTs := time.Now()
	dialogue := s.dialogue(userText)

	sentences, err := llm.HandleLLMWithContext(ctx, s.opts.LLM, dialogue, s.job.ID)
	if err != nil {
		log.Errorf("LLM 请求失败, job: %s, error: %v", s.job.ID, err)
		return
	}
	s.remember(context.WithoutCancel(ctx), schema.User, userText)

	s.beginSpeaking()
	defer s.endSpeaking(ctx)

	var fullText string
	for resp := range sentences {
		if resp.Text != "" {
			if resp.IsStart {
				log.Infof("耗时统计: llm首句: %d ms", time.Since(startTs).Milliseconds())
			}
			if err := s.speak(ctx, resp.Text); err != nil {
				log.Errorf("tts 播报失败: %v", err)
				return
			}
		}
		if resp.Err != nil {
			log.Errorf("LLM 响应中断, job: %s, error: %v", s.job.ID, resp.Err)
			return
		}
		if resp.IsEnd {
			fullText = resp.FullText
		}
	}
	if ctx.Err() != nil || fullText == "" {
		return
	}
	s.remember(context.WithoutCancel(ctx), schema.Assistant, fullText)
}

func (s *AgentSession) say(ctx context.Context, text string) {
	s.beginSpeaking()
	defer s.endSpeaking(ctx)

	if err := s.speak(ctx, text); err != nil {
		log.Errorf("tts 播报失败: %v", err)
		return
	}
	if ctx.Err() == nil {
		s.remember(context.WithoutCancel(ctx), schema.Assistant, text)
	}
}

func (s *AgentSession) beginSpeaking() {
	s.agentSpeaking.Store(true)
	s.sendJSON(msg.NewTtsMessage(s.job.ID, msg.MessageStateStart, ""))
}

func (s *AgentSession) endSpeaking(ctx context.Context) {
	s.agentSpeaking.Store(false)
	s.touch()
	// 被打断时由 stopReplyLocked 发送 stop
	if ctx.Err() == nil {
		s.sendJSON(msg.NewTtsMessage(s.job.ID, msg.MessageStateStop, ""))
	}
}

// speak 合成一句并按帧长匀速发送
func (s *AgentSession) speak(ctx context.Context, text string) error {
	cfg := s.opts.Config
	audioChan, err := s.opts.TTS.TextToSpeechStream(ctx, text, cfg.OutputSampleRate, audio.Channels, cfg.FrameDuration)
	if err != nil {
		return fmt.Errorf("生成 TTS 音频失败: %w", err)
	}
	if err := s.sendJSON(msg.NewTtsMessage(s.job.ID, msg.MessageStateSentenceStart, text)); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.FrameDuration) * time.Millisecond)
	defer ticker.Stop()

	sent := 0
	for {
		if sent >= preBufferFrames {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-audioChan:
			if !ok {
				return s.sendJSON(msg.NewTtsMessage(s.job.ID, msg.MessageStateSentenceEnd, text))
			}
			if err := s.room.SendAudio(frame); err != nil {
				return fmt.Errorf("发送 TTS 音频 len: %d 失败: %w", len(frame), err)
			}
			sent++
		}
	}
}

func (s *AgentSession) sendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.room.SendCmd(data)
}
