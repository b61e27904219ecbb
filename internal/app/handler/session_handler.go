package handler

import (
	"context"

	"voice-agent-server-golang/internal/app/server"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/llm"
	"voice-agent-server-golang/internal/domain/stt"
	"voice-agent-server-golang/internal/domain/transcript"
	"voice-agent-server-golang/internal/domain/tts"
)

// StartFunc 会话启动原语
type StartFunc func(ctx context.Context, job *server.JobContext, agent server.Agent, opts server.SessionOptions) (*server.AgentSession, error)

// SessionHandler 持有一次呼叫所需的组件，Handle 只做转交
type SessionHandler struct {
	stt     stt.STTProvider
	llm     llm.LLMProvider
	tts     tts.TTSProvider
	agent   server.Agent
	session config.SessionConfig

	greeting   string
	transcript transcript.Store
	start      StartFunc
}

type Option func(*SessionHandler)

func WithGreeting(greeting string) Option {
	return func(h *SessionHandler) {
		h.greeting = greeting
	}
}

func WithTranscript(store transcript.Store) Option {
	return func(h *SessionHandler) {
		h.transcript = store
	}
}

// WithStartFunc 替换会话启动原语
func WithStartFunc(start StartFunc) Option {
	return func(h *SessionHandler) {
		h.start = start
	}
}

func NewSessionHandler(sttProvider stt.STTProvider, llmProvider llm.LLMProvider, ttsProvider tts.TTSProvider, agent server.Agent, session config.SessionConfig, opts ...Option) *SessionHandler {
	h := &SessionHandler{
		stt:     sttProvider,
		llm:     llmProvider,
		tts:     ttsProvider,
		agent:   agent,
		session: session,
		start:   server.StartAgentSession,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle 对一次呼叫调用一次会话启动原语
func (h *SessionHandler) Handle(ctx context.Context, job *server.JobContext) error {
	_, err := h.start(ctx, job, h.agent, server.SessionOptions{
		STT:        h.stt,
		LLM:        h.llm,
		TTS:        h.tts,
		Config:     h.session,
		Greeting:   h.greeting,
		Transcript: h.transcript,
	})
	return err
}
