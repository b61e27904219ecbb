package stt

import (
	"context"
	"fmt"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/stt/funasr"
	"voice-agent-server-golang/internal/domain/stt/whisper"
)

// STTProvider 语音识别接口
type STTProvider interface {
	// Recognize 一次性识别整段单声道音频，返回完整文本
	Recognize(ctx context.Context, pcmData []float32, sampleRate int) (string, error)
}

type constructor func(cfg config.STTConfig) (STTProvider, error)

var constructors = map[constants.SttType]constructor{
	constants.SttTypeFunasr: func(cfg config.STTConfig) (STTProvider, error) {
		return funasr.NewFunasr(cfg.Funasr)
	},
	constants.SttTypeWhisper: func(cfg config.STTConfig) (STTProvider, error) {
		return whisper.NewWhisper(cfg.Whisper, cfg.Language)
	},
}

// CreateSTT 按 pipeline.stt.provider 创建一个新的识别实例，每次调用都返回新对象
func CreateSTT(pipeline config.PipelineConfig) (STTProvider, error) {
	newFn, ok := constructors[pipeline.STT.Provider]
	if !ok {
		return nil, &config.UnsupportedProviderError{Kind: "stt", Provider: string(pipeline.STT.Provider)}
	}
	provider, err := newFn(pipeline.STT)
	if err != nil {
		return nil, fmt.Errorf("创建STT实例失败: %w", err)
	}
	return provider, nil
}
