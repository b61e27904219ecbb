package tts

import (
	"context"
	"fmt"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/tts/cosyvoice"
	"voice-agent-server-golang/internal/domain/tts/edge"
)

// TTSProvider 语音合成接口
type TTSProvider interface {
	// TextToSpeechStream 流式合成，返回按 frameDuration 切分的 opus 帧
	// 合成结束或 ctx 取消后通道关闭
	TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (outputChan chan []byte, err error)
}

type constructor func(cfg config.TTSConfig) (TTSProvider, error)

var constructors = map[constants.TtsType]constructor{
	constants.TtsTypeEdge: func(cfg config.TTSConfig) (TTSProvider, error) {
		return edge.NewEdgeTTSProvider(cfg.Edge), nil
	},
	constants.TtsTypeCosyvoice: func(cfg config.TTSConfig) (TTSProvider, error) {
		return cosyvoice.NewCosyVoiceTTSProvider(cfg.Cosyvoice)
	},
}

// CreateTTS 按 pipeline.tts.provider 创建一个新的合成实例
func CreateTTS(pipeline config.PipelineConfig) (TTSProvider, error) {
	newFn, ok := constructors[pipeline.TTS.Provider]
	if !ok {
		return nil, &config.UnsupportedProviderError{Kind: "tts", Provider: string(pipeline.TTS.Provider)}
	}
	provider, err := newFn(pipeline.TTS)
	if err != nil {
		return nil, fmt.Errorf("创建TTS实例失败: %w", err)
	}
	return provider, nil
}
