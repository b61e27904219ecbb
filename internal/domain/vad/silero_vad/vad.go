package silero_vad

import (
	"errors"
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/vad/inter"
	log "voice-agent-server-golang/logger"
)

// SileroVAD 基于 onnx 模型的检测器
// Detect 只在状态切换时返回片段，因此需要在帧之间保留说话状态
// Detect 按固定窗口处理，不足一个窗口的帧先缓存
type SileroVAD struct {
	detector   *speech.Detector
	windowSize int
	pending    []float32
	speaking   bool
}

func windowSizeFor(sampleRate int) int {
	if sampleRate == 8000 {
		return 256
	}
	return 512
}

// NewFactory 校验参数后返回创建检测器的函数，供资源池预创建使用
func NewFactory(cfg config.SileroConfig, sampleRate int) (func() (inter.Detector, error), error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("缺少模型路径配置")
	}
	if sampleRate != 8000 && sampleRate != 16000 {
		return nil, fmt.Errorf("silero vad 不支持采样率 %d，仅支持 8000/16000", sampleRate)
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	detectorConfig := speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           sampleRate,
		Threshold:            float32(threshold),
		MinSilenceDurationMs: cfg.MinSilenceDurationMs,
		SpeechPadMs:          cfg.SpeechPadMs,
		LogLevel:             speech.LogLevelWarn,
	}
	return func() (inter.Detector, error) {
		return NewSileroVAD(detectorConfig)
	}, nil
}

func NewSileroVAD(cfg speech.DetectorConfig) (*SileroVAD, error) {
	detector, err := speech.NewDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("加载silero模型失败: %w", err)
	}
	return &SileroVAD{detector: detector, windowSize: windowSizeFor(cfg.SampleRate)}, nil
}

func (s *SileroVAD) IsVAD(pcmData []float32) (bool, error) {
	s.pending = append(s.pending, pcmData...)
	n := nextChunk(len(s.pending), s.windowSize)
	if n == 0 {
		return s.speaking, nil
	}

	segments, err := s.detector.Detect(s.pending[:n])
	// 多送的一个采样不会被处理，连同未满窗口的尾部留到下一次
	rest := copy(s.pending, s.pending[n-1:])
	s.pending = s.pending[:rest]
	if err != nil {
		log.Errorf("检测失败: %s", err)
		return false, err
	}
	for _, seg := range segments {
		s.speaking = seg.SpeechEndAt == 0
	}
	return s.speaking, nil
}

// nextChunk 返回本次送入 Detect 的采样数：整数个窗口再多一个采样
// 不足一个完整窗口时返回 0
func nextChunk(buffered, windowSize int) int {
	windows := (buffered - 1) / windowSize
	if windows <= 0 {
		return 0
	}
	return windows*windowSize + 1
}

func (s *SileroVAD) Reset() error {
	s.speaking = false
	s.pending = s.pending[:0]
	return s.detector.Reset()
}

func (s *SileroVAD) Close() error {
	if s.detector != nil {
		return s.detector.Destroy()
	}
	return nil
}
