package webrtc_vad

import (
	"fmt"

	"github.com/hackers365/go-webrtcvad"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/audio/pcm"
	"voice-agent-server-golang/internal/domain/vad/inter"
)

const (
	DefaultMode = 2
	// 送入 webrtc 的子帧时长，只支持 10/20/30ms
	subFrameMs = 20
)

// WebRTCVAD 按 20ms 子帧判定，过半子帧有声即认为在说话
type WebRTCVAD struct {
	webrtcVad  *webrtcvad.VAD
	sampleRate int
	mode       int
	frameBytes int
}

func NewFactory(cfg config.WebRTCConfig, sampleRate int) (func() (inter.Detector, error), error) {
	if !isValidSampleRate(sampleRate) {
		return nil, fmt.Errorf("unsupported sample rate: %d, supported rates: 8000, 16000, 32000, 48000", sampleRate)
	}
	if cfg.Mode < 0 || cfg.Mode > 3 {
		return nil, fmt.Errorf("invalid VAD mode: %d, must be 0-3", cfg.Mode)
	}
	return func() (inter.Detector, error) {
		return NewWebRTCVAD(sampleRate, cfg.Mode)
	}, nil
}

func NewWebRTCVAD(sampleRate, mode int) (*WebRTCVAD, error) {
	if !isValidSampleRate(sampleRate) {
		return nil, fmt.Errorf("unsupported sample rate: %d", sampleRate)
	}
	v, err := webrtcvad.New()
	if err != nil || v == nil {
		return nil, fmt.Errorf("failed to create WebRTC VAD instance: %v", err)
	}
	if err := v.SetMode(mode); err != nil {
		webrtcvad.Free(v)
		return nil, fmt.Errorf("failed to set WebRTC VAD mode: %w", err)
	}
	return &WebRTCVAD{
		webrtcVad:  v,
		sampleRate: sampleRate,
		mode:       mode,
		frameBytes: sampleRate / 1000 * subFrameMs * 2,
	}, nil
}

func (w *WebRTCVAD) IsVAD(pcmData []float32) (bool, error) {
	pcmBytes := pcm.Float32ToPCMBytes(pcmData)
	if len(pcmBytes) < w.frameBytes {
		return false, nil
	}

	activityCount, frameCount := 0, 0
	for i := 0; i+w.frameBytes <= len(pcmBytes); i += w.frameBytes {
		active, err := w.webrtcVad.Process(w.sampleRate, pcmBytes[i:i+w.frameBytes])
		if err != nil {
			return false, fmt.Errorf("WebRTC VAD process error: %w", err)
		}
		if active {
			activityCount++
		}
		frameCount++
	}
	return activityCount*2 > frameCount, nil
}

// Reset webrtc vad 无跨帧状态
func (w *WebRTCVAD) Reset() error {
	return nil
}

func (w *WebRTCVAD) Close() error {
	if w.webrtcVad != nil {
		webrtcvad.Free(w.webrtcVad)
		w.webrtcVad = nil
	}
	return nil
}

func isValidSampleRate(sampleRate int) bool {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
		return true
	}
	return false
}
