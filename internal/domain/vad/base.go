package vad

import (
	"context"
	"fmt"
	"os"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/vad/inter"
	"voice-agent-server-golang/internal/domain/vad/pool"
	"voice-agent-server-golang/internal/domain/vad/silero_vad"
	"voice-agent-server-golang/internal/domain/vad/webrtc_vad"
	"voice-agent-server-golang/internal/util"
	log "voice-agent-server-golang/logger"
)

type factoryLoader func(cfg config.VadConfig, sampleRate int) (pool.NewDetectorFunc, error)

var loaders = map[constants.VadType]factoryLoader{
	constants.VadTypeSileroVad: func(cfg config.VadConfig, sampleRate int) (pool.NewDetectorFunc, error) {
		return silero_vad.NewFactory(cfg.Silero, sampleRate)
	},
	constants.VadTypeWebRTCVad: func(cfg config.VadConfig, sampleRate int) (pool.NewDetectorFunc, error) {
		return webrtc_vad.NewFactory(cfg.WebRTC, sampleRate)
	},
}

// LoadModel 加载 VAD 模型并预创建检测器池，worker 启动时调用一次
func LoadModel(ctx context.Context, cfg config.VadConfig, sampleRate int) (inter.Model, error) {
	load, ok := loaders[cfg.Provider]
	if !ok {
		return nil, &config.UnsupportedProviderError{Kind: "vad", Provider: string(cfg.Provider)}
	}
	newFn, err := load(cfg, sampleRate)
	if err != nil {
		return nil, err
	}
	model, err := pool.NewDetectorPool(ctx, pool.Options{
		Provider:       string(cfg.Provider),
		SampleRate:     sampleRate,
		Size:           cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
	}, newFn)
	if err != nil {
		return nil, err
	}
	return model, nil
}

// DownloadModel 确保模型文件在本地存在，返回是否发生了下载
// webrtc vad 内置于库中，无需下载
func DownloadModel(ctx context.Context, cfg config.VadConfig) (bool, error) {
	if cfg.Provider != constants.VadTypeSileroVad {
		return false, nil
	}
	if _, err := os.Stat(cfg.Silero.ModelPath); err == nil {
		log.Debugf("silero 模型已存在: %s", cfg.Silero.ModelPath)
		return false, nil
	}
	modelURL := cfg.Silero.ModelURL
	if modelURL == "" {
		modelURL = constants.SileroModelURL
	}
	if err := util.DownloadFile(ctx, modelURL, cfg.Silero.ModelPath); err != nil {
		return false, fmt.Errorf("下载silero模型失败: %w", err)
	}
	log.Infof("silero 模型已下载: %s", cfg.Silero.ModelPath)
	return true, nil
}
