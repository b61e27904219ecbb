package edge

import (
	"context"
	"io"
	"time"

	"github.com/difyz9/edge-tts-go/pkg/communicate"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/audio"
	log "voice-agent-server-golang/logger"
)

// EdgeTTSProvider Edge TTS 提供者，服务端返回 mp3，输出 opus 帧
type EdgeTTSProvider struct {
	Voice          string
	Rate           string
	Volume         string
	Pitch          string
	ConnectTimeout int
	ReceiveTimeout int
}

func NewEdgeTTSProvider(cfg config.EdgeConfig) *EdgeTTSProvider {
	p := &EdgeTTSProvider{
		Voice:          cfg.Voice,
		Rate:           cfg.Rate,
		Volume:         cfg.Volume,
		Pitch:          cfg.Pitch,
		ConnectTimeout: cfg.ConnectTimeout,
		ReceiveTimeout: cfg.ReceiveTimeout,
	}
	if p.Voice == "" {
		p.Voice = "en-US-AriaNeural"
	}
	if p.Rate == "" {
		p.Rate = "+0%"
	}
	if p.Volume == "" {
		p.Volume = "+0%"
	}
	if p.Pitch == "" {
		p.Pitch = "+0Hz"
	}
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = 10
	}
	if p.ReceiveTimeout == 0 {
		p.ReceiveTimeout = 60
	}
	return p
}

// TextToSpeechStream 流式合成，返回Opus帧chan
func (p *EdgeTTSProvider) TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (chan []byte, error) {
	startTs := time.Now().UnixMilli()
	comm, err := communicate.NewCommunicate(
		text,
		p.Voice,
		p.Rate,
		p.Volume,
		p.Pitch,
		"", // proxy
		p.ConnectTimeout,
		p.ReceiveTimeout,
	)
	if err != nil {
		return nil, err
	}

	chunkChan, errChan := comm.Stream(ctx)
	outputChan := make(chan []byte, 100)
	pipeReader, pipeWriter := io.Pipe()

	go func() {
		var streamErr error
		defer func() {
			pipeWriter.CloseWithError(streamErr)
			log.Debugf("EdgeTTS流式合成结束, 耗时: %d ms", time.Now().UnixMilli()-startTs)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if ok && err != nil {
					log.Errorf("EdgeTTS流式合成出错: %v", err)
					streamErr = err
					return
				}
				errChan = nil
			case chunk, ok := <-chunkChan:
				if !ok {
					return
				}
				if chunk.Type != "audio" {
					continue
				}
				if _, err := pipeWriter.Write(chunk.Data); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		decoder := audio.CreateAudioDecoder(ctx, pipeReader, outputChan, sampleRate, frameDuration, "mp3")
		if err := decoder.Run(startTs); err != nil {
			log.Errorf("EdgeTTS MP3解码失败: %v", err)
		}
	}()
	return outputChan, nil
}
