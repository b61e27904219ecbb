package audio

import (
	"errors"

	"gopkg.in/hraban/opus.v2"
)

const (
	Channels      = 1
	FrameDuration = 60
	Format        = "opus"
)

// AudioProcesser 单路会话使用的 opus 编解码器，非协程安全
type AudioProcesser struct {
	sampleRate       int
	channels         int
	perFrameDuration int
	decoder          *opus.Decoder
	encoder          *opus.Encoder
}

func GetAudioProcesser(sampleRate int, channels int, perFrameDuration int) (*AudioProcesser, error) {
	decoder, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}

	return &AudioProcesser{
		sampleRate:       sampleRate,
		channels:         channels,
		perFrameDuration: perFrameDuration,
		decoder:          decoder,
		encoder:          encoder,
	}, nil
}

// FrameSize 每帧每声道的采样点数
func (a *AudioProcesser) FrameSize() int {
	return a.sampleRate * a.perFrameDuration / 1000
}

// DecodeFloat32 解码一帧 opus，返回的切片只在下一次调用前有效
func (a *AudioProcesser) DecodeFloat32(frame []byte, pcmData []float32) ([]float32, error) {
	if a.decoder == nil {
		return nil, errors.New("decoder is nil")
	}
	n, err := a.decoder.DecodeFloat32(frame, pcmData)
	if err != nil {
		return nil, err
	}
	return pcmData[:n*a.channels], nil
}

func (a *AudioProcesser) Encoder(pcmData []int16, frame []byte) (int, error) {
	if a.encoder == nil {
		return 0, errors.New("encoder is nil")
	}
	return a.encoder.Encode(pcmData, frame)
}
