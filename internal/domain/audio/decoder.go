package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	beepwav "github.com/gopxl/beep/wav"
	"gopkg.in/hraban/opus.v2"

	"voice-agent-server-golang/internal/domain/audio/pcm"
	log "voice-agent-server-golang/logger"
)

// 重采样质量，取值 1-64，越高越耗 CPU
const resampleQuality = 4

// AudioDecoder 把 TTS 返回的 mp3/wav/pcm 流解码、重采样并编码为单声道 opus 帧
type AudioDecoder struct {
	pipeReader         io.ReadCloser
	outputSampleRate   int
	perFrameDurationMs int
	AudioFormat        string
	// 仅 pcm 格式使用，描述输入流
	pcmFormat beep.Format

	outputOpusChan chan []byte
	ctx            context.Context
}

func CreateAudioDecoder(ctx context.Context, pipeReader io.ReadCloser, outputOpusChan chan []byte, outputSampleRate int, perFrameDurationMs int, audioFormat string) *AudioDecoder {
	return &AudioDecoder{
		pipeReader:         pipeReader,
		outputSampleRate:   outputSampleRate,
		perFrameDurationMs: perFrameDurationMs,
		AudioFormat:        audioFormat,
		outputOpusChan:     outputOpusChan,
		ctx:                ctx,
	}
}

// WithPCMFormat 原始 pcm 输入的采样率与声道数
func (d *AudioDecoder) WithPCMFormat(sampleRate int, channels int) *AudioDecoder {
	d.pcmFormat = beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: channels, Precision: 2}
	return d
}

// Run 阻塞直到输入耗尽或 ctx 结束，返回前关闭输出通道
func (d *AudioDecoder) Run(startTs int64) error {
	defer close(d.outputOpusChan)
	defer d.pipeReader.Close()

	streamer, format, err := d.open()
	if err != nil {
		return err
	}
	log.Debugf("%s格式: %d Hz, %d 通道", d.AudioFormat, format.SampleRate, format.NumChannels)

	var source beep.Streamer = streamer
	if int(format.SampleRate) != d.outputSampleRate {
		source = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(d.outputSampleRate), streamer)
	}
	return d.encode(source, startTs)
}

func (d *AudioDecoder) open() (beep.Streamer, beep.Format, error) {
	switch d.AudioFormat {
	case "mp3":
		s, format, err := mp3.Decode(d.pipeReader)
		if err != nil {
			return nil, format, fmt.Errorf("创建MP3解码器失败: %w", err)
		}
		return s, format, nil
	case "wav":
		s, format, err := beepwav.Decode(d.pipeReader)
		if err != nil {
			return nil, format, fmt.Errorf("创建WAV解码器失败: %w", err)
		}
		return s, format, nil
	case "pcm":
		if d.pcmFormat.SampleRate == 0 {
			return nil, d.pcmFormat, fmt.Errorf("pcm 输入未设置格式")
		}
		return &pcmStreamer{r: d.pipeReader, channels: d.pcmFormat.NumChannels}, d.pcmFormat, nil
	}
	return nil, beep.Format{}, fmt.Errorf("不支持的音频格式: %s", d.AudioFormat)
}

func (d *AudioDecoder) encode(source beep.Streamer, startTs int64) error {
	enc, err := opus.NewEncoder(d.outputSampleRate, Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("创建Opus编码器失败: %w", err)
	}

	frameSize := d.outputSampleRate * d.perFrameDurationMs / 1000
	pcmBuffer := make([]int16, frameSize)
	readBuffer := make([][2]float64, 1024)
	opusBuffer := make([]byte, 1500)

	currentFramePos := 0
	firstFrame := false

	emit := func(frame []int16) error {
		n, err := enc.Encode(frame, opusBuffer)
		if err != nil {
			return fmt.Errorf("编码失败: %w", err)
		}
		frameData := make([]byte, n)
		copy(frameData, opusBuffer[:n])
		if !firstFrame {
			firstFrame = true
			log.Infof("tts->首帧解码完成耗时: %d ms", time.Now().UnixMilli()-startTs)
		}
		select {
		case <-d.ctx.Done():
			return d.ctx.Err()
		case d.outputOpusChan <- frameData:
		}
		return nil
	}

	for {
		if d.ctx.Err() != nil {
			log.Debugf("audio decoder context done, exit")
			return nil
		}

		n, ok := source.Stream(readBuffer)
		for i := 0; i < n; i++ {
			// 在浮点阶段取平均避免溢出
			pcmBuffer[currentFramePos] = pcm.FloatToInt16((readBuffer[i][0] + readBuffer[i][1]) * 0.5)
			currentFramePos++
			if currentFramePos == frameSize {
				if err := emit(pcmBuffer); err != nil {
					return ignoreCanceled(err)
				}
				currentFramePos = 0
			}
		}
		if !ok {
			break
		}
	}

	// 不足一帧的尾部补零
	if currentFramePos > 0 {
		padded := make([]int16, frameSize)
		copy(padded, pcmBuffer[:currentFramePos])
		if err := emit(padded); err != nil {
			return ignoreCanceled(err)
		}
	}
	if errStreamer, ok := source.(interface{ Err() error }); ok && errStreamer.Err() != nil {
		return fmt.Errorf("解码音频流失败: %w", errStreamer.Err())
	}
	return nil
}

func ignoreCanceled(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// pcmStreamer 把 16bit 小端 pcm 字节流适配为 beep.Streamer
type pcmStreamer struct {
	r        io.Reader
	channels int
	buf      []byte
	err      error
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if p.err != nil {
		return 0, false
	}
	frameBytes := 2 * p.channels
	need := len(samples) * frameBytes
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]

	n, err := io.ReadFull(p.r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		p.err = err
		return 0, false
	}

	frames := n / frameBytes
	for i := 0; i < frames; i++ {
		var left, right float64
		left = float64(int16(binary.LittleEndian.Uint16(buf[i*frameBytes:]))) / 32768.0
		right = left
		if p.channels > 1 {
			right = float64(int16(binary.LittleEndian.Uint16(buf[i*frameBytes+2:]))) / 32768.0
		}
		samples[i] = [2]float64{left, right}
	}
	return frames, frames > 0
}

func (p *pcmStreamer) Err() error {
	return p.err
}
