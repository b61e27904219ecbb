// Package pcm 16bit 单声道 PCM 与 WAV 的转换工具
package pcm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// 只处理单声道
const channels = 1

// Float32ToInt16 将 [-1,1] 的浮点采样转换为 16 位整数，越界部分截断
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = FloatToInt16(float64(s))
	}
	return out
}

// FloatToInt16 单个采样的转换
func FloatToInt16(s float64) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}
	return int16(s * 32767.0)
}

// Int16ToBytes 小端序
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Float32ToPCMBytes 浮点采样转 16bit 小端 PCM
func Float32ToPCMBytes(samples []float32) []byte {
	return Int16ToBytes(Float32ToInt16(samples))
}

// EncodeWav 将单声道浮点采样编码为 16bit WAV
// wav 编码器需要 io.WriteSeeker，这里借助临时文件完成
func EncodeWav(samples []float32, sampleRate int) ([]byte, error) {
	f, err := os.CreateTemp("", "voice-agent-*.wav")
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(FloatToInt16(float64(s)))
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("写入wav数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("写入wav头失败: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// DurationMs 采样点数对应的时长
func DurationMs(samples int, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return samples * 1000 / sampleRate
}
