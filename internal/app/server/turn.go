package server

import (
	"time"

	"voice-agent-server-golang/internal/domain/audio/pcm"
)

// 语音开始前保留的静音，避免截掉首字
const prerollMs = 300

// turnResult 每帧的判定结果
type turnResult struct {
	// Started 本帧开始说话
	Started bool
	// Speech 当前这段语音已持续的时长
	Speech time.Duration
	// Utterance 非空表示一轮用户输入结束
	Utterance []float32
}

// turnDetector 根据逐帧 VAD 结果做端点检测，非协程安全
type turnDetector struct {
	sampleRate     int
	minEndpointing time.Duration
	maxUtterance   time.Duration

	speaking bool
	speechMs int
	silentMs int
	totalMs  int

	buf     []float32
	preroll []float32
}

func newTurnDetector(sampleRate int, minEndpointing, maxUtterance time.Duration) *turnDetector {
	return &turnDetector{
		sampleRate:     sampleRate,
		minEndpointing: minEndpointing,
		maxUtterance:   maxUtterance,
	}
}

func (t *turnDetector) Push(frame []float32, isSpeech bool) turnResult {
	frameMs := pcm.DurationMs(len(frame), t.sampleRate)
	var res turnResult

	if !t.speaking {
		if !isSpeech {
			t.keepPreroll(frame)
			return res
		}
		t.speaking = true
		t.speechMs, t.silentMs, t.totalMs = 0, 0, 0
		t.buf = append(t.buf[:0], t.preroll...)
		t.preroll = t.preroll[:0]
		res.Started = true
	}

	t.buf = append(t.buf, frame...)
	t.totalMs += frameMs
	if isSpeech {
		t.speechMs += frameMs
		t.silentMs = 0
	} else {
		t.silentMs += frameMs
	}
	res.Speech = time.Duration(t.speechMs) * time.Millisecond

	endpoint := time.Duration(t.silentMs)*time.Millisecond >= t.minEndpointing
	tooLong := t.maxUtterance > 0 && time.Duration(t.totalMs)*time.Millisecond >= t.maxUtterance
	if endpoint || tooLong {
		res.Utterance = make([]float32, len(t.buf))
		copy(res.Utterance, t.buf)
		t.Reset()
	}
	return res
}

func (t *turnDetector) keepPreroll(frame []float32) {
	maxSamples := t.sampleRate * prerollMs / 1000
	t.preroll = append(t.preroll, frame...)
	if over := len(t.preroll) - maxSamples; over > 0 {
		t.preroll = append(t.preroll[:0], t.preroll[over:]...)
	}
}

// Speaking 用户是否正在说话
func (t *turnDetector) Speaking() bool {
	return t.speaking
}

func (t *turnDetector) Reset() {
	t.speaking = false
	t.speechMs, t.silentMs, t.totalMs = 0, 0, 0
	t.buf = t.buf[:0]
	t.preroll = t.preroll[:0]
}
