package audio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/internal/domain/audio/pcm"
)

func TestPCMStreamerMono(t *testing.T) {
	raw := pcm.Int16ToBytes([]int16{16384, -16384, 0})
	s := &pcmStreamer{r: bytes.NewReader(raw), channels: 1}

	samples := make([][2]float64, 8)
	n, ok := s.Stream(samples)
	require.True(t, ok)
	require.Equal(t, 3, n)
	assert.InDelta(t, 0.5, samples[0][0], 1e-6)
	assert.InDelta(t, -0.5, samples[1][1], 1e-6)

	n, ok = s.Stream(samples)
	assert.Equal(t, 0, n)
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}

func TestPCMStreamerStereo(t *testing.T) {
	raw := pcm.Int16ToBytes([]int16{16384, -16384})
	s := &pcmStreamer{r: bytes.NewReader(raw), channels: 2}

	samples := make([][2]float64, 4)
	n, ok := s.Stream(samples)
	require.True(t, ok)
	require.Equal(t, 1, n)
	assert.InDelta(t, 0.5, samples[0][0], 1e-6)
	assert.InDelta(t, -0.5, samples[0][1], 1e-6)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestPCMStreamerError(t *testing.T) {
	s := &pcmStreamer{r: failingReader{}, channels: 1}
	_, ok := s.Stream(make([][2]float64, 4))
	assert.False(t, ok)
	assert.ErrorIs(t, s.Err(), io.ErrClosedPipe)
}

func TestAudioDecoderPCMToOpus(t *testing.T) {
	// 100ms 16k 正弦近似数据，输出 16k 60ms 帧应得到 2 帧（第二帧补零）
	samples := make([]int16, 1600)
	for i := range samples {
		if i%20 < 10 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	rc := io.NopCloser(bytes.NewReader(pcm.Int16ToBytes(samples)))
	out := make(chan []byte, 10)

	dec := CreateAudioDecoder(t.Context(), rc, out, 16000, 60, "pcm").WithPCMFormat(16000, 1)
	require.NoError(t, dec.Run(0))

	var frames [][]byte
	for f := range out {
		frames = append(frames, f)
	}
	assert.Len(t, frames, 2)
	for _, f := range frames {
		assert.NotEmpty(t, f)
	}
}

func TestAudioDecoderUnknownFormat(t *testing.T) {
	out := make(chan []byte, 1)
	dec := CreateAudioDecoder(t.Context(), io.NopCloser(bytes.NewReader(nil)), out, 16000, 60, "flac")
	assert.Error(t, dec.Run(0))
	_, open := <-out
	assert.False(t, open)
}
