package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/internal/domain/vad/inter"
)

type fakeDetector struct {
	resets atomic.Int32
	closed atomic.Bool
}

func (f *fakeDetector) IsVAD(pcmData []float32) (bool, error) { return len(pcmData) > 0, nil }
func (f *fakeDetector) Reset() error                          { f.resets.Add(1); return nil }
func (f *fakeDetector) Close() error                          { f.closed.Store(true); return nil }

func newTestPool(t *testing.T, size int, created *[]*fakeDetector) *DetectorPool {
	p, err := NewDetectorPool(context.Background(), Options{
		Provider:       "fake",
		SampleRate:     16000,
		Size:           size,
		AcquireTimeout: 100 * time.Millisecond,
	}, func() (inter.Detector, error) {
		d := &fakeDetector{}
		if created != nil {
			*created = append(*created, d)
		}
		return d, nil
	})
	require.NoError(t, err)
	return p
}

func TestNewDetectorPoolPrewarms(t *testing.T) {
	var created []*fakeDetector
	p := newTestPool(t, 3, &created)
	defer p.Close(context.Background())

	assert.Len(t, created, 3)
	active, idle := p.Stats()
	assert.Equal(t, 0, active)
	assert.Equal(t, 3, idle)
	assert.Equal(t, "fake", p.Provider())
	assert.Equal(t, 16000, p.SampleRate())
}

func TestAcquireRelease(t *testing.T) {
	var created []*fakeDetector
	p := newTestPool(t, 1, &created)
	defer p.Close(context.Background())

	ctx := context.Background()
	d, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, created[0], d)

	// 池耗尽后等待超时
	_, err = p.Acquire(ctx)
	assert.Error(t, err)

	// 预创建入池时已重置过一次，归还时再重置一次
	before := created[0].resets.Load()
	p.Release(ctx, d)
	assert.Equal(t, before+1, created[0].resets.Load())

	d2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, d, d2)
	assert.Len(t, created, 1)
}

func TestCloseDestroysDetectors(t *testing.T) {
	var created []*fakeDetector
	p := newTestPool(t, 2, &created)
	require.NoError(t, p.Close(context.Background()))
	for _, d := range created {
		assert.True(t, d.closed.Load())
	}
}

func TestNewDetectorPoolCreateError(t *testing.T) {
	boom := errors.New("model not found")
	_, err := NewDetectorPool(context.Background(), Options{Size: 2}, func() (inter.Detector, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewDetectorPoolInvalidSize(t *testing.T) {
	_, err := NewDetectorPool(context.Background(), Options{Size: 0}, func() (inter.Detector, error) {
		return &fakeDetector{}, nil
	})
	assert.Error(t, err)
}
