package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	commonspool "github.com/jolestar/go-commons-pool/v2"

	"voice-agent-server-golang/internal/domain/vad/inter"
	log "voice-agent-server-golang/logger"
)

// NewDetectorFunc 创建一个新的检测器实例
type NewDetectorFunc func() (inter.Detector, error)

// detectorFactory 适配 go-commons-pool 的对象工厂
type detectorFactory struct {
	newFn NewDetectorFunc
}

func (f *detectorFactory) MakeObject(ctx context.Context) (*commonspool.PooledObject, error) {
	d, err := f.newFn()
	if err != nil {
		return nil, err
	}
	return commonspool.NewPooledObject(d), nil
}

func (f *detectorFactory) DestroyObject(ctx context.Context, object *commonspool.PooledObject) error {
	return object.Object.(inter.Detector).Close()
}

func (f *detectorFactory) ValidateObject(ctx context.Context, object *commonspool.PooledObject) bool {
	return true
}

func (f *detectorFactory) ActivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return nil
}

// PassivateObject 归还时重置状态，失败的实例会被销毁
func (f *detectorFactory) PassivateObject(ctx context.Context, object *commonspool.PooledObject) error {
	return object.Object.(inter.Detector).Reset()
}

// DetectorPool 固定大小的检测器池，实现 inter.Model
type DetectorPool struct {
	provider       string
	sampleRate     int
	size           int
	acquireTimeout time.Duration
	pool           *commonspool.ObjectPool
}

type Options struct {
	Provider   string
	SampleRate int
	Size       int
	// AcquireTimeout 池耗尽时的最长等待
	AcquireTimeout time.Duration
}

// NewDetectorPool 创建检测器池并立即预创建全部实例，任何一个创建失败都返回错误
func NewDetectorPool(ctx context.Context, opts Options, newFn NewDetectorFunc) (*DetectorPool, error) {
	if opts.Size <= 0 {
		return nil, errors.New("资源池大小必须大于0")
	}
	if newFn == nil {
		return nil, errors.New("newFn 不能为空")
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 3 * time.Second
	}

	cfg := commonspool.NewDefaultPoolConfig()
	cfg.MaxTotal = opts.Size
	cfg.MaxIdle = opts.Size
	cfg.MinIdle = 0
	cfg.BlockWhenExhausted = true

	p := &DetectorPool{
		provider:       opts.Provider,
		sampleRate:     opts.SampleRate,
		size:           opts.Size,
		acquireTimeout: opts.AcquireTimeout,
		pool:           commonspool.NewObjectPool(ctx, &detectorFactory{newFn: newFn}, cfg),
	}

	for i := 0; i < opts.Size; i++ {
		if err := p.pool.AddObject(ctx); err != nil {
			p.pool.Close(ctx)
			return nil, fmt.Errorf("预创建VAD实例失败: %w", err)
		}
	}
	log.Infof("VAD资源池初始化完成，provider: %s，创建了 %d 个实例", opts.Provider, opts.Size)
	return p, nil
}

func (p *DetectorPool) Provider() string {
	return p.provider
}

func (p *DetectorPool) SampleRate() int {
	return p.sampleRate
}

// Acquire 从池中借出一个检测器，池满时最多等待 acquireTimeout
func (p *DetectorPool) Acquire(ctx context.Context) (inter.Detector, error) {
	ctx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	obj, err := p.pool.BorrowObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取VAD实例失败（%d/%d 已占用）: %w", p.pool.GetNumActive(), p.size, err)
	}
	log.Debugf("获取VAD实例, 当前空闲: %d/%d", p.pool.GetNumIdle(), p.size)
	return obj.(inter.Detector), nil
}

// Release 归还检测器，重置失败时池会销毁该实例并在下次借出时补建
func (p *DetectorPool) Release(ctx context.Context, d inter.Detector) {
	if d == nil {
		return
	}
	if err := p.pool.ReturnObject(ctx, d); err != nil {
		log.Warnf("归还VAD实例失败: %v", err)
	}
}

func (p *DetectorPool) Close(ctx context.Context) error {
	p.pool.Close(ctx)
	log.Info("VAD资源池已关闭，所有资源已释放")
	return nil
}

// Stats 当前借出与空闲的实例数
func (p *DetectorPool) Stats() (active int, idle int) {
	return p.pool.GetNumActive(), p.pool.GetNumIdle()
}
