package inter

import "context"

// Detector 单路音频流使用的语音活动检测器，非协程安全
type Detector interface {
	// IsVAD 输入一帧单声道浮点采样，返回当前是否处于说话状态
	IsVAD(pcmData []float32) (bool, error)
	// Reset 清空内部状态，归还池前调用
	Reset() error
	// Close 关闭并释放资源
	Close() error
}

// Model 预热阶段加载的 VAD 模型，所有会话共享
// 每个会话通过 Acquire 取得独占的 Detector，结束时 Release
type Model interface {
	Provider() string
	SampleRate() int
	Acquire(ctx context.Context) (Detector, error)
	Release(ctx context.Context, d Detector)
	// Stats 当前借出与空闲的检测器数
	Stats() (active int, idle int)
	Close(ctx context.Context) error
}
