package server

import (
	"context"
	"sync"
	"time"

	"voice-agent-server-golang/internal/domain/vad/inter"
	log "voice-agent-server-golang/logger"
)

// WorkerProcess worker 进程级的共享资源，由 SetupFunc 在接收任何呼叫前创建一次
type WorkerProcess struct {
	VAD       inter.Model
	StartedAt time.Time
}

// SetupFunc 预热函数，只调用一次
type SetupFunc func(ctx context.Context) (*WorkerProcess, error)

// EntrypointFunc 每个呼叫调用一次，返回后 job 继续存活直到 Shutdown
type EntrypointFunc func(ctx context.Context, job *JobContext) error

// JobContext 一次呼叫的上下文
type JobContext struct {
	ID          string
	Participant string
	Proc        *WorkerProcess
	Room        Room

	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics

	mu        sync.Mutex
	callbacks []func(reason string)
	once      sync.Once
	reason    string
}

func newJobContext(parent context.Context, id, participant string, proc *WorkerProcess, room Room) *JobContext {
	ctx, cancel := context.WithCancel(parent)
	return &JobContext{
		ID:          id,
		Participant: participant,
		Proc:        proc,
		Room:        room,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context 在 Shutdown 后取消
func (j *JobContext) Context() context.Context {
	return j.ctx
}

// AddShutdownCallback 注册关闭回调，按注册的逆序执行
func (j *JobContext) AddShutdownCallback(cb func(reason string)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.callbacks = append(j.callbacks, cb)
}

// Shutdown 结束呼叫，可重复调用
// 先关闭 Room 再按逆序执行回调
func (j *JobContext) Shutdown(reason string) {
	j.once.Do(func() {
		log.Infof("job %s 结束, participant: %s, reason: %s", j.ID, j.Participant, reason)
		j.mu.Lock()
		j.reason = reason
		callbacks := j.callbacks
		j.callbacks = nil
		j.mu.Unlock()

		j.cancel()
		// 回调可能在等待阻塞于发送的协程
		if j.Room != nil {
			j.Room.Close()
		}
		for i := len(callbacks) - 1; i >= 0; i-- {
			callbacks[i](reason)
		}
	})
}

func (j *JobContext) Done() <-chan struct{} {
	return j.ctx.Done()
}

func (j *JobContext) Reason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reason
}
