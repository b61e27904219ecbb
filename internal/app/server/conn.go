package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	log "voice-agent-server-golang/logger"
)

// Room 一路呼叫的双向通道
type Room interface {
	// SendCmd 发送信令
	SendCmd(msg []byte) error
	// SendAudio 发送一帧 opus
	SendAudio(frame []byte) error
	// Commands 收到的文本信令，连接断开后关闭
	Commands() <-chan []byte
	// Audio 收到的音频帧，连接断开后关闭
	Audio() <-chan []byte
	// Closed 连接断开后关闭
	Closed() <-chan struct{}
	Close() error
}

const (
	readTimeout = 120 * time.Second
	// 客户端不读数据时写操作最多阻塞这么久
	writeTimeout = 10 * time.Second
)

// wsRoom 基于 websocket 的 Room
// 普通写操作由 writeMu 串行化，Close 不取锁，以便打断阻塞中的写
type wsRoom struct {
	conn *websocket.Conn

	recvCmdChan   chan []byte
	recvAudioChan chan []byte
	closed        chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWsRoom(conn *websocket.Conn) *wsRoom {
	r := &wsRoom{
		conn:          conn,
		recvCmdChan:   make(chan []byte, 100),
		recvAudioChan: make(chan []byte, 100),
		closed:        make(chan struct{}),
	}
	go r.readLoop()
	return r
}

func (r *wsRoom) readLoop() {
	defer close(r.recvAudioChan)
	defer close(r.recvCmdChan)
	defer r.Close()

	for {
		r.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.closed:
			default:
				log.Debugf("read message error: %v", err)
			}
			return
		}

		var ch chan []byte
		switch msgType {
		case websocket.TextMessage:
			ch = r.recvCmdChan
		case websocket.BinaryMessage:
			ch = r.recvAudioChan
		default:
			continue
		}
		select {
		case ch <- data:
		case <-r.closed:
			return
		default:
			log.Warnf("接收缓冲区已满, 丢弃消息 type: %d", msgType)
		}
	}
}

func (r *wsRoom) write(msgType int, data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	select {
	case <-r.closed:
		return errors.New("connection is closed")
	default:
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return r.conn.WriteMessage(msgType, data)
}

func (r *wsRoom) SendCmd(msg []byte) error {
	return r.write(websocket.TextMessage, msg)
}

func (r *wsRoom) SendAudio(frame []byte) error {
	return r.write(websocket.BinaryMessage, frame)
}

func (r *wsRoom) Commands() <-chan []byte { return r.recvCmdChan }

func (r *wsRoom) Audio() <-chan []byte { return r.recvAudioChan }

func (r *wsRoom) Closed() <-chan struct{} { return r.closed }

func (r *wsRoom) Close() error {
	r.closeOnce.Do(func() {
		close(r.closed)
		// WriteControl 与 Close 可以和其他写方法并发调用
		r.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		r.conn.Close()
	})
	return nil
}
