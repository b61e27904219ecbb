package funasr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/audio/pcm"
	log "voice-agent-server-golang/logger"
)

const defaultTimeout = 30 * time.Second

// FunasrRequest FunASR WebSocket请求结构体
type FunasrRequest struct {
	Mode          string `json:"mode,omitempty"`           // 识别模式，如 "offline"
	ChunkSize     []int  `json:"chunk_size,omitempty"`     // 分块大小
	ChunkInterval int    `json:"chunk_interval,omitempty"` // 分块间隔
	AudioFs       int    `json:"audio_fs,omitempty"`       // 采样率
	WavName       string `json:"wav_name,omitempty"`       // 音频名称
	WavFormat     string `json:"wav_format,omitempty"`     // 音频格式
	IsSpeaking    bool   `json:"is_speaking"`              // 是否在说话
	Hotwords      string `json:"hotwords,omitempty"`       // 热词
	Itn           bool   `json:"itn,omitempty"`            // 是否进行文本规整
}

// FunasrResponse FunASR WebSocket响应结构体
type FunasrResponse struct {
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	WavName   string `json:"wav_name"`
	TimeStamp string `json:"timestamp"`
	Mode      string `json:"mode"`
}

// Funasr 一次会话内使用的 FunASR 客户端，每次识别单独建立连接
type Funasr struct {
	url     string
	mode    string
	timeout time.Duration
	dialer  *websocket.Dialer
}

func NewFunasr(cfg config.FunasrConfig) (*Funasr, error) {
	if cfg.Host == "" {
		return nil, errors.New("funasr host 不能为空")
	}
	port := cfg.Port
	if port == 0 {
		port = 10095
	}
	mode := cfg.Mode
	if mode == "" {
		mode = "offline"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Funasr{
		url:     fmt.Sprintf("ws://%s/", net.JoinHostPort(cfg.Host, fmt.Sprint(port))),
		mode:    mode,
		timeout: timeout,
		dialer:  websocket.DefaultDialer,
	}, nil
}

// Recognize 发送整段音频并等待最终结果
func (f *Funasr) Recognize(ctx context.Context, pcmData []float32, sampleRate int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("连接到FunASR服务失败: %w", err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接以打断阻塞的读
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	firstMessage := FunasrRequest{
		Mode:          f.mode,
		ChunkSize:     []int{5, 10, 5},
		ChunkInterval: 10,
		AudioFs:       sampleRate,
		WavName:       "stream",
		WavFormat:     "pcm",
		IsSpeaking:    true,
		Itn:           true,
	}
	if err := conn.WriteJSON(firstMessage); err != nil {
		return "", fmt.Errorf("发送初始消息失败: %w", err)
	}

	// 按约 100ms 分块发送
	audioBytes := pcm.Float32ToPCMBytes(pcmData)
	chunkSize := sampleRate / 10 * 2
	if chunkSize <= 0 {
		chunkSize = len(audioBytes)
	}
	for i := 0; i < len(audioBytes); i += chunkSize {
		end := min(i+chunkSize, len(audioBytes))
		if err := conn.WriteMessage(websocket.BinaryMessage, audioBytes[i:end]); err != nil {
			return "", fmt.Errorf("发送音频数据失败: %w", err)
		}
	}

	if err := conn.WriteJSON(FunasrRequest{Mode: f.mode, IsSpeaking: false}); err != nil {
		return "", fmt.Errorf("发送终止消息失败: %w", err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	var texts []string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("读取识别结果超时: %w", ctx.Err())
			}
			if isConnectionClosedError(err) {
				return "", fmt.Errorf("连接已关闭: %w", err)
			}
			return "", fmt.Errorf("读取结果失败: %w", err)
		}

		var response FunasrResponse
		if err := json.Unmarshal(message, &response); err != nil {
			log.Debugf("funasr 解析识别结果失败: %v", err)
			continue
		}
		log.Debugf("funasr 识别结果: %s", string(message))

		// 2pass 模式下只有 offline 段是修正后的结果
		switch {
		case response.Mode == "offline" || response.Mode == "2pass-offline":
			texts = append(texts, response.Text)
			if response.IsFinal || response.Mode == "offline" {
				return strings.Join(texts, ""), nil
			}
		case response.IsFinal:
			texts = append(texts, response.Text)
			return strings.Join(texts, ""), nil
		}
	}
}

func isConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "connection closed") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "use of closed network connection")
}
