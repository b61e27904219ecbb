package msg

import (
	"encoding/json"
)

// 客户端消息类型常量
const (
	MessageTypeHello   = "hello"   // 握手消息
	MessageTypeAbort   = "abort"   // 中止消息
	MessageTypeListen  = "listen"  // 监听消息
	MessageTypeGoodBye = "goodbye" // 再见消息
)

// 服务器消息类型常量
const (
	ServerMessageTypeHello = "hello" // 握手消息
	ServerMessageTypeStt   = "stt"   // 语音转文本
	ServerMessageTypeTts   = "tts"   // 文本转语音
	ServerMessageTypeLlm   = "llm"   // 大语言模型
)

// 消息状态常量
const (
	MessageStateStart         = "start"          // 开始状态
	MessageStateSentenceStart = "sentence_start" // 句子开始状态
	MessageStateSentenceEnd   = "sentence_end"   // 句子结束状态
	MessageStateStop          = "stop"           // 停止状态
	MessageStateDetect        = "detect"         // 检测状态
)

const (
	TransportWebsocket = "websocket"
	ProtocolVersion    = 1
)

type AudioFormat struct {
	Format        string `json:"format,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	FrameDuration int    `json:"frame_duration,omitempty"`
}

// ClientMessage 客户端发来的文本消息
type ClientMessage struct {
	Type        string       `json:"type"`
	SessionID   string       `json:"session_id,omitempty"`
	Version     int          `json:"version,omitempty"`
	Transport   string       `json:"transport,omitempty"`
	State       string       `json:"state,omitempty"`
	Mode        string       `json:"mode,omitempty"`
	Text        string       `json:"text,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	AudioFormat *AudioFormat `json:"audio_params,omitempty"`
}

// ServerMessage 表示服务器消息
type ServerMessage struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Version     int             `json:"version"`
	State       string          `json:"state,omitempty"`
	Transport   string          `json:"transport,omitempty"`
	AudioFormat *AudioFormat    `json:"audio_params,omitempty"`
	Emotion     string          `json:"emotion,omitempty"`
	PayLoad     json.RawMessage `json:"payload,omitempty"`
}

func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func NewHelloMessage(sessionID string, format AudioFormat) *ServerMessage {
	return &ServerMessage{
		Type:        ServerMessageTypeHello,
		SessionID:   sessionID,
		Version:     ProtocolVersion,
		Transport:   TransportWebsocket,
		AudioFormat: &format,
	}
}

func NewSttMessage(sessionID, text string) *ServerMessage {
	return &ServerMessage{Type: ServerMessageTypeStt, SessionID: sessionID, Version: ProtocolVersion, Text: text}
}

func NewTtsMessage(sessionID, state, text string) *ServerMessage {
	return &ServerMessage{Type: ServerMessageTypeTts, SessionID: sessionID, Version: ProtocolVersion, State: state, Text: text}
}
