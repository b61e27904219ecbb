package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voice-agent-server-golang/internal/data/msg"
	"voice-agent-server-golang/internal/domain/audio"
)

// 联调用的命令行客户端：发送一段文本或音频文件，打印服务端的回复
func main() {
	serverAddr := flag.String("server", "ws://localhost:8989/agent/v1/", "服务器地址")
	participant := flag.String("participant", "test-device-001", "参与者ID")
	audioFile := flag.String("audio", "", "音频文件路径 (wav/mp3)，为空时发送 -text")
	text := flag.String("text", "Hello, who are you?", "文本")
	sampleRate := flag.Int("sample_rate", 16000, "上行采样率")
	frameMs := flag.Int("frame_ms", 20, "上行帧长")
	timeout := flag.Duration("timeout", 30*time.Second, "等待回复的最长时间")
	flag.Parse()

	if err := run(*serverAddr, *participant, *audioFile, *text, *sampleRate, *frameMs, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "客户端运行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(serverAddr, participant, audioFile, text string, sampleRate, frameMs int, timeout time.Duration) error {
	header := http.Header{}
	header.Set("Device-Id", participant)
	conn, _, err := websocket.DefaultDialer.Dial(serverAddr, header)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	defer conn.Close()
	fmt.Printf("已连接到服务器: %s\n", serverAddr)

	hello := msg.ClientMessage{
		Type:      msg.MessageTypeHello,
		Version:   msg.ProtocolVersion,
		Transport: msg.TransportWebsocket,
		AudioFormat: &msg.AudioFormat{
			Format:        audio.Format,
			SampleRate:    sampleRate,
			Channels:      audio.Channels,
			FrameDuration: frameMs,
		},
	}
	if err := sendJSON(conn, hello); err != nil {
		return fmt.Errorf("发送hello消息失败: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- readLoop(conn) }()

	startTs := time.Now()
	if audioFile != "" {
		if err := sendAudioFile(conn, audioFile, sampleRate, frameMs); err != nil {
			return err
		}
	} else if err := sendJSON(conn, msg.ClientMessage{Type: msg.MessageTypeListen, State: msg.MessageStateDetect, Text: text}); err != nil {
		return err
	}

	select {
	case err := <-done:
		fmt.Printf("本轮耗时: %d ms\n", time.Since(startTs).Milliseconds())
		sendJSON(conn, msg.ClientMessage{Type: msg.MessageTypeGoodBye})
		return err
	case <-time.After(timeout):
		return fmt.Errorf("等待回复超时")
	}
}

// readLoop 读到 tts stop 返回
func readLoop(conn *websocket.Conn) error {
	frames := 0
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取消息失败: %w", err)
		}
		if messageType == websocket.BinaryMessage {
			frames++
			continue
		}
		fmt.Printf("收到服务器消息: %s\n", string(data))
		var serverMsg msg.ServerMessage
		if err := json.Unmarshal(data, &serverMsg); err != nil {
			continue
		}
		if serverMsg.Type == msg.ServerMessageTypeTts && serverMsg.State == msg.MessageStateStop {
			fmt.Printf("共收到音频帧: %d\n", frames)
			return nil
		}
	}
}

// sendAudioFile 编码为 opus 后按实时速率发送，末尾补一段静音触发端点检测
func sendAudioFile(conn *websocket.Conn, path string, sampleRate, frameMs int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开音频文件失败: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	frames := make(chan []byte, 100)
	decoder := audio.CreateAudioDecoder(context.Background(), f, frames, sampleRate, frameMs, format)
	errCh := make(chan error, 1)
	go func() { errCh <- decoder.Run(time.Now().UnixMilli()) }()

	ticker := time.NewTicker(time.Duration(frameMs) * time.Millisecond)
	defer ticker.Stop()
	count := 0
	for frame := range frames {
		<-ticker.C
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("发送Opus帧失败: %w", err)
		}
		count++
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("音频编码失败: %w", err)
	}

	processer, err := audio.GetAudioProcesser(sampleRate, audio.Channels, frameMs)
	if err != nil {
		return err
	}
	silence := make([]int16, processer.FrameSize())
	buf := make([]byte, 1000)
	for i := 0; i < 1000/frameMs; i++ {
		n, err := processer.Encoder(silence, buf)
		if err != nil {
			return err
		}
		<-ticker.C
		if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			return err
		}
	}
	fmt.Printf("已发送音频帧: %d\n", count)
	return nil
}

func sendJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Printf("发送消息: %s\n", string(data))
	return conn.WriteMessage(websocket.TextMessage, data)
}
