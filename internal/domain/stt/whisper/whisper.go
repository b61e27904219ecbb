package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/audio/pcm"
	log "voice-agent-server-golang/logger"
)

// Whisper OpenAI 兼容的 /audio/transcriptions 接口
type Whisper struct {
	endpoint string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewWhisper(cfg config.WhisperConfig, language string) (*Whisper, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("whisper base_url 不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Whisper{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/audio/transcriptions",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: language,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (w *Whisper) Recognize(ctx context.Context, pcmData []float32, sampleRate int) (string, error) {
	wavData, err := pcm.EncodeWav(pcmData, sampleRate)
	if err != nil {
		return "", err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wavData); err != nil {
		return "", err
	}
	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "json")
	if w.language != "" {
		writer.WriteField("language", w.language)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	startTs := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求whisper服务失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取whisper响应失败: %w", err)
	}

	var result transcriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("解析whisper响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if result.Error != nil {
			return "", fmt.Errorf("whisper服务返回错误 %d: %s", resp.StatusCode, result.Error.Message)
		}
		return "", fmt.Errorf("whisper服务返回错误 %d: %s", resp.StatusCode, string(respBody))
	}

	log.Debugf("whisper 识别耗时: %d ms, 结果: %s", time.Since(startTs).Milliseconds(), result.Text)
	return strings.TrimSpace(result.Text), nil
}
