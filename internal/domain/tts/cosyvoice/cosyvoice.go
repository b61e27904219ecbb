package cosyvoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/audio"
	log "voice-agent-server-golang/logger"
)

var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// getHTTPClient 所有实例共享连接池，超时由请求 ctx 控制
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		httpClient = &http.Client{Transport: transport}
	})
	return httpClient
}

// CosyVoiceTTSProvider CosyVoice HTTP 流式接口
type CosyVoiceTTSProvider struct {
	APIURL      string
	SpeakerID   string
	AudioFormat string
	Timeout     time.Duration
}

func NewCosyVoiceTTSProvider(cfg config.CosyvoiceConfig) (*CosyVoiceTTSProvider, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("cosyvoice api_url 不能为空")
	}
	p := &CosyVoiceTTSProvider{
		APIURL:      cfg.APIURL,
		SpeakerID:   cfg.SpeakerID,
		AudioFormat: cfg.AudioFormat,
		Timeout:     cfg.Timeout,
	}
	if p.AudioFormat == "" {
		p.AudioFormat = "mp3"
	}
	switch p.AudioFormat {
	case "mp3", "wav":
	default:
		return nil, fmt.Errorf("不支持的音频格式: %s", p.AudioFormat)
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return p, nil
}

// TextToSpeechStream 请求同步发出，状态码异常直接返回错误；音频体异步解码
func (p *CosyVoiceTTSProvider) TextToSpeechStream(ctx context.Context, text string, sampleRate int, channels int, frameDuration int) (chan []byte, error) {
	params := url.Values{}
	params.Add("tts_text", text)
	params.Add("spk_id", p.SpeakerID)
	params.Add("frame_durition", fmt.Sprintf("%d", frameDuration))
	params.Add("stream", "true")
	params.Add("target_sr", fmt.Sprintf("%d", sampleRate))
	params.Add("audio_format", p.AudioFormat)

	startTs := time.Now().UnixMilli()
	reqCtx, cancel := context.WithTimeout(ctx, p.Timeout)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("%s?%s", p.APIURL, params.Encode()), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := getHTTPClient().Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("API请求失败，状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}
	if resp.ContentLength == 0 {
		resp.Body.Close()
		cancel()
		return nil, errors.New("API返回空响应，Content-Length为0")
	}
	log.Debugf("收到TTS响应，Content-Length: %d", resp.ContentLength)

	outputChan := make(chan []byte, 100)
	go func() {
		defer cancel()
		decoder := audio.CreateAudioDecoder(ctx, resp.Body, outputChan, sampleRate, frameDuration, p.AudioFormat)
		if err := decoder.Run(startTs); err != nil {
			log.Errorf("cosyvoice 音频解码失败: %v", err)
			return
		}
		log.Debugf("tts耗时: 从输入至音频数据结束耗时: %d ms", time.Now().UnixMilli()-startTs)
	}()
	return outputChan, nil
}
