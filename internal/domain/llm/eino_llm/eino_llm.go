package eino_llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	log "voice-agent-server-golang/logger"
)

// EinoLLMProvider 基于Eino框架的LLM提供者，支持openai和ollama
type EinoLLMProvider struct {
	chatModel    model.BaseChatModel
	modelName    string
	baseURL      string
	maxTokens    int
	temperature  float32
	streamable   bool
	providerType constants.LlmType
}

// 连接池配置
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	requestTimeout      = 60 * time.Second
)

var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// getHTTPClient 所有 provider 实例共享连接池
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		httpClient = &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		}
	})
	return httpClient
}

// NewEinoLLMProvider 根据 providerType 创建 openai 或 ollama 的 ChatModel
func NewEinoLLMProvider(providerType constants.LlmType, cfg config.LLMConfig) (*EinoLLMProvider, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	provider := &EinoLLMProvider{
		maxTokens:    maxTokens,
		temperature:  cfg.Temperature,
		streamable:   cfg.Streamable,
		providerType: providerType,
	}

	var err error
	switch providerType {
	case constants.LlmTypeOpenai:
		provider.modelName = cfg.Openai.Model
		provider.baseURL = cfg.Openai.BaseURL
		provider.chatModel, err = createOpenAIChatModel(cfg.Openai)
	case constants.LlmTypeOllama:
		provider.modelName = cfg.Ollama.Model
		provider.baseURL = cfg.Ollama.BaseURL
		provider.chatModel, err = createOllamaChatModel(cfg.Ollama)
	default:
		return nil, fmt.Errorf("不支持的模型类型: %s", providerType)
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func createOpenAIChatModel(cfg config.OpenaiConfig) (model.BaseChatModel, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai model不能为空")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	openaiConfig := &openai.ChatModelConfig{
		Model:      cfg.Model,
		APIKey:     apiKey,
		HTTPClient: getHTTPClient(),
	}
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(context.Background(), openaiConfig)
	if err != nil {
		return nil, fmt.Errorf("创建OpenAI ChatModel失败: %w", err)
	}
	log.Debugf("成功创建OpenAI ChatModel，模型: %s", cfg.Model)
	return chatModel, nil
}

func createOllamaChatModel(cfg config.OllamaConfig) (model.BaseChatModel, error) {
	if cfg.Model == "" || cfg.BaseURL == "" {
		return nil, errors.New("ollama model和base_url不能为空")
	}

	chatModel, err := ollama.NewChatModel(context.Background(), &ollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: requestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Ollama ChatModel失败: %w", err)
	}
	log.Debugf("成功创建Ollama ChatModel，模型: %s", cfg.Model)
	return chatModel, nil
}

// GetModelInfo 获取模型信息
func (p *EinoLLMProvider) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model_name":    p.modelName,
		"max_tokens":    p.maxTokens,
		"streamable":    p.streamable,
		"provider_type": string(p.providerType),
		"framework":     "eino",
		"base_url":      p.baseURL,
	}
}

func (p *EinoLLMProvider) options() []model.Option {
	opts := []model.Option{model.WithMaxTokens(p.maxTokens)}
	if p.temperature > 0 {
		opts = append(opts, model.WithTemperature(p.temperature))
	}
	return opts
}

// ResponseWithContext 发起请求并返回增量消息流
// 非流式模式下把完整回复包装成只有一条消息的流
func (p *EinoLLMProvider) ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	log.Debugf("[Eino-LLM] 开始处理请求 - SessionID: %s, Type: %s", sessionID, p.providerType)

	if !p.streamable {
		message, err := p.chatModel.Generate(ctx, dialogue, p.options()...)
		if err != nil {
			return nil, fmt.Errorf("生成响应失败: %w", err)
		}
		return schema.StreamReaderFromArray([]*schema.Message{message}), nil
	}

	streamReader, err := p.chatModel.Stream(ctx, dialogue, p.options()...)
	if err != nil {
		return nil, fmt.Errorf("流式调用失败: %w", err)
	}
	return streamReader, nil
}
