package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/llm/eino_llm"
)

// LLMProvider 大语言模型提供者接口，使用Eino原生消息类型
type LLMProvider interface {
	// ResponseWithContext 流式返回增量消息，流中途的错误由 Recv 返回，调用方负责 Close
	ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) (*schema.StreamReader[*schema.Message], error)

	// GetModelInfo 返回模型名称和其他元数据
	GetModelInfo() map[string]interface{}
}

type constructor func(cfg config.LLMConfig) (LLMProvider, error)

func einoConstructor(t constants.LlmType) constructor {
	return func(cfg config.LLMConfig) (LLMProvider, error) {
		return eino_llm.NewEinoLLMProvider(t, cfg)
	}
}

var constructors = map[constants.LlmType]constructor{
	constants.LlmTypeOpenai: einoConstructor(constants.LlmTypeOpenai),
	constants.LlmTypeOllama: einoConstructor(constants.LlmTypeOllama),
}

// CreateLLM 按 pipeline.llm.provider 创建一个新的LLM实例
func CreateLLM(pipeline config.PipelineConfig) (LLMProvider, error) {
	newFn, ok := constructors[pipeline.LLM.Provider]
	if !ok {
		return nil, &config.UnsupportedProviderError{Kind: "llm", Provider: string(pipeline.LLM.Provider)}
	}
	provider, err := newFn(pipeline.LLM)
	if err != nil {
		return nil, fmt.Errorf("创建Eino LLM提供者失败: %w", err)
	}
	return provider, nil
}
