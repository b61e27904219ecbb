package config

import "fmt"

// ConfigError 配置缺失或格式错误，启动阶段遇到即退出
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "配置错误"
	if e.Key != "" {
		msg += fmt.Sprintf(" [%s]", e.Key)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UnsupportedProviderError 提供者标识不在支持列表中
type UnsupportedProviderError struct {
	Kind     string // stt / llm / tts / vad
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("不支持的%s提供者: %q", e.Kind, e.Provider)
}
