package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"voice-agent-server-golang/constants"
)

// DefaultEnvFile 启动时额外加载的 dotenv 文件，进程环境变量优先
const DefaultEnvFile = ".env.local"

// AppConfig 一个 worker 进程内的配置快照，加载后不再修改
type AppConfig struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Session  SessionConfig  `mapstructure:"session"`
	Vad      VadConfig      `mapstructure:"vad"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PipelineConfig STT/LLM/TTS 选择及各自的参数
type PipelineConfig struct {
	STT STTConfig `mapstructure:"stt"`
	LLM LLMConfig `mapstructure:"llm"`
	TTS TTSConfig `mapstructure:"tts"`
}

type STTConfig struct {
	Provider constants.SttType `mapstructure:"provider"`
	Language string            `mapstructure:"language"`
	Funasr   FunasrConfig      `mapstructure:"funasr"`
	Whisper  WhisperConfig     `mapstructure:"whisper"`
}

type FunasrConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WhisperConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LLMConfig struct {
	Provider    constants.LlmType `mapstructure:"provider"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Temperature float32           `mapstructure:"temperature"`
	Streamable  bool              `mapstructure:"streamable"`
	Openai      OpenaiConfig      `mapstructure:"openai"`
	Ollama      OllamaConfig      `mapstructure:"ollama"`
}

type OpenaiConfig struct {
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type OllamaConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type TTSConfig struct {
	Provider  constants.TtsType `mapstructure:"provider"`
	Edge      EdgeConfig        `mapstructure:"edge"`
	Cosyvoice CosyvoiceConfig   `mapstructure:"cosyvoice"`
}

type EdgeConfig struct {
	Voice          string `mapstructure:"voice"`
	Rate           string `mapstructure:"rate"`
	Volume         string `mapstructure:"volume"`
	Pitch          string `mapstructure:"pitch"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	ReceiveTimeout int    `mapstructure:"receive_timeout"`
}

type CosyvoiceConfig struct {
	APIURL      string        `mapstructure:"api_url"`
	SpeakerID   string        `mapstructure:"spk_id"`
	AudioFormat string        `mapstructure:"audio_format"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// AgentConfig 助手提示词
type AgentConfig struct {
	Instructions string `mapstructure:"instructions"`
	// Greeting 非空时会话开始即播报
	Greeting string `mapstructure:"greeting"`
}

// SessionConfig 交给会话运行时的行为参数
type SessionConfig struct {
	AllowInterruptions      bool          `mapstructure:"allow_interruptions"`
	MinInterruptionDuration time.Duration `mapstructure:"min_interruption_duration"`
	MinEndpointingDelay     time.Duration `mapstructure:"min_endpointing_delay"`
	MaxUtterance            time.Duration `mapstructure:"max_utterance"`
	InputSampleRate         int           `mapstructure:"input_sample_rate"`
	OutputSampleRate        int           `mapstructure:"output_sample_rate"`
	FrameDuration           int           `mapstructure:"frame_duration"`
	MaxHistoryTurns         int           `mapstructure:"max_history_turns"`
	RestoreHistory          bool          `mapstructure:"restore_history"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
}

type VadConfig struct {
	Provider constants.VadType `mapstructure:"provider"`
	PoolSize int               `mapstructure:"pool_size"`
	// AcquireTimeout 会话获取检测器的最长等待
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	Silero         SileroConfig  `mapstructure:"silero"`
	WebRTC         WebRTCConfig  `mapstructure:"webrtc"`
}

type SileroConfig struct {
	ModelPath            string  `mapstructure:"model_path"`
	ModelURL             string  `mapstructure:"model_url"`
	Threshold            float64 `mapstructure:"threshold"`
	MinSilenceDurationMs int     `mapstructure:"min_silence_duration_ms"`
	SpeechPadMs          int     `mapstructure:"speech_pad_ms"`
}

type WebRTCConfig struct {
	Mode int `mapstructure:"mode"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	WsPath        string `mapstructure:"ws_path"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Path   string `mapstructure:"path"`
	File   string `mapstructure:"file"`
	Stdout bool   `mapstructure:"stdout"`
	MaxAge int    `mapstructure:"max_age"`
}

type RedisConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ListenAddr 返回 http 监听地址
func (c ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// 所有配置项的默认值，同时也是 AutomaticEnv 能识别的键集合
var defaults = map[string]interface{}{
	"pipeline.stt.provider":         string(constants.SttTypeFunasr),
	"pipeline.stt.language":         "en",
	"pipeline.stt.funasr.host":      "localhost",
	"pipeline.stt.funasr.port":      10095,
	"pipeline.stt.funasr.mode":      "offline",
	"pipeline.stt.funasr.timeout":   "30s",
	"pipeline.stt.whisper.base_url": "https://api.openai.com/v1",
	"pipeline.stt.whisper.api_key":  "",
	"pipeline.stt.whisper.model":    "whisper-1",
	"pipeline.stt.whisper.timeout":  "30s",

	"pipeline.llm.provider":        string(constants.LlmTypeOpenai),
	"pipeline.llm.max_tokens":      500,
	"pipeline.llm.temperature":     0.7,
	"pipeline.llm.streamable":      true,
	"pipeline.llm.openai.model":    "gpt-4o-mini",
	"pipeline.llm.openai.api_key":  "",
	"pipeline.llm.openai.base_url": "",
	"pipeline.llm.ollama.model":    "llama3.1",
	"pipeline.llm.ollama.base_url": "http://localhost:11434",

	"pipeline.tts.provider":               string(constants.TtsTypeEdge),
	"pipeline.tts.edge.voice":             "en-US-AriaNeural",
	"pipeline.tts.edge.rate":              "+0%",
	"pipeline.tts.edge.volume":            "+0%",
	"pipeline.tts.edge.pitch":             "+0Hz",
	"pipeline.tts.edge.connect_timeout":   10,
	"pipeline.tts.edge.receive_timeout":   60,
	"pipeline.tts.cosyvoice.api_url":      "",
	"pipeline.tts.cosyvoice.spk_id":       "",
	"pipeline.tts.cosyvoice.audio_format": "mp3",
	"pipeline.tts.cosyvoice.timeout":      "30s",

	"agent.instructions": "",
	"agent.greeting":     "",

	"session.allow_interruptions":       true,
	"session.min_interruption_duration": "500ms",
	"session.min_endpointing_delay":     "500ms",
	"session.max_utterance":             "30s",
	"session.input_sample_rate":         16000,
	"session.output_sample_rate":        24000,
	"session.frame_duration":            60,
	"session.max_history_turns":         10,
	"session.restore_history":           false,
	"session.idle_timeout":              "5m",

	"vad.provider":                       string(constants.VadTypeSileroVad),
	"vad.pool_size":                      4,
	"vad.acquire_timeout":                "3s",
	"vad.silero.model_path":              "models/silero_vad.onnx",
	"vad.silero.model_url":               constants.SileroModelURL,
	"vad.silero.threshold":               0.5,
	"vad.silero.min_silence_duration_ms": 100,
	"vad.silero.speech_pad_ms":           30,
	"vad.webrtc.mode":                    2,

	"server.host":           "0.0.0.0",
	"server.port":           8989,
	"server.ws_path":        "/agent/v1/",
	"server.enable_metrics": true,

	"log.level":   "info",
	"log.path":    "logs/",
	"log.file":    "voice-agent.log",
	"log.stdout":  true,
	"log.max_age": 3,

	"redis.enable":     false,
	"redis.host":       "localhost",
	"redis.port":       6379,
	"redis.password":   "",
	"redis.db":         0,
	"redis.key_prefix": "voice_agent",
}

// NewViper 返回注册了全部默认值并绑定环境变量的 viper 实例
// 环境变量名为配置键大写并将 "." 替换为 "_"，例如 PIPELINE_STT_PROVIDER
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 加载 dotenv 文件（不存在则忽略）后从环境变量构造配置
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := gotenv.Load(envFile); err != nil {
				return nil, &ConfigError{Key: envFile, Reason: "读取 dotenv 文件失败", Err: err}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{Key: envFile, Reason: "无法访问 dotenv 文件", Err: err}
		}
	}
	return LoadFromViper(NewViper())
}

// LoadFromViper 从给定 viper 实例反序列化并校验
func LoadFromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{Reason: "配置格式错误", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 在启动阶段拒绝未知的提供者类型与明显错误的取值
func (c *AppConfig) Validate() error {
	if !constants.IsSupportedStt(c.Pipeline.STT.Provider) {
		return unsupported("pipeline.stt.provider", "stt", string(c.Pipeline.STT.Provider))
	}
	if !constants.IsSupportedLlm(c.Pipeline.LLM.Provider) {
		return unsupported("pipeline.llm.provider", "llm", string(c.Pipeline.LLM.Provider))
	}
	if !constants.IsSupportedTts(c.Pipeline.TTS.Provider) {
		return unsupported("pipeline.tts.provider", "tts", string(c.Pipeline.TTS.Provider))
	}
	if !constants.IsSupportedVad(c.Vad.Provider) {
		return unsupported("vad.provider", "vad", string(c.Vad.Provider))
	}

	switch c.Pipeline.STT.Provider {
	case constants.SttTypeFunasr:
		if c.Pipeline.STT.Funasr.Host == "" {
			return &ConfigError{Key: "pipeline.stt.funasr.host", Reason: "不能为空"}
		}
	case constants.SttTypeWhisper:
		if c.Pipeline.STT.Whisper.BaseURL == "" {
			return &ConfigError{Key: "pipeline.stt.whisper.base_url", Reason: "不能为空"}
		}
	}

	switch c.Pipeline.LLM.Provider {
	case constants.LlmTypeOpenai:
		if c.Pipeline.LLM.Openai.Model == "" {
			return &ConfigError{Key: "pipeline.llm.openai.model", Reason: "不能为空"}
		}
	case constants.LlmTypeOllama:
		if c.Pipeline.LLM.Ollama.Model == "" || c.Pipeline.LLM.Ollama.BaseURL == "" {
			return &ConfigError{Key: "pipeline.llm.ollama", Reason: "model 和 base_url 不能为空"}
		}
	}
	if c.Pipeline.LLM.MaxTokens <= 0 {
		return &ConfigError{Key: "pipeline.llm.max_tokens", Reason: "必须大于0"}
	}

	if c.Pipeline.TTS.Provider == constants.TtsTypeCosyvoice && c.Pipeline.TTS.Cosyvoice.APIURL == "" {
		return &ConfigError{Key: "pipeline.tts.cosyvoice.api_url", Reason: "不能为空"}
	}

	for key, rate := range map[string]int{
		"session.input_sample_rate":  c.Session.InputSampleRate,
		"session.output_sample_rate": c.Session.OutputSampleRate,
	} {
		if !isOpusSampleRate(rate) {
			return &ConfigError{Key: key, Reason: fmt.Sprintf("不支持的采样率 %d", rate)}
		}
	}
	switch c.Session.FrameDuration {
	case 20, 40, 60:
	default:
		return &ConfigError{Key: "session.frame_duration", Reason: fmt.Sprintf("帧长只支持 20/40/60ms，当前 %d", c.Session.FrameDuration)}
	}
	if c.Session.MinEndpointingDelay <= 0 {
		return &ConfigError{Key: "session.min_endpointing_delay", Reason: "必须大于0"}
	}

	if c.Vad.PoolSize <= 0 {
		return &ConfigError{Key: "vad.pool_size", Reason: "必须大于0"}
	}
	if c.Vad.Provider == constants.VadTypeSileroVad && c.Vad.Silero.ModelPath == "" {
		return &ConfigError{Key: "vad.silero.model_path", Reason: "不能为空"}
	}
	if c.Vad.WebRTC.Mode < 0 || c.Vad.WebRTC.Mode > 3 {
		return &ConfigError{Key: "vad.webrtc.mode", Reason: "取值范围 0-3"}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ConfigError{Key: "server.port", Reason: fmt.Sprintf("非法端口 %d", c.Server.Port)}
	}
	if !strings.HasPrefix(c.Server.WsPath, "/") {
		return &ConfigError{Key: "server.ws_path", Reason: "必须以 / 开头"}
	}
	return nil
}

func unsupported(key, kind, provider string) error {
	return &ConfigError{
		Key:    key,
		Reason: "不支持的提供者",
		Err:    &UnsupportedProviderError{Kind: kind, Provider: provider},
	}
}

func isOpusSampleRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}
