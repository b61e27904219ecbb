package constants

// 各环节提供者类型，均为封闭枚举，未列出的取值在配置校验阶段即被拒绝

type SttType string

type LlmType string

type TtsType string

type VadType string

const (
	SttTypeFunasr  SttType = "funasr"
	SttTypeWhisper SttType = "whisper"
)

const (
	LlmTypeOpenai LlmType = "openai"
	LlmTypeOllama LlmType = "ollama"
)

const (
	TtsTypeEdge      TtsType = "edge"
	TtsTypeCosyvoice TtsType = "cosyvoice"
)

const (
	VadTypeSileroVad VadType = "silero_vad"
	VadTypeWebRTCVad VadType = "webrtc_vad"
)

var (
	SupportedSttTypes = []SttType{SttTypeFunasr, SttTypeWhisper}
	SupportedLlmTypes = []LlmType{LlmTypeOpenai, LlmTypeOllama}
	SupportedTtsTypes = []TtsType{TtsTypeEdge, TtsTypeCosyvoice}
	SupportedVadTypes = []VadType{VadTypeSileroVad, VadTypeWebRTCVad}
)

func IsSupportedStt(t SttType) bool { return contains(SupportedSttTypes, t) }

func IsSupportedLlm(t LlmType) bool { return contains(SupportedLlmTypes, t) }

func IsSupportedTts(t TtsType) bool { return contains(SupportedTtsTypes, t) }

func IsSupportedVad(t VadType) bool { return contains(SupportedVadTypes, t) }

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

const (
	// Silero VAD 模型默认下载地址
	SileroModelURL = "https://github.com/snakers4/silero-vad/raw/v5.1.2/src/silero_vad/data/silero_vad.onnx"
)
