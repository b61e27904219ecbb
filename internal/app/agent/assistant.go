package agent

// DefaultInstructions 未配置 agent.instructions 时使用的人设
const DefaultInstructions = `You are a helpful voice AI assistant. The user is interacting with you via voice, even if you perceive the conversation as text.
You eagerly assist users with their questions by providing information from your extensive knowledge.
Your responses are concise, to the point, and without any complex formatting or punctuation including emojis, asterisks, or other symbols.
You are curious, friendly, and have a sense of humor.`

// Assistant 只负责提供系统提示词，对话流程由会话运行时处理
type Assistant struct {
	instructions string
}

func NewAssistant(instructions string) *Assistant {
	if instructions == "" {
		instructions = DefaultInstructions
	}
	return &Assistant{instructions: instructions}
}

func (a *Assistant) Instructions() string {
	return a.instructions
}
