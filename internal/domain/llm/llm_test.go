package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-agent-server-golang/constants"
	"voice-agent-server-golang/internal/config"
	"voice-agent-server-golang/internal/domain/llm/eino_llm"
)

func TestExtractSentences(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		first     bool
		sentences []string
		remaining string
	}{
		{"single sentence", "Hello there. How", false, []string{"Hello there."}, " How"},
		{"trailing dot waits", "Hello there.", false, nil, "Hello there."},
		{"decimal", "Pi is 3.14 roughly. Ok", false, []string{"Pi is 3.14 roughly."}, " Ok"},
		{"list number", "1. first item\n2", false, []string{"1. first item"}, "2"},
		{"short merged", "Hi! How are you? ", false, []string{"Hi! How are you?"}, " "},
		{"first sentence pause", "Sure thing, let me", true, []string{"Sure thing,"}, " let me"},
		{"pause only first", "Sure thing, let me, see", false, nil, "Sure thing, let me, see"},
		{"chinese", "你好呀朋友。今天天气", false, []string{"你好呀朋友。"}, "今天天气"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentences, remaining := extractSentences(tt.text, minSentenceLen, tt.first)
			assert.Equal(t, tt.sentences, sentences)
			assert.Equal(t, tt.remaining, remaining)
		})
	}
}

type fakeProvider struct {
	chunks []string
	err    error
	// streamErr 在全部分片之后由流返回
	streamErr error
}

func (f *fakeProvider) ResponseWithContext(ctx context.Context, sessionID string, dialogue []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	for _, c := range f.chunks {
		sw.Send(schema.AssistantMessage(c, nil), nil)
	}
	if f.streamErr != nil {
		sw.Send(nil, f.streamErr)
	}
	sw.Close()
	return sr, nil
}

func (f *fakeProvider) GetModelInfo() map[string]interface{} { return nil }

func TestHandleLLMWithContext(t *testing.T) {
	provider := &fakeProvider{chunks: []string{"Sure thing, ", "the answer is ", "forty two. ", "Anything else"}}

	out, err := HandleLLMWithContext(context.Background(), provider, nil, "s1")
	require.NoError(t, err)

	var got []LLMResponseStruct
	for r := range out {
		got = append(got, r)
	}
	require.Len(t, got, 3)
	assert.Equal(t, LLMResponseStruct{Text: "Sure thing,", IsStart: true}, got[0])
	assert.Equal(t, "the answer is forty two.", got[1].Text)
	assert.False(t, got[1].IsStart)
	assert.False(t, got[1].IsEnd)
	// 未以标点结尾的尾部随结束消息一起发出
	assert.Equal(t, "Anything else", got[2].Text)
	assert.True(t, got[2].IsEnd)
	assert.Equal(t, "Sure thing, the answer is forty two. Anything else", got[2].FullText)
}

func TestHandleLLMWithContextShortReply(t *testing.T) {
	out, err := HandleLLMWithContext(context.Background(), &fakeProvider{chunks: []string{"Ok."}}, nil, "s1")
	require.NoError(t, err)

	var got []LLMResponseStruct
	for r := range out {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "Ok.", got[0].Text)
	assert.True(t, got[0].IsStart)
	assert.True(t, got[0].IsEnd)
}

func TestHandleLLMWithContextError(t *testing.T) {
	boom := errors.New("boom")
	_, err := HandleLLMWithContext(context.Background(), &fakeProvider{err: boom}, nil, "s1")
	assert.ErrorIs(t, err, boom)
}

func TestHandleLLMWithContextStreamError(t *testing.T) {
	boom := errors.New("connection reset")
	provider := &fakeProvider{chunks: []string{"Hello there. ", "And then"}, streamErr: boom}

	out, err := HandleLLMWithContext(context.Background(), provider, nil, "s1")
	require.NoError(t, err)

	var got []LLMResponseStruct
	for r := range out {
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "Hello there.", got[0].Text)
	assert.NoError(t, got[0].Err)

	last := got[1]
	assert.True(t, last.IsEnd)
	assert.ErrorIs(t, last.Err, boom)
	assert.Empty(t, last.FullText)
	assert.Empty(t, last.Text)
}

func TestCreateLLM(t *testing.T) {
	pipeline := config.PipelineConfig{LLM: config.LLMConfig{
		Provider:   constants.LlmTypeOpenai,
		MaxTokens:  300,
		Streamable: true,
		Openai:     config.OpenaiConfig{Model: "gpt-4o-mini", APIKey: "test-key"},
		Ollama:     config.OllamaConfig{Model: "llama3.1", BaseURL: "http://localhost:11434"},
	}}

	p, err := CreateLLM(pipeline)
	require.NoError(t, err)
	require.IsType(t, &eino_llm.EinoLLMProvider{}, p)
	assert.Equal(t, "openai", p.GetModelInfo()["provider_type"])

	pipeline.LLM.Provider = constants.LlmTypeOllama
	p, err = CreateLLM(pipeline)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.GetModelInfo()["provider_type"])

	pipeline.LLM.Provider = "anthropic"
	_, err = CreateLLM(pipeline)
	var unsupported *config.UnsupportedProviderError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "llm", unsupported.Kind)
}
