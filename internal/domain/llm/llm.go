package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	log "voice-agent-server-golang/logger"
)

// 短于该长度的片段会与下一句合并后再送 TTS
const minSentenceLen = 5

// 句子结束的标点符号
var sentenceEndPunctuation = []rune{'.', '。', '!', '！', '?', '？', '\n'}

// 句子暂停的标点符号，仅用于切分首句以降低首包延迟
var sentencePausePunctuation = []rune{',', '，', ';', '；', ':', '：'}

// LLMResponseStruct 按句切分后的输出
type LLMResponseStruct struct {
	Text    string `json:"text,omitempty"`
	IsStart bool   `json:"is_start"`
	IsEnd   bool   `json:"is_end"`
	// FullText 仅在 IsEnd 时填充，为本轮完整回复
	FullText string `json:"full_text,omitempty"`
	// Err 非空表示流中途失败，此时 IsEnd 为 true 且不填充 FullText
	Err error `json:"-"`
}

func isSentenceEndPunctuation(r rune) bool {
	for _, p := range sentenceEndPunctuation {
		if r == p {
			return true
		}
	}
	return false
}

func isSentencePausePunctuation(r rune) bool {
	for _, p := range sentencePausePunctuation {
		if r == p {
			return true
		}
	}
	return false
}

// HandleLLMWithContext 调用LLM并把增量输出按句切分
// 最后一条消息 IsEnd 为 true，之后通道关闭；ctx 取消时直接关闭通道
func HandleLLMWithContext(ctx context.Context, llmProvider LLMProvider, dialogue []*schema.Message, sessionID string) (chan LLMResponseStruct, error) {
	reader, err := llmProvider.ResponseWithContext(ctx, sessionID, dialogue)
	if err != nil {
		return nil, err
	}

	sentenceChannel := make(chan LLMResponseStruct, 2)
	go func() {
		defer close(sentenceChannel)
		defer reader.Close()

		startTs := time.Now()
		var fullText, buffer strings.Builder
		isFirst := true

		send := func(resp LLMResponseStruct) bool {
			select {
			case <-ctx.Done():
				return false
			case sentenceChannel <- resp:
				return true
			}
		}

		for {
			message, err := reader.Recv()
			if ctx.Err() != nil {
				log.Debugf("上下文已取消，停止LLM响应处理: %v", ctx.Err())
				return
			}
			if errors.Is(err, io.EOF) {
				remaining := strings.TrimSpace(buffer.String())
				log.Debugf("llm 完整回复: %s", fullText.String())
				send(LLMResponseStruct{
					Text:     remaining,
					IsStart:  isFirst && remaining != "",
					IsEnd:    true,
					FullText: strings.TrimSpace(fullText.String()),
				})
				return
			}
			if err != nil {
				log.Errorf("[LLM] 接收流式响应失败 - SessionID: %s: %v", sessionID, err)
				send(LLMResponseStruct{IsEnd: true, Err: fmt.Errorf("接收LLM响应失败: %w", err)})
				return
			}
			if message == nil || message.Content == "" {
				continue
			}
			fullText.WriteString(message.Content)
			buffer.WriteString(message.Content)

			sentences, remaining := extractSentences(buffer.String(), minSentenceLen, isFirst)
			if len(sentences) == 0 {
				continue
			}
			buffer.Reset()
			buffer.WriteString(remaining)
			for _, sentence := range sentences {
				if isFirst {
					log.Infof("耗时统计: llm首句: %d ms", time.Since(startTs).Milliseconds())
				}
				if !send(LLMResponseStruct{Text: sentence, IsStart: isFirst}) {
					return
				}
				isFirst = false
			}
		}
	}()
	return sentenceChannel, nil
}

// extractSentences 从缓冲文本中切出完整句子，返回剩余未完成部分
// firstSentence 为 true 时首句允许在逗号等停顿处切分
func extractSentences(text string, minLen int, firstSentence bool) (sentences []string, remaining string) {
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		boundary := false
		switch {
		case isSentenceEndPunctuation(r):
			boundary = r != '.' || isSentenceDot(runes, start, i)
		case firstSentence && isSentencePausePunctuation(r):
			boundary = true
		}
		if !boundary {
			continue
		}

		segment := strings.TrimSpace(string(runes[start : i+1]))
		if utf8.RuneCountInString(segment) < minLen {
			continue
		}
		sentences = append(sentences, segment)
		start = i + 1
		firstSentence = false
	}
	return sentences, string(runes[start:])
}

// isSentenceDot 排除小数点与 "1." 这类序号
// 位于末尾的点号无法判断，等待后续内容
func isSentenceDot(runes []rune, start, i int) bool {
	if i == len(runes)-1 {
		return false
	}
	if unicode.IsDigit(runes[i+1]) {
		return false
	}
	return !isNumberPrefix(runes[start:i])
}

func isNumberPrefix(runes []rune) bool {
	trimmed := strings.TrimSpace(string(runes))
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
