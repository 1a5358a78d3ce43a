// Package llm 封装了大语言模型的统一调用入口，支持 openai 兼容接口、
// anthropic 以及无外部依赖的 demo 模式。
package llm

import (
	"context"
	"fmt"

	"nuvaru-go/internal/config"
)

// MessageWriter 定义了写出流式消息的接口。
// websocket.Conn 和测试用的拦截器都满足该接口。
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Message 表示一条角色消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，传参优先于配置。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// GenerateResult 是一次生成调用的结果。
// Provider 标识实际产生回答的后端，降级到 demo 时为 "demo"。
type GenerateResult struct {
	Text       string
	Provider   string
	Model      string
	TokensUsed int
}

// Client 定义了 LLM 客户端的接口。
type Client interface {
	// Generate 基于检索到的上下文与此前的会话上下文生成回答，
	// conversationContext 为空时不注入历史。
	// 调用失败时返回包裹 apperr.ErrGeneration 的错误，调用方据此降级。
	Generate(ctx context.Context, query, contextText, conversationContext string) (*GenerateResult, error)
	// StreamChatMessages 以 role-based 消息调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
	// Provider 返回后端标识。
	Provider() string
}

// NewClient 根据配置创建 LLM 客户端。
// provider 为空或密钥缺失时退化为 demo 模式，服务整体仍然可用。
func NewClient(cfg config.LLMConfig) Client {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey != "" {
			return newOpenAIClient(cfg)
		}
	case "anthropic":
		if cfg.APIKey != "" {
			return newAnthropicClient(cfg)
		}
	}
	return NewDemoClient()
}

// buildPrompt 把检索上下文、会话上下文与用户问题拼接成最终提示词。
func buildPrompt(query, contextText, conversationContext string) string {
	var prompt string
	if contextText != "" {
		prompt = fmt.Sprintf(`Context from your knowledge base:
%s

User question: %s

Please provide a helpful response based on the context above. If the context doesn't contain relevant information, let the user know and suggest they upload more relevant documents.`, contextText, query)
	} else {
		prompt = fmt.Sprintf(`User question: %s

Please provide a helpful response. Note that no specific context from documents was found, so you may want to suggest the user upload relevant documents to get more specific answers.`, query)
	}
	if conversationContext != "" {
		prompt += fmt.Sprintf("\n\nPrevious conversation context: %s", conversationContext)
	}
	return prompt
}
