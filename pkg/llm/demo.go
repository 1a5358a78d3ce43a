package llm

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// demoClient 在未配置外部 LLM 时提供固定格式的回答，
// 保证检索管道在无密钥环境下依然端到端可用。
type demoClient struct{}

// NewDemoClient 创建 demo 模式客户端。
// 真实 provider 生成失败时，调用方也用它做降级兜底。
func NewDemoClient() Client {
	return &demoClient{}
}

func (c *demoClient) Provider() string { return "demo" }

// Generate 返回确定性的 demo 回答，永不失败。会话上下文不参与 demo 文案。
func (c *demoClient) Generate(_ context.Context, query, contextText, _ string) (*GenerateResult, error) {
	var text string
	if contextText != "" {
		text = fmt.Sprintf(`Based on the provided context, I can help you with your question about "%s".

The context contains relevant information that I can use to provide a more specific answer. However, I'm currently running in demo mode without access to external LLM services.

To get full AI-powered responses, please configure your API keys in the environment variables:
- OPENAI_API_KEY for OpenAI services
- ANTHROPIC_API_KEY for Anthropic services

Context available: %d characters of relevant information.`, query, len(contextText))
	} else {
		text = fmt.Sprintf(`I understand you're asking about "%s".

I'm currently running in demo mode without access to external LLM services. To get full AI-powered responses, please:

1. Configure your API keys in the environment variables
2. Upload relevant documents to provide context for better answers

Available providers:
- OpenAI (set OPENAI_API_KEY)
- Anthropic (set ANTHROPIC_API_KEY)`, query)
	}

	return &GenerateResult{
		Text:     text,
		Provider: "demo",
		Model:    "demo-mode",
	}, nil
}

// StreamChatMessages 把 demo 回答一次性写入 writer。
func (c *demoClient) StreamChatMessages(ctx context.Context, messages []Message, _ *GenerationParams, writer MessageWriter) error {
	query := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			query = messages[i].Content
			break
		}
	}
	result, err := c.Generate(ctx, query, "", "")
	if err != nil {
		return err
	}
	return writer.WriteMessage(websocket.TextMessage, []byte(result.Text))
}
