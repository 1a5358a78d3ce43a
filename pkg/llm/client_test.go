package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptWithContext(t *testing.T) {
	prompt := buildPrompt("什么是糖尿病？", "糖尿病是一种慢性代谢疾病。", "")

	assert.True(t, strings.HasPrefix(prompt, "Context from your knowledge base:"))
	assert.Contains(t, prompt, "糖尿病是一种慢性代谢疾病。")
	assert.Contains(t, prompt, "User question: 什么是糖尿病？")
	assert.NotContains(t, prompt, "Previous conversation context")
}

func TestBuildPromptWithoutContext(t *testing.T) {
	prompt := buildPrompt("什么是糖尿病？", "", "")

	assert.True(t, strings.HasPrefix(prompt, "User question: 什么是糖尿病？"))
	assert.Contains(t, prompt, "no specific context from documents was found")
}

// 会话上下文追加在提示词末尾。
func TestBuildPromptAppendsConversationContext(t *testing.T) {
	conversation := "user: 什么是糖尿病？\nassistant: 糖尿病是一种慢性代谢疾病。"
	prompt := buildPrompt("如何治疗？", "二甲双胍是一线用药。", conversation)

	assert.True(t, strings.HasSuffix(prompt, "Previous conversation context: "+conversation))
	assert.Contains(t, prompt, "二甲双胍是一线用药。")
}
