package service

import (
	"fmt"
	"strings"

	"nuvaru-go/internal/model"
)

// noResultContext 是检索无命中时的占位上下文。
const noResultContext = "No relevant documents found."

// 为提示词模板预留的空间（字符数）。
const promptReserve = 500

// 引用摘录的最大长度（字符数）。
const excerptMaxLen = 200

// ContextAssembler 把检索命中的分块拼装成 LLM 上下文与引用列表。
type ContextAssembler struct {
	maxContextLength int
}

// NewContextAssembler 创建一个新的 ContextAssembler。
func NewContextAssembler(maxContextLength int) *ContextAssembler {
	return &ContextAssembler{maxContextLength: maxContextLength}
}

// BuildContext 按 "Source {n} (Relevance: score):" 的格式拼装上下文，
// 块之间以空行分隔；超出长度上限时硬截断并追加省略号。
// 无命中时返回占位文本。
func (a *ContextAssembler) BuildContext(results []model.QueryResult) string {
	if len(results) == 0 {
		return noResultContext
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("Source %d (Relevance: %.2f):\n%s\n", i+1, r.Similarity, r.Text))
	}
	contextText := strings.Join(parts, "\n")

	// 按字符截断，避免把多字节字符切成半个
	maxLen := a.maxContextLength - promptReserve
	if runes := []rune(contextText); maxLen > 0 && len(runes) > maxLen {
		contextText = string(runes[:maxLen]) + "..."
	}
	return contextText
}

// FormatSources 把检索命中转换为响应中的引用列表。
// 摘录截断到 excerptMaxLen 个字符并追加省略号。
func (a *ContextAssembler) FormatSources(results []model.QueryResult) []model.SourceRef {
	sources := make([]model.SourceRef, 0, len(results))
	for _, r := range results {
		excerpt := r.Text
		if runes := []rune(excerpt); len(runes) > excerptMaxLen {
			excerpt = string(runes[:excerptMaxLen]) + "..."
		}
		title := r.Metadata["file_name"]
		if title == "" {
			title = "Unknown Document"
		}
		docID := r.Metadata["doc_id"]
		if docID == "" {
			docID = "unknown"
		}
		sources = append(sources, model.SourceRef{
			DocumentID:     docID,
			Title:          title,
			RelevanceScore: r.Similarity,
			Excerpt:        excerpt,
			Metadata: map[string]string{
				"content_type": r.Metadata["content_type"],
				"chunk_index":  r.Metadata["chunk_index"],
			},
		})
	}
	return sources
}
