package service

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuvaru-go/internal/model"
)

func TestBuildContextEmpty(t *testing.T) {
	a := NewContextAssembler(4096)
	assert.Equal(t, "No relevant documents found.", a.BuildContext(nil))
	assert.Equal(t, "No relevant documents found.", a.BuildContext([]model.QueryResult{}))
}

func TestBuildContextFormat(t *testing.T) {
	a := NewContextAssembler(4096)
	results := []model.QueryResult{
		{Text: "糖尿病患者应监测血糖。", Similarity: 0.91},
		{Text: "二甲双胍是一线用药。", Similarity: 0.87},
	}

	got := a.BuildContext(results)
	want := "Source 1 (Relevance: 0.91):\n糖尿病患者应监测血糖。\n" +
		"\n" +
		"Source 2 (Relevance: 0.87):\n二甲双胍是一线用药。\n"
	assert.Equal(t, want, got)
}

func TestBuildContextTruncation(t *testing.T) {
	// 上限 600，减去预留 500 后有效长度为 100
	a := NewContextAssembler(600)
	long := strings.Repeat("x", 300)
	got := a.BuildContext([]model.QueryResult{{Text: long, Similarity: 0.5}})

	assert.Len(t, got, 103) // 100 字符 + "..."
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, strings.HasPrefix(got, "Source 1 (Relevance: 0.50):"))
}

// 截断按字符计数，多字节文本不会被切出非法 UTF-8。
func TestBuildContextTruncationMultibyte(t *testing.T) {
	a := NewContextAssembler(600)
	long := strings.Repeat("数据分块", 60) // 240 字符
	got := a.BuildContext([]model.QueryResult{{Text: long, Similarity: 0.5}})

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 103, len([]rune(got))) // 100 字符 + "..."
}

func TestBuildContextNoTruncationWhenReserveExceedsLimit(t *testing.T) {
	// 上限不足预留空间时不截断
	a := NewContextAssembler(100)
	long := strings.Repeat("x", 300)
	got := a.BuildContext([]model.QueryResult{{Text: long, Similarity: 0.5}})
	assert.Contains(t, got, long)
}

func TestFormatSources(t *testing.T) {
	a := NewContextAssembler(4096)
	results := []model.QueryResult{
		{
			ID:         "doc-1_chunk_0",
			Text:       strings.Repeat("a", 250),
			Similarity: 0.93,
			Metadata: map[string]string{
				"doc_id":       "doc-1",
				"file_name":    "diabetes.md",
				"content_type": "text/markdown",
				"chunk_index":  "0",
			},
		},
		{
			ID:         "doc-2_chunk_3",
			Text:       "short",
			Similarity: 0.42,
			Metadata:   map[string]string{},
		},
	}

	sources := a.FormatSources(results)
	require.Len(t, sources, 2)

	// 长文本截断为 200 字符摘录
	assert.Equal(t, strings.Repeat("a", 200)+"...", sources[0].Excerpt)
	assert.Equal(t, "doc-1", sources[0].DocumentID)
	assert.Equal(t, "diabetes.md", sources[0].Title)
	assert.Equal(t, 0.93, sources[0].RelevanceScore)
	assert.Equal(t, "text/markdown", sources[0].Metadata["content_type"])
	assert.Equal(t, "0", sources[0].Metadata["chunk_index"])

	// 元数据缺失时的兜底
	assert.Equal(t, "short", sources[1].Excerpt)
	assert.Equal(t, "Unknown Document", sources[1].Title)
	assert.Equal(t, "unknown", sources[1].DocumentID)
}

// 摘录截断同样按字符计数：未超过 200 字符的多字节文本整体保留，
// 超过时在字符边界截断，结果必须是合法 UTF-8。
func TestFormatSourcesMultibyteExcerpt(t *testing.T) {
	a := NewContextAssembler(4096)
	within := strings.Repeat("数据分块", 30) // 120 字符，360 字节
	beyond := strings.Repeat("数据分块", 60) // 240 字符

	sources := a.FormatSources([]model.QueryResult{
		{Text: within, Similarity: 0.8},
		{Text: beyond, Similarity: 0.7},
	})
	require.Len(t, sources, 2)

	assert.Equal(t, within, sources[0].Excerpt)

	assert.True(t, utf8.ValidString(sources[1].Excerpt))
	assert.Equal(t, string([]rune(beyond)[:200])+"...", sources[1].Excerpt)
}

func TestFormatSourcesOrderFollowsResults(t *testing.T) {
	a := NewContextAssembler(4096)
	results := make([]model.QueryResult, 5)
	for i := range results {
		results[i] = model.QueryResult{
			Text:     fmt.Sprintf("chunk %d", i),
			Metadata: map[string]string{"doc_id": fmt.Sprintf("doc-%d", i)},
		}
	}

	sources := a.FormatSources(results)
	require.Len(t, sources, 5)
	for i, s := range sources {
		assert.Equal(t, fmt.Sprintf("doc-%d", i), s.DocumentID)
	}
}
