package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuvaru-go/internal/config"
	"nuvaru-go/internal/vectorstore"
	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/embedding"
)

// seedChunks 向索引写入某个用户的分块，向量由 hash embedding 派生。
func seedChunks(t *testing.T, store vectorstore.Store, client embedding.Client, userID uint, docID string, texts []string) {
	t.Helper()
	entries := make([]vectorstore.Entry, 0, len(texts))
	for i, text := range texts {
		vector, err := client.CreateEmbedding(context.Background(), text)
		require.NoError(t, err)
		entries = append(entries, vectorstore.Entry{
			ID:     fmt.Sprintf("%s_chunk_%d", docID, i),
			Vector: vector,
			Text:   text,
			Metadata: map[string]string{
				"user_id":     fmt.Sprintf("%d", userID),
				"doc_id":      docID,
				"chunk_index": fmt.Sprintf("%d", i),
			},
		})
	}
	_, err := store.Add(context.Background(), entries)
	require.NoError(t, err)
}

func newSearchFixture(t *testing.T) (SearchService, vectorstore.Store, embedding.Client) {
	t.Helper()
	client, err := embedding.NewClient(config.EmbeddingConfig{Provider: "hash", Dimensions: 32})
	require.NoError(t, err)
	store, err := vectorstore.NewMemoryStore(t.TempDir(), "search_test")
	require.NoError(t, err)
	return NewSearchService(client, store, 5), store, client
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _, _ := newSearchFixture(t)
	_, err := svc.Search(context.Background(), 1, "", "", 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSearchExactTextRanksFirst(t *testing.T) {
	svc, store, client := newSearchFixture(t)
	// hash embedding 对相同文本产生相同向量，精确命中的相似度为 1.0
	seedChunks(t, store, client, 1, "doc-1", []string{
		"Metformin is the first-line medication for type 2 diabetes.",
		"Patients should monitor blood glucose regularly.",
		"Regular exercise improves insulin sensitivity.",
	})

	results, err := svc.Search(context.Background(), 1, "", "Metformin is the first-line medication for type 2 diabetes.", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "doc-1_chunk_0", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestSearchIsolatesUsers(t *testing.T) {
	svc, store, client := newSearchFixture(t)
	text := "shared medical knowledge chunk"
	seedChunks(t, store, client, 1, "doc-a", []string{text})
	seedChunks(t, store, client, 2, "doc-b", []string{text})

	results, err := svc.Search(context.Background(), 1, "", text, 10)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "doc-a_chunk_0", results[0].ID)
	assert.Equal(t, "1", results[0].Metadata["user_id"])
}

func TestSearchDefaultTopK(t *testing.T) {
	svc, store, client := newSearchFixture(t)
	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d about treatment options", i)
	}
	seedChunks(t, store, client, 1, "doc-1", texts)

	// topK <= 0 时退回构造时的默认值 5
	results, err := svc.Search(context.Background(), 1, "", "treatment", 0)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestSearchKnowledgeBaseFilter(t *testing.T) {
	client, err := embedding.NewClient(config.EmbeddingConfig{Provider: "hash", Dimensions: 32})
	require.NoError(t, err)
	store, err := vectorstore.NewMemoryStore(t.TempDir(), "search_kb_test")
	require.NoError(t, err)
	svc := NewSearchService(client, store, 5)

	text := "knowledge base scoped chunk"
	vector, err := client.CreateEmbedding(context.Background(), text)
	require.NoError(t, err)
	_, err = store.Add(context.Background(), []vectorstore.Entry{
		{
			ID: "doc-1_chunk_0", Vector: vector, Text: text,
			Metadata: map[string]string{"user_id": "1", "doc_id": "doc-1", "knowledge_base_id": "kb-alpha"},
		},
		{
			ID: "doc-2_chunk_0", Vector: vector, Text: text,
			Metadata: map[string]string{"user_id": "1", "doc_id": "doc-2", "knowledge_base_id": "kb-beta"},
		},
	})
	require.NoError(t, err)

	results, err := svc.Search(context.Background(), 1, "kb-beta", text, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2_chunk_0", results[0].ID)
}
