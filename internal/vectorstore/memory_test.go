package vectorstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuvaru-go/pkg/apperr"
	"nuvaru-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(t.TempDir(), "test_collection")
	require.NoError(t, err)
	return s
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float32{-1, 0, 0}), 1e-6)

	// 模长为零时定义为 0.0，不是 NaN
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, a))
	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{0, 0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarityBounds(t *testing.T) {
	vectors := [][]float32{
		{0.3, -0.7, 0.2, 0.9},
		{1, 1, 1, 1},
		{-0.5, 0.5, -0.5, 0.5},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			sim := CosineSimilarity(a, b)
			assert.GreaterOrEqual(t, sim, -1.0-1e-9)
			assert.LessOrEqual(t, sim, 1.0+1e-9)
		}
	}
}

func TestAddGeneratesIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids, err := s.Add(ctx, []Entry{
		{Vector: []float32{1, 0}, Text: "a"},
		{ID: "explicit-id", Vector: []float32{0, 1}, Text: "b"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, "explicit-id", ids[1])

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestQueryRankingAndStableTieBreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 与查询向量 (1,0) 的相似度依次为 1.0, 0.0, 1.0, ~0.7
	_, err := s.Add(ctx, []Entry{
		{ID: "first-high", Vector: []float32{2, 0}, Text: "first"},
		{ID: "low", Vector: []float32{0, 1}, Text: "low"},
		{ID: "second-high", Vector: []float32{5, 0}, Text: "second"},
		{ID: "mid", Vector: []float32{1, 1}, Text: "mid"},
	})
	require.NoError(t, err)

	results, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// 相同相似度按插入顺序稳定排序
	assert.Equal(t, "first-high", results[0].ID)
	assert.Equal(t, "second-high", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 1.0, results[1].Similarity, 1e-6)
}

func TestQueryIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []Entry{
		{ID: "a", Vector: []float32{1, 0.2}, Text: "a"},
		{ID: "b", Vector: []float32{0.5, 0.9}, Text: "b"},
		{ID: "c", Vector: []float32{0.1, 1}, Text: "c"},
	})
	require.NoError(t, err)

	q := []float32{0.7, 0.7}
	r1, err := s.Query(ctx, q, 3, nil)
	require.NoError(t, err)
	r2, err := s.Query(ctx, q, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestQueryFilterExclusion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []Entry{
		{ID: "mine", Vector: []float32{0, 1}, Text: "mine", Metadata: map[string]string{"user_id": "1"}},
		// 与查询向量完全一致，但属于其他用户，必须被过滤排除
		{ID: "theirs", Vector: []float32{1, 0}, Text: "theirs", Metadata: map[string]string{"user_id": "2"}},
	})
	require.NoError(t, err)

	results, err := s.Query(ctx, []float32{1, 0}, 10, map[string]string{"user_id": "1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].ID)
}

// 过滤发生在排名截断之前：k 条结果全部来自过滤后的候选集。
func TestQueryFilterBeforeTruncation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{ID: "other-1", Vector: []float32{1, 0}, Metadata: map[string]string{"user_id": "2"}},
		{ID: "other-2", Vector: []float32{1, 0.1}, Metadata: map[string]string{"user_id": "2"}},
		{ID: "mine-1", Vector: []float32{0.2, 1}, Metadata: map[string]string{"user_id": "1"}},
		{ID: "mine-2", Vector: []float32{0.1, 1}, Metadata: map[string]string{"user_id": "1"}},
	}
	_, err := s.Add(ctx, entries)
	require.NoError(t, err)

	results, err := s.Query(ctx, []float32{1, 0}, 2, map[string]string{"user_id": "1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mine-1", results[0].ID)
	assert.Equal(t, "mine-2", results[1].ID)
}

func TestQueryConjunctionFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []Entry{
		{ID: "kb-a", Vector: []float32{1, 0}, Metadata: map[string]string{"user_id": "1", "knowledge_base_id": "a"}},
		{ID: "kb-b", Vector: []float32{1, 0}, Metadata: map[string]string{"user_id": "1", "knowledge_base_id": "b"}},
	})
	require.NoError(t, err)

	results, err := s.Query(ctx, []float32{1, 0}, 10, map[string]string{"user_id": "1", "knowledge_base_id": "b"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kb-b", results[0].ID)
}

func TestGetAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, []Entry{
		{ID: "keep", Vector: []float32{1, 0}, Text: "keep me"},
		{ID: "drop", Vector: []float32{0, 1}, Text: "drop me"},
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.Text)

	// 删除不存在的 ID 是 no-op
	require.NoError(t, s.Delete(ctx, []string{"drop", "never-existed"}))

	_, err = s.Get(ctx, "drop")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// 进程重启后集合应从磁盘恢复，查询结果与重启前一致。
func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewMemoryStore(dir, "kb")
	require.NoError(t, err)
	_, err = s1.Add(ctx, []Entry{
		{ID: "x", Vector: []float32{1, 0}, Text: "hello", Metadata: map[string]string{"user_id": "1", "doc_id": "d1"}},
		{ID: "y", Vector: []float32{0, 1}, Text: "world", Metadata: map[string]string{"user_id": "1", "doc_id": "d1"}},
	})
	require.NoError(t, err)

	s2, err := NewMemoryStore(dir, "kb")
	require.NoError(t, err)

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := s2.Query(ctx, []float32{1, 0}, 1, map[string]string{"user_id": "1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
	assert.Equal(t, "d1", results[0].Metadata["doc_id"])
}

func TestQueryEmptyStore(t *testing.T) {
	s := newTestStore(t)
	results, err := s.Query(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
