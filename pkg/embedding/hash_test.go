package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nuvaru-go/internal/config"
	"nuvaru-go/pkg/apperr"
)

func TestHashClientDeterministic(t *testing.T) {
	c := newHashClient(384)
	ctx := context.Background()

	v1, err := c.CreateEmbedding(ctx, "diabetes is a chronic condition")
	require.NoError(t, err)
	v2, err := c.CreateEmbedding(ctx, "diabetes is a chronic condition")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	v3, err := c.CreateEmbedding(ctx, "a different text")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestHashClientDimensionAndRange(t *testing.T) {
	for _, dim := range []int{16, 32, 384, 512} {
		c := newHashClient(dim)
		v, err := c.CreateEmbedding(context.Background(), "hello")
		require.NoError(t, err)
		require.Len(t, v, dim)
		assert.Equal(t, dim, c.Dimensions())
		for _, f := range v {
			assert.GreaterOrEqual(t, f, float32(-1))
			assert.LessOrEqual(t, f, float32(1))
		}
	}
}

// SHA-256 提供 32 个字节对；维度大于 32 时其余位置补零。
func TestHashClientPadding(t *testing.T) {
	c := newHashClient(384)
	v, err := c.CreateEmbedding(context.Background(), "padded")
	require.NoError(t, err)
	for i := 32; i < 384; i++ {
		assert.Zero(t, v[i])
	}
}

func TestHashClientEmptyInput(t *testing.T) {
	c := newHashClient(384)
	_, err := c.CreateEmbedding(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrEmbedding)

	_, err = c.CreateEmbeddings(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrEmbedding)
}

func TestHashClientBatchOrder(t *testing.T) {
	c := newHashClient(64)
	texts := []string{"one", "two", "three"}
	batch, err := c.CreateEmbeddings(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, text := range texts {
		single, err := c.CreateEmbedding(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestNewClientSelectsProvider(t *testing.T) {
	c, err := NewClient(config.EmbeddingConfig{Provider: "hash", Dimensions: 128})
	require.NoError(t, err)
	assert.Equal(t, 128, c.Dimensions())

	_, err = NewClient(config.EmbeddingConfig{Provider: "unknown"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// openai provider 在缺少连接配置时应在构造期失败
	_, err = NewClient(config.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err)
}
