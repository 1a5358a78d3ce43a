package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"nuvaru-go/pkg/apperr"
)

// hashClient 是无需外部模型的确定性降级实现。
// 向量来自文本的 SHA-256 哈希：每个十六进制字节对映射为 [-1, 1] 的浮点数，
// 不足维度补零，超出截断。
//
// 该实现没有任何语义：除完全相同的文本外，相似度近似于均匀噪声。
// 仅用于没有模型依赖的开发与测试环境，不得用于对检索质量敏感的部署。
type hashClient struct {
	dimensions int
}

func newHashClient(dimensions int) *hashClient {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &hashClient{dimensions: dimensions}
}

// Dimensions 返回固定的向量维度。
func (c *hashClient) Dimensions() int {
	return c.dimensions
}

// CreateEmbedding 由文本哈希派生向量。相同文本永远得到相同向量。
func (c *hashClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: 输入文本为空", apperr.ErrEmbedding)
	}

	sum := sha256.Sum256([]byte(text))
	hexDigest := hex.EncodeToString(sum[:])

	vector := make([]float32, 0, c.dimensions)
	for i := 0; i+2 <= len(hexDigest) && len(vector) < c.dimensions; i += 2 {
		v, err := strconv.ParseUint(hexDigest[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: 解析哈希失败: %v", apperr.ErrEmbedding, err)
		}
		vector = append(vector, float32(v)/255.0*2-1)
	}
	for len(vector) < c.dimensions {
		vector = append(vector, 0.0)
	}
	return vector, nil
}

// CreateEmbeddings 逐条派生向量，顺序与输入一致。
func (c *hashClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: 输入文本列表为空", apperr.ErrEmbedding)
	}
	vectors := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := c.CreateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}
