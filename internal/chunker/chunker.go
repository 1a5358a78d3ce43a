// Package chunker 将长文本切分为带重叠的固定大小窗口。
// 切块是向量化与检索的基本单位，生成后不再合并或二次切分。
package chunker

// Chunker 按字符窗口切分文本。
// Size 是单块的最大字符数，Overlap 是相邻块之间重复的尾部字符数。
// 重叠窗口保证跨块边界的句子在相邻块中也完整出现，代价是索引少量重复文本。
type Chunker struct {
	Size    int
	Overlap int
}

// New 创建一个 Chunker。size 非法时回退到 1000/200 的默认窗口。
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split 将文本切分为重叠窗口，按 rune 计数以避免在多字节字符中间截断。
// 空文本返回空切片。步长 = size - overlap；当 overlap >= size 时步长被
// 钳制为最小 1，否则起点不再前进会造成死循环。
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.Size - c.Overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Count 返回 Split 将产生的块数，不实际分配块内容。
func (c *Chunker) Count(text string) int {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	step := c.Size - c.Overlap
	if step < 1 {
		step = 1
	}
	if len(runes) <= c.Size {
		return 1
	}
	// 等价于 ceil((len - overlap) / step)，与 Split 的推进逻辑一致
	n := 0
	for start := 0; start < len(runes); start += step {
		n++
		if start+c.Size >= len(runes) {
			break
		}
	}
	return n
}
