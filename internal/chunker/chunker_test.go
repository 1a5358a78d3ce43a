package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	c := New(100, 20)
	assert.Empty(t, c.Split(""))
	assert.Equal(t, 0, c.Count(""))
}

func TestSplitShortText(t *testing.T) {
	c := New(100, 20)
	chunks := c.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitOverlapWindows(t *testing.T) {
	c := New(10, 3)
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := c.Split(text)

	require.NotEmpty(t, chunks)
	// 每块不超过 size
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), 10)
	}
	// 相邻块之间共享 overlap 个字符
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		assert.Equal(t, string(prev[len(prev)-3:]), string(cur[:3]))
	}
}

// 去掉每块开头的 overlap 字符后拼接应还原原文。
func TestSplitReconstruction(t *testing.T) {
	cases := []struct {
		size, overlap int
		text          string
	}{
		{10, 3, "abcdefghijklmnopqrstuvwxyz0123456789"},
		{5, 0, "abcdefghijklm"},
		{7, 2, strings.Repeat("x", 100)},
		{8, 4, "短文本也要支持中文字符切分测试用例内容"},
	}
	for _, tc := range cases {
		c := New(tc.size, tc.overlap)
		chunks := c.Split(tc.text)
		require.NotEmpty(t, chunks)

		var b strings.Builder
		b.WriteString(chunks[0])
		for _, ch := range chunks[1:] {
			runes := []rune(ch)
			if len(runes) > tc.overlap {
				b.WriteString(string(runes[tc.overlap:]))
			}
		}
		assert.Equal(t, tc.text, b.String(), "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestSplitCountFormula(t *testing.T) {
	// count = ceil((len-overlap)/(size-overlap))，len > size 时
	c := New(10, 4)
	text := strings.Repeat("a", 100)
	chunks := c.Split(text)
	want := (100 - 4 + (10 - 4) - 1) / (10 - 4)
	assert.Len(t, chunks, want)
	assert.Equal(t, want, c.Count(text))
}

func TestSplitCountMatchesSplit(t *testing.T) {
	for _, size := range []int{3, 7, 10, 50} {
		for _, overlap := range []int{0, 1, 2, 5} {
			c := New(size, overlap)
			for _, n := range []int{0, 1, 5, 49, 50, 51, 200} {
				text := strings.Repeat("z", n)
				assert.Equal(t, len(c.Split(text)), c.Count(text),
					"size=%d overlap=%d len=%d", size, overlap, n)
			}
		}
	}
}

// overlap >= size 时推进步长被钳制为 1，不允许死循环。
func TestSplitOverlapNotLessThanSize(t *testing.T) {
	c := New(5, 5)
	text := "abcdefghij"
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	// 步长 1：每个起点各产生一块，最后一块到达文本末尾
	assert.Equal(t, "abcde", chunks[0])
	assert.Equal(t, "bcdef", chunks[1])
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last))

	c = New(4, 9)
	assert.NotEmpty(t, c.Split("abcdefgh"))
}

func TestSplitRuneBoundaries(t *testing.T) {
	c := New(4, 1)
	text := "中文切分不能截断多字节字符"
	for _, ch := range c.Split(text) {
		// 每块都是合法的 UTF-8 字符串且不超过 4 个 rune
		assert.LessOrEqual(t, len([]rune(ch)), 4)
		assert.True(t, strings.ToValidUTF8(ch, "?") == ch)
	}
}
