// Package apperr 定义了检索管道的错误类别。
// 各层用 fmt.Errorf("%w: ...", apperr.ErrXxx) 包装具体原因，
// handler 层通过 errors.Is 将类别映射为 HTTP 状态码。
package apperr

import "errors"

var (
	// ErrValidation 表示调用方输入非法（空文本、不支持的类型、超大文件等）。
	ErrValidation = errors.New("validation error")
	// ErrEmbedding 表示向量化失败。
	ErrEmbedding = errors.New("embedding error")
	// ErrStorage 表示向量索引或持久化层的读写失败。
	ErrStorage = errors.New("storage error")
	// ErrGeneration 表示大模型生成失败。
	// 这是唯一允许被捕获并降级为 demo 回答的类别，其余类别一律向调用方传播。
	ErrGeneration = errors.New("generation error")
	// ErrNotFound 表示目标资源不存在。
	ErrNotFound = errors.New("not found")
	// ErrTimeout 表示对外部模型的调用超过了调用方配置的时限，可重试。
	ErrTimeout = errors.New("timeout")
)
