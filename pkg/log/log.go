// Package log 是 zap SugaredLogger 的包级封装，
// 各层直接调用包函数，不需要在构造链路里传递 logger 实例。
package log

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sugar *zap.SugaredLogger

// Init 按配置构建全局 logger，必须在任何日志调用之前执行。
// format 为 "console" 时走带颜色的开发配置，其余走 JSON 生产配置；
// level 解析失败时回落到 info。
func Init(level, format, outputPath string) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Encoding = "console"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	}
	cfg.Level = lvl

	// 始终写 stdout；配置了输出目录时追加写入目录下的 app.log
	cfg.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		_ = os.MkdirAll(outputPath, os.ModePerm)
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(outputPath, "app.log"))
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	sugar = logger.Sugar()
}

// Info 记录一条 info 日志。
func Info(msg string) {
	sugar.Info(msg)
}

// Infof 记录一条格式化的 info 日志。
func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 以键值对的形式记录结构化 info 日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

// Warnf 记录一条格式化的 warn 日志。
func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

// Error 记录一条 error 日志并携带 error 字段。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

// Errorf 记录一条格式化的 error 日志。
func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

// Fatal 记录 fatal 日志后退出进程。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

// Fatalf 记录格式化的 fatal 日志后退出进程。
func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 把缓冲的日志刷到底层 writer，进程退出前调用。
func Sync() {
	_ = sugar.Sync()
}
