package logging

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	TimestampFormat string
	ColorOutput     bool
	Output          zapcore.WriteSyncer
}

// FileLoggerOptions 文件日志选项
type FileLoggerOptions struct {
	Path string
	JSON bool
}

// LoggingBuilder 日志构建器
type LoggingBuilder struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
	mu           sync.RWMutex
}

// NewLoggingBuilder 创建日志构建器
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{
		providers:    make([]LoggerProvider, 0),
		minimumLevel: LogLevelInfo,
	}
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minimumLevel = level
	return b
}

// AddProvider 添加日志提供者
func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers = append(b.providers, provider)
	return b
}

// AddConsole 添加控制台日志
func (b *LoggingBuilder) AddConsole(options ...ConsoleLoggerOptions) *LoggingBuilder {
	opts := ConsoleLoggerOptions{
		TimestampFormat: "2006-01-02 15:04:05",
		ColorOutput:     true,
		Output:          zapcore.AddSync(os.Stdout),
	}
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.Output == nil {
		opts.Output = zapcore.AddSync(os.Stdout)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	if opts.TimestampFormat != "" {
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(opts.TimestampFormat)
	}
	if opts.ColorOutput {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return b.AddProvider(NewZapProvider(zapcore.NewConsoleEncoder(cfg), opts.Output))
}

// AddFile 添加文件日志，默认使用 JSON 编码
func (b *LoggingBuilder) AddFile(path string, options ...FileLoggerOptions) *LoggingBuilder {
	opts := FileLoggerOptions{Path: path, JSON: true}
	if len(options) > 0 {
		opts = options[0]
		if opts.Path == "" {
			opts.Path = path
		}
	}

	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return b
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	return b.AddProvider(NewZapProvider(enc, zapcore.AddSync(file)))
}

// AddZap 直接挂接一个 zap.Logger，测试中常配合 zaptest/observer 使用。
func (b *LoggingBuilder) AddZap(l *zap.Logger) *LoggingBuilder {
	return b.AddProvider(NewZapProviderFromLogger(l))
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.RLock()
	defer b.mu.RUnlock()

	factory := &loggerFactory{
		providers:    make([]LoggerProvider, 0, len(b.providers)),
		minimumLevel: b.minimumLevel,
	}

	for _, provider := range b.providers {
		factory.AddProvider(provider)
	}

	return factory
}
