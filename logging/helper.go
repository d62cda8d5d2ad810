package logging

import "go.uber.org/zap"

// NewLogger 创建一个默认的控制台 Logger（便于测试使用）
func NewLogger() Logger {
	builder := NewLoggingBuilder()
	builder.AddConsole()
	factory := builder.Build()
	return factory.CreateLogger("default")
}

// FromZap 用已有的 zap.Logger 构造 Logger。
func FromZap(l *zap.Logger, level LogLevel) Logger {
	return NewLoggingBuilder().
		SetMinimumLevel(level).
		AddZap(l).
		Build().
		CreateLogger("")
}
