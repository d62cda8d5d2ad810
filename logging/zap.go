package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapProvider 基于 zap 的日志提供者
type ZapProvider struct {
	root  *zap.Logger
	level zap.AtomicLevel
}

// NewZapProvider 用编码器和输出目标创建提供者，级别可通过 SetMinimumLevel 动态调整。
func NewZapProvider(encoder zapcore.Encoder, out zapcore.WriteSyncer) *ZapProvider {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(encoder, zapcore.Lock(out), level)
	return &ZapProvider{
		root:  zap.New(core, zap.WithFatalHook(zapcore.WriteThenNoop)),
		level: level,
	}
}

// NewZapProviderFromLogger 包装一个已经构建好的 zap.Logger。
// 级别过滤交给 logger 自身的 core。
func NewZapProviderFromLogger(l *zap.Logger) *ZapProvider {
	return &ZapProvider{
		root:  l.WithOptions(zap.WithFatalHook(zapcore.WriteThenNoop)),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func (p *ZapProvider) CreateLogger(category string) Logger {
	return newZapLogger(p.root, category, nil)
}

func (p *ZapProvider) SetMinimumLevel(level LogLevel) {
	p.level.SetLevel(toZapLevel(level))
}

func (p *ZapProvider) Sync() error {
	return p.root.Sync()
}

// zapLogger 把 Logger 接口适配到 zap
type zapLogger struct {
	root     *zap.Logger
	category string
	fields   []Field
	l        *zap.Logger
}

func newZapLogger(root *zap.Logger, category string, fields []Field) *zapLogger {
	l := root
	if category != "" {
		l = l.Named(category)
	}
	if len(fields) > 0 {
		l = l.With(toZapFields(fields)...)
	}
	return &zapLogger{root: root, category: category, fields: fields, l: l}
}

func (l *zapLogger) Trace(msg string, fields ...Field) {
	l.Log(LogLevelTrace, msg, fields...)
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.Log(LogLevelDebug, msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.Log(LogLevelInfo, msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.Log(LogLevelWarn, msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.Log(LogLevelError, msg, fields...)
}

func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
}

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	if ce := l.l.Check(toZapLevel(level), msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return newZapLogger(l.root, l.category, merged)
}

func (l *zapLogger) WithCategory(category string) Logger {
	return newZapLogger(l.root, category, l.fields)
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func toZapFields(fields []Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
