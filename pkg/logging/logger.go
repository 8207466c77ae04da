package logging

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns string representation of log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a LOG_LEVEL value to a LogLevel, defaulting to InfoLevel.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fields represents structured log fields
type Fields map[string]interface{}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	uploadIDKey  contextKey = "upload_id"
)

// WithRequestID returns a context whose log entries carry request_id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID extracts the request id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUploadID returns a context whose log entries carry upload_id.
func WithUploadID(ctx context.Context, uploadID string) context.Context {
	return context.WithValue(ctx, uploadIDKey, uploadID)
}

// StructuredLogger provides structured JSON logging with context
type StructuredLogger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

// NewStructuredLogger creates a new structured logger writing JSON to stdout
func NewStructuredLogger(service, version string, level LogLevel) *StructuredLogger {
	hostname, _ := os.Hostname()

	atomic := zap.NewAtomicLevelAt(level.zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		atomic,
	)

	zl := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.FatalLevel),
	).With(
		zap.String("service", service),
		zap.String("version", version),
		zap.String("hostname", hostname),
	)

	return &StructuredLogger{zl: zl, level: atomic}
}

// NewFromZap wraps an existing zap logger, mainly for tests using zaptest/observer.
func NewFromZap(zl *zap.Logger) *StructuredLogger {
	return &StructuredLogger{zl: zl, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *StructuredLogger {
	return NewFromZap(zap.NewNop())
}

// SetLevel sets the minimum log level
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// Sync flushes any buffered entries.
func (l *StructuredLogger) Sync() error {
	return l.zl.Sync()
}

// Debug logs a debug message with structured fields
func (l *StructuredLogger) Debug(ctx context.Context, message string, fields Fields) {
	l.log(ctx, DebugLevel, message, fields, nil)
}

// Info logs an info message with structured fields
func (l *StructuredLogger) Info(ctx context.Context, message string, fields Fields) {
	l.log(ctx, InfoLevel, message, fields, nil)
}

// Warn logs a warning message with structured fields
func (l *StructuredLogger) Warn(ctx context.Context, message string, fields Fields) {
	l.log(ctx, WarnLevel, message, fields, nil)
}

// Error logs an error message with structured fields and error details
func (l *StructuredLogger) Error(ctx context.Context, message string, fields Fields, err error) {
	l.log(ctx, ErrorLevel, message, fields, err)
}

// Fatal logs a fatal message and exits the program
func (l *StructuredLogger) Fatal(ctx context.Context, message string, fields Fields, err error) {
	l.log(ctx, FatalLevel, message, fields, err)
	_ = l.zl.Sync()
	os.Exit(1)
}

func (l *StructuredLogger) log(ctx context.Context, level LogLevel, message string, fields Fields, err error) {
	zlvl := level.zapLevel()
	if level == FatalLevel {
		// Fatal exits after Sync itself.
		zlvl = zapcore.ErrorLevel
	}

	ce := l.zl.Check(zlvl, message)
	if ce == nil {
		return
	}

	zf := make([]zap.Field, 0, len(fields)+3)
	if len(fields) > 0 {
		zf = append(zf, zap.Any("fields", map[string]interface{}(fields)))
	}
	if ctx != nil {
		if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
			zf = append(zf, zap.String("request_id", id))
		}
		if id, ok := ctx.Value(uploadIDKey).(string); ok && id != "" {
			zf = append(zf, zap.String("upload_id", id))
		}
	}
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	if level == FatalLevel {
		zf = append(zf, zap.Bool("fatal", true), zap.Stack("stack_trace"))
	}

	ce.Write(zf...)
}

// WithFields creates a new logger with additional fields
func (l *StructuredLogger) WithFields(fields Fields) *ContextLogger {
	return &ContextLogger{
		logger: l,
		fields: fields,
	}
}

// ContextLogger wraps StructuredLogger with additional context fields
type ContextLogger struct {
	logger *StructuredLogger
	fields Fields
}

// Debug logs a debug message with context fields
func (c *ContextLogger) Debug(ctx context.Context, message string, fields Fields) {
	c.logger.Debug(ctx, message, c.mergeFields(fields))
}

// Info logs an info message with context fields
func (c *ContextLogger) Info(ctx context.Context, message string, fields Fields) {
	c.logger.Info(ctx, message, c.mergeFields(fields))
}

// Warn logs a warning message with context fields
func (c *ContextLogger) Warn(ctx context.Context, message string, fields Fields) {
	c.logger.Warn(ctx, message, c.mergeFields(fields))
}

// Error logs an error message with context fields
func (c *ContextLogger) Error(ctx context.Context, message string, fields Fields, err error) {
	c.logger.Error(ctx, message, c.mergeFields(fields), err)
}

// Fatal logs a fatal message with context fields
func (c *ContextLogger) Fatal(ctx context.Context, message string, fields Fields, err error) {
	c.logger.Fatal(ctx, message, c.mergeFields(fields), err)
}

// mergeFields merges context fields with provided fields
func (c *ContextLogger) mergeFields(fields Fields) Fields {
	merged := make(Fields, len(c.fields)+len(fields))

	for k, v := range c.fields {
		merged[k] = v
	}

	// Call-site fields win
	for k, v := range fields {
		merged[k] = v
	}

	return merged
}
