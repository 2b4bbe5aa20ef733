package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with JSON handler by default
	defaultLogger = NewLogger(LogLevelInfo, true)
}

// NewLogger creates a new structured logger
func NewLogger(level LogLevel, jsonFormat bool) *slog.Logger {
	var slogLevel slog.Level

	switch level {
	case LogLevelDebug:
		slogLevel = slog.LevelDebug
	case LogLevelInfo:
		slogLevel = slog.LevelInfo
	case LogLevelWarn:
		slogLevel = slog.LevelWarn
	case LogLevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten source file paths
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					// Get relative path
					source.File = shortFile(source.File)
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *slog.Logger) {
	defaultLogger = logger
	slog.SetDefault(logger)
}

// GetDefaultLogger returns the default logger
func GetDefaultLogger() *slog.Logger {
	return defaultLogger
}

func shortFile(file string) string {
	// Keep only the last 2 path components
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			for j := i - 1; j > 0; j-- {
				if file[j] == '/' {
					short = file[j+1:]
					break
				}
			}
			break
		}
	}
	return short
}

// LoggerContext adds logger to context
func LoggerContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

type loggerKey struct{}

// LoggerFromContext retrieves logger from context
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return defaultLogger
}

// LoggingMiddleware wraps a func() so each call logs its duration
func LoggingMiddleware(logger *slog.Logger) func(next func()) func() {
	return func(next func()) func() {
		return func() {
			start := time.Now()

			// Call next handler
			next()

			duration := time.Since(start)

			logger.Info("request completed",
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
}

// LogStartup logs application startup information
func LogStartup(logger *slog.Logger, version, cacheBackend string, config map[string]interface{}) {
	logger.Info("starting tensorstore",
		"version", version,
		"cache_backend", cacheBackend,
		"go_version", runtime.Version(),
		"num_cpu", runtime.NumCPU(),
	)

	for k, v := range config {
		logger.Info("configuration", k, v)
	}
}

// LogShutdown logs application shutdown
func LogShutdown(logger *slog.Logger, reason string) {
	logger.Info("shutting down tensorstore", "reason", reason)
}

// LogPanic logs panic information and stack trace
func LogPanic(logger *slog.Logger, recovered interface{}) {
	stackBuf := make([]byte, 4096)
	n := runtime.Stack(stackBuf, false)
	stack := string(stackBuf[:n])

	logger.Error("panic recovered",
		"panic", recovered,
		"stack", stack,
	)
}

// LogCacheFlush logs a cache flush-behind event.
func LogCacheFlush(logger *slog.Logger, entriesFlushed int, bytesFlushed int64, duration time.Duration) {
	logger.Info("flushed cache",
		"entries", entriesFlushed,
		"bytes", bytesFlushed,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogRecovery logs a tensor's state as reconstructed on reopen.
func LogRecovery(logger *slog.Logger, key string, numSamples, numChunks int64, duration time.Duration) {
	logger.Info("recovered tensor",
		"key", key,
		"num_samples", numSamples,
		"num_chunks", numChunks,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogChunkCreated logs a new chunk entering a tensor's chunk sequence.
func LogChunkCreated(logger *slog.Logger, key, chunkName string, bytes int64) {
	logger.Debug("chunk created",
		"key", key,
		"chunk", chunkName,
		"bytes", bytes,
	)
}

// LogRead logs a numpy-style read.
func LogRead(logger *slog.Logger, key string, samplesReturned int, duration time.Duration) {
	logger.Debug("read executed",
		"key", key,
		"samples_returned", samplesReturned,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogError logs an error with context
func LogError(logger *slog.Logger, operation string, err error, attrs ...any) {
	args := []any{"operation", operation, "error", err}
	args = append(args, attrs...)
	logger.Error("operation failed", args...)
}

// LogAppend logs sample append/extend activity.
func LogAppend(logger *slog.Logger, key string, sampleCount int, bytes int64, duration time.Duration) {
	logger.Debug("samples appended",
		"key", key,
		"sample_count", sampleCount,
		"bytes", bytes,
		"duration_us", duration.Microseconds(),
	)
}
