// Package logger provides structured logging with context propagation for
// the analytics pipeline. It builds on the standard library's slog package
// with component-scoped loggers, run-ID tracing, and configurable output
// including rotating log files.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/epi-analytics/go-covid-analytics/internal/config"
)

// ContextKey represents keys for context values.
type ContextKey string

const (
	// RunIDKey is the context key for the pipeline run ID.
	RunIDKey ContextKey = "run_id"
	// ComponentKey is the context key for the component name.
	ComponentKey ContextKey = "component"
	// OperationKey is the context key for the operation name.
	OperationKey ContextKey = "operation"
	// LocationKey is the context key for the country/region filter.
	LocationKey ContextKey = "location"
	// MetricKey is the context key for the metric column name.
	MetricKey ContextKey = "metric"
)

// Manager manages structured logging for the application.
type Manager struct {
	baseLogger     *slog.Logger
	config         config.LoggingConfig
	writer         io.WriteCloser
	componentCache map[string]*slog.Logger
}

// NewManager creates a logger manager with the specified configuration.
func NewManager(cfg config.LoggingConfig) (*Manager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Manager{
		baseLogger:     slog.New(handler),
		config:         cfg,
		writer:         writer,
		componentCache: make(map[string]*slog.Logger),
	}, nil
}

func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stderr":
		return nopWriteCloser{os.Stderr}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}, nil
	default:
		return nopWriteCloser{os.Stdout}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the base logger instance.
func (m *Manager) Logger() *slog.Logger {
	return m.baseLogger
}

// Component returns a logger scoped to the named component.
func (m *Manager) Component(component string) *slog.Logger {
	if cached, exists := m.componentCache[component]; exists {
		return cached
	}
	l := m.baseLogger.With(slog.String("component", component))
	m.componentCache[component] = l
	return l
}

// WithContext returns a logger carrying the attributes found in the context.
func (m *Manager) WithContext(ctx context.Context) *slog.Logger {
	attrs := extractContextAttributes(ctx)
	if len(attrs) == 0 {
		return m.baseLogger
	}
	return m.baseLogger.With(attrs...)
}

// Close closes the logger and any associated resources.
func (m *Manager) Close() error {
	if m.writer != nil {
		return m.writer.Close()
	}
	return nil
}

func extractContextAttributes(ctx context.Context) []any {
	var attrs []any
	for _, key := range []ContextKey{RunIDKey, ComponentKey, OperationKey, LocationKey, MetricKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// WithRunID adds a pipeline run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// WithLocation adds a location filter to the context.
func WithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, LocationKey, location)
}

// WithMetric adds a metric name to the context.
func WithMetric(ctx context.Context, metric string) context.Context {
	return context.WithValue(ctx, MetricKey, metric)
}

// RunID extracts the run ID from context, or "" when unset.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(RunIDKey).(string); ok {
		return v
	}
	return ""
}
