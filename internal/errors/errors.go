// Package errors provides the error taxonomy for the analytics pipeline:
// typed classification, severity levels, and retry support for the
// network-facing data source. Schema violations are fatal and abort a run;
// unparseable cells never surface here at all (the cleaner coerces them to
// missing), and per-metric column absence is a loud, non-retryable error.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrorType classifies an error for handling decisions.
type ErrorType string

const (
	// ErrorTypeSchema marks mandatory columns absent from input. Fatal.
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeMetricUnavailable marks an analytics call naming a column the
	// dataset does not carry.
	ErrorTypeMetricUnavailable ErrorType = "metric_unavailable"
	// ErrorTypeLoad marks a data source failure (file missing, bad CSV).
	ErrorTypeLoad ErrorType = "load"
	// ErrorTypeExport marks an output write failure.
	ErrorTypeExport ErrorType = "export"
	// ErrorTypeCache marks a cache read/write failure.
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeConfig marks invalid configuration.
	ErrorTypeConfig ErrorType = "config"

	// Retryable types, produced only by the network-facing source.
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeServerError ErrorType = "server_error"

	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ClassifiedError carries an error plus the metadata handlers act on.
type ClassifiedError struct {
	Err       error
	Type      ErrorType
	Severity  Severity
	Retryable bool
	Component string
	Operation string
	Timestamp time.Time
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", ce.Component, ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error { return ce.Err }

// Is matches on error type when the target is also classified.
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return errors.Is(ce.Err, target)
}

// NewSchemaError reports mandatory columns missing from a dataset.
func NewSchemaError(missing []string) *ClassifiedError {
	return &ClassifiedError{
		Err:       fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")),
		Type:      ErrorTypeSchema,
		Severity:  SeverityCritical,
		Component: "validator",
		Operation: "validate",
		Timestamp: time.Now(),
	}
}

// NewMetricUnavailable reports an analytics call against a column the
// dataset does not have.
func NewMetricUnavailable(metric string) *ClassifiedError {
	return &ClassifiedError{
		Err:       fmt.Errorf("metric %q not found in data", metric),
		Type:      ErrorTypeMetricUnavailable,
		Severity:  SeverityMedium,
		Component: "analytics",
		Operation: "lookup",
		Timestamp: time.Now(),
	}
}

// NewLoadError reports a data source failure.
func NewLoadError(op string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      ErrorTypeLoad,
		Severity:  SeverityHigh,
		Component: "source",
		Operation: op,
		Timestamp: time.Now(),
	}
}

// NewExportError reports an output write failure.
func NewExportError(op string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      ErrorTypeExport,
		Severity:  SeverityHigh,
		Component: "exporter",
		Operation: op,
		Timestamp: time.Now(),
	}
}

// NewCacheError reports a cache operation failure.
func NewCacheError(op string, err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      ErrorTypeCache,
		Severity:  SeverityLow,
		Component: "cache",
		Operation: op,
		Timestamp: time.Now(),
	}
}

// NewConfigError reports invalid configuration.
func NewConfigError(err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Type:      ErrorTypeConfig,
		Severity:  SeverityHigh,
		Component: "config",
		Operation: "load",
		Timestamp: time.Now(),
	}
}

// IsSchemaError reports whether err is (or wraps) a schema error.
func IsSchemaError(err error) bool { return isType(err, ErrorTypeSchema) }

// IsMetricUnavailable reports whether err is (or wraps) a
// metric-unavailable error.
func IsMetricUnavailable(err error) bool { return isType(err, ErrorTypeMetricUnavailable) }

func isType(err error, t ErrorType) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}

// Classify analyzes an error from the data source and attaches handling
// metadata. Already-classified errors pass through unchanged.
func Classify(err error, component, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ClassifiedError); ok {
		return ce
	}

	errorType := classifyErrorType(err)
	ce := &ClassifiedError{
		Err:       err,
		Type:      errorType,
		Component: component,
		Operation: operation,
		Timestamp: time.Now(),
	}

	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServerError:
		ce.Severity = SeverityLow
		ce.Retryable = true
	case ErrorTypeSchema:
		ce.Severity = SeverityCritical
	case ErrorTypeConfig:
		ce.Severity = SeverityHigh
	default:
		ce.Severity = SeverityMedium
	}
	return ce
}

func classifyErrorType(err error) ErrorType {
	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}
	if isNetworkError(err) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "server error"),
		strings.Contains(errStr, "internal server"),
		strings.Contains(errStr, "service unavailable"),
		strings.Contains(errStr, "bad gateway"):
		return ErrorTypeServerError
	case strings.Contains(errStr, "config"):
		return ErrorTypeConfig
	default:
		return ErrorTypeUnknown
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"no route to host",
		"network unreachable",
		"dns",
		"resolve",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// RetryPolicy configures Retry.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the source adapter's defaults: three attempts
// with exponential backoff capped at thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
	}
}

// Retry executes fn with exponential backoff, retrying only errors whose
// classification is retryable. The last classified error is returned when
// attempts are exhausted or a non-retryable error occurs.
func Retry(ctx context.Context, logger *slog.Logger, policy RetryPolicy, component, operation string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialDelay
	bo.MaxInterval = policy.MaxDelay
	bo.Reset()

	var lastErr *ClassifiedError
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = Classify(err, component, operation)
		logger.Warn("operation failed",
			"component", component,
			"operation", operation,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error_type", lastErr.Type,
			"retryable", lastErr.Retryable,
			"error", err.Error())

		if !lastErr.Retryable || attempt >= policy.MaxAttempts {
			break
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			break
		}
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("operation failed after retries: %w", lastErr)
}
