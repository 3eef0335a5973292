// Package retry provides an exponential-backoff retry harness with
// explicit transient-error classification.
package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"time"

	"github.com/trust-scanner/internal/logging"
)

// Class tags an error as retryable or fatal.
type Class int

const (
	// ClassFatal marks errors that must not be retried.
	ClassFatal Class = iota
	// ClassRetryable marks transient errors worth another attempt.
	ClassRetryable
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Total attempts including the first
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the backoff delay
	Multiplier   float64       // Backoff multiplier
}

// DefaultConfig returns the RPC retry discipline: 3 attempts total with
// 1s, 2s backoff between them (4s cap).
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}
}

// Classifier decides whether an error is worth retrying.
type Classifier func(error) Class

// Do executes fn until it succeeds, exhausts attempts, hits a fatal error,
// or the context is cancelled. The classifier decides retryability; a nil
// classifier uses Classify.
func Do(ctx context.Context, cfg *Config, classify Classifier, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if classify == nil {
		classify = Classify
	}
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if classify(err) == ClassFatal {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("transient failure, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func backoffDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// transientMarkers are substrings of provider and socket errors that
// indicate a transient condition.
var transientMarkers = []string{
	"429",
	"too many requests",
	"502",
	"bad gateway",
	"503",
	"service unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"eof",
	"no such host",
	"request timed out",
}

// Classify tags RPC and socket errors. HTTP 429/502/503, connection
// resets, timeouts, and DNS failures are retryable; everything else
// (bad requests, decoding failures) fails fast.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassRetryable
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return ClassRetryable
		}
	}
	return ClassFatal
}
