package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/models"
	"github.com/trust-scanner/internal/storage"
)

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r.WithContext(logging.WithLogger(r.Context(), logger)))

			logger.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.statusCode,
				"duration": time.Since(start).String(),
				"remote":   r.RemoteAddr,
			}).Info("request handled")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware recovers from panics and returns 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.FromContext(r.Context()).Errorf("panic: %v", err)
				respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal server error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware adds CORS headers to responses.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// HashKey returns the hex SHA-256 of a raw API key. Only the hash is ever
// stored or compared.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyFromContext returns the authenticated API key, or nil outside the
// authenticated subrouter.
func KeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}

// AuthMiddleware authenticates the X-API-Key header against the key store
// and enforces the key's daily quota. Usage is counted per (key, day).
func AuthMiddleware(keys *storage.APIKeyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing X-API-Key header")
				return
			}

			key, err := keys.GetByHash(r.Context(), HashKey(raw))
			if err != nil {
				respondServiceError(w, err)
				return
			}
			if key == nil {
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown API key")
				return
			}

			count, err := keys.RecordUsage(r.Context(), key.ID, time.Now().UTC())
			if err != nil {
				respondServiceError(w, err)
				return
			}
			if count > key.DailyQuota {
				respondError(w, http.StatusTooManyRequests, ErrCodeQuotaExceeded, "daily request quota exceeded")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyContextKey, key)))
		})
	}
}
