package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bytes"
)

// sensitiveFields are field names filtered from logs. Session handles,
// delegated tokens and authorization codes are bearer secrets and must
// never be logged whole.
var sensitiveFields = []string{
	"password",
	"password_hash",
	"token",
	"session_handle",
	"authorization",
	"code",
	"secret",
	"credential",
}

func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logRequest(logger, r)

			ww := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(ww, r)

			statusCode := ww.statusCode
			if statusCode == 0 {
				statusCode = http.StatusOK
			}

			level := slog.LevelInfo
			if statusCode >= 500 {
				level = slog.LevelError
			} else if statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "response",
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.size,
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.size += n
	return n, err
}

func logRequest(logger *slog.Logger, r *http.Request) {
	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	logger.Info("incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"body", filterSensitiveBody(bodyBytes),
	)
}

// filterSensitiveBody masks sensitive fields from a JSON body before it is
// logged.
func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var jsonData interface{}
	if err := json.Unmarshal(body, &jsonData); err != nil {
		bodyStr := string(body)
		lower := strings.ToLower(bodyStr)
		for _, field := range sensitiveFields {
			if strings.Contains(lower, field) {
				return "[FILTERED - contains sensitive data]"
			}
		}
		return bodyStr
	}

	filtered, err := json.Marshal(filterSensitiveJSON(jsonData))
	if err != nil {
		return "[ERROR - failed to marshal filtered JSON]"
	}
	return string(filtered)
}

func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		filtered := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitiveKey(key) {
				filtered[key] = "[FILTERED]"
			} else {
				filtered[key] = filterSensitiveJSON(value)
			}
		}
		return filtered
	case []interface{}:
		filtered := make([]interface{}, len(v))
		for i, item := range v {
			filtered[i] = filterSensitiveJSON(item)
		}
		return filtered
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}
