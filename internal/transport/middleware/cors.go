package middleware

import (
	"net/http"
	"strings"
)

// CORS returns a middleware enforcing the configured origin allow-list.
// An empty list or "*" allows any origin, which is only appropriate for
// local development.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	origins := map[string]struct{}{}
	allowAll := allowedOrigins == "" || allowedOrigins == "*"
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins[strings.TrimSpace(o)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, allowed := origins[origin]
				if allowAll || allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Trace-ID")
					w.Header().Set("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
