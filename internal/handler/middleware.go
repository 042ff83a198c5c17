// internal/handler/middleware.go
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const authRealm = "campaigns"

// Authenticate requires HTTP Basic credentials matching users.
func Authenticate(users map[string]string) func(http.Handler) http.Handler {
	return middleware.BasicAuth(authRealm, users)
}

// Owner returns the authenticated user. Only valid behind Authenticate.
func Owner(r *http.Request) string {
	user, _, _ := r.BasicAuth()
	return user
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
