package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/gommon/log"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		user := "-"
		if u := UserFromContext(r.Context()); u != nil {
			user = u.ID
		}
		duration := time.Since(start)
		line := "method=%s path=%s status=%d duration=%s bytes=%d ip=%s user=%s user_agent=%q"
		args := []any{r.Method, r.URL.Path, wrapped.statusCode, duration, wrapped.written, ClientIP(r, false), user, r.UserAgent()}
		if wrapped.statusCode >= http.StatusInternalServerError {
			log.Errorf(line, args...)
			return
		}
		log.Infof(line, args...)
	})
}
