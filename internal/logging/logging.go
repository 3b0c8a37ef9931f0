// Package logging builds the server's slog.Logger and its request middleware.
//
// LOG_FORMAT selects json (default) or text. LOG_LEVEL selects debug, info
// (default), warn or error.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// New returns a logger configured from environment variables.
func New() *slog.Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
}

// NewWithWriter is New with explicit output and settings.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Attrs lets inner handlers add attributes to the request log line.
type Attrs struct {
	attrs []any
}

// Add appends key/value pairs.
func (a *Attrs) Add(args ...any) {
	if a != nil {
		a.attrs = append(a.attrs, args...)
	}
}

type attrsKey struct{}

// FromRequest returns the Attrs attached by Requests, or nil.
func FromRequest(r *http.Request) *Attrs {
	a, _ := r.Context().Value(attrsKey{}).(*Attrs)
	return a
}

// Requests logs one line per request once the response is written.
func Requests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			attrs := &Attrs{}
			r = r.WithContext(context.WithValue(r.Context(), attrsKey{}, attrs))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			args = append(args, attrs.attrs...)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request", args...)
		})
	}
}
