package middlewares

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AccessLog writes one line per request to logger. Requests are reported
// by route pattern, never by path, so link tokens stay out of the log.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&accessLogFormatter{logger: logger})
}

type accessLogFormatter struct {
	logger *slog.Logger
}

func (f *accessLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &accessLogEntry{logger: f.logger, r: r}
}

type accessLogEntry struct {
	logger *slog.Logger
	r      *http.Request
}

func (e *accessLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	e.logger.Log(e.r.Context(), level, "http request",
		"method", e.r.Method,
		"route", routeOf(e.r),
		"status", status,
		"bytes", bytes,
		"duration_ms", elapsed.Milliseconds(),
		"request_id", middleware.GetReqID(e.r.Context()),
		"remote_ip", e.r.RemoteAddr,
	)
}

func (e *accessLogEntry) Panic(v interface{}, stack []byte) {
	e.logger.ErrorContext(e.r.Context(), "http handler panic",
		"method", e.r.Method,
		"route", routeOf(e.r),
		"panic", fmt.Sprint(v),
		"stack", string(stack),
	)
}

// routeOf is read after the handler ran, when chi has filled in the
// matched pattern.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return "unmatched"
}
