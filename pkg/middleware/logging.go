package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/constants"
)

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

func getRequestID(r *http.Request, conf *configuration.Configuration) string {
	if len(r.Header.Get(conf.RequestIDHeader)) > 0 {
		return r.Header.Get(conf.RequestIDHeader)
	}
	return uuid.New().String()
}

// RequestID returns the request id injected by WithLogger, or "" when the
// request did not pass through it.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(constants.RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// UseLogger returns the per-request entry injected by WithLogger. Falls back
// to a bare logger so call sites never receive nil.
func UseLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithLogger(logger *logrus.Logger) mux.MiddlewareFunc {
	conf := configuration.Use()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := getRequestID(r, conf)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"path":       r.RequestURI,
				"method":     r.Method,
			})

			ctx := context.WithValue(r.Context(), constants.LoggerKey, fieldsLogger)
			ctx = context.WithValue(ctx, constants.RequestIDKey, requestID)

			wrapped := &responseCaptureWriter{ResponseWriter: w}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			fieldsLogger.WithFields(logrus.Fields{
				"status":   wrapped.Status(),
				"duration": time.Since(start).String(),
			}).Info("request completed")
		})
	}
}
