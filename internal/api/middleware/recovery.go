package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/routeprofile/routeprofile/internal/api/models"
)

// Recovery converts a handler panic into a logged 500 problem and marks the
// request span as failed. The panic value never reaches the client.
// http.ErrAbortHandler is re-raised for the server to abort the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				span := trace.SpanFromContext(r.Context())
				span.RecordError(fmt.Errorf("panic: %v", v))
				span.SetStatus(codes.Error, "panic")

				id := GetRequestID(r.Context())
				log.Error().
					Str("request_id", id).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				p := models.NewInternalError(id, "an unexpected error occurred")
				p.Instance = r.URL.Path
				p.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
