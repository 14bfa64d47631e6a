package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = contextKey("request_id")

	maxRequestIDLen = 128
)

// RequestIDFromContext returns the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID tags each request with the caller's X-Request-ID, or a new UUID when the header is
// missing or not a short printable token, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// RequestFields returns the log fields that identify a request: its id plus the user and session
// it addresses. Route params are only known once chi has routed the request.
func RequestFields(r *http.Request) []zap.Field {
	var fields []zap.Field
	if id := RequestIDFromContext(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if userID := rctx.URLParam("userID"); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if sessionID := rctx.URLParam("sessionID"); sessionID != "" {
			fields = append(fields, zap.String("session_id", sessionID))
		}
	}
	return fields
}
