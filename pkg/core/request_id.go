package core

import (
	"context"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id when a result leaves the process.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID returns ctx carrying requestID. Workers attach the job id
// and the admin server attaches the id of each HTTP request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the id carried by ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateRequestID generates a new request ID.
// Job ids use the same format so a job and its connection share one id.
func GenerateRequestID() string {
	return uuid.New().String()
}
