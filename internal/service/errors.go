// Package service implements the hop executor and the chain router.
package service

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned when an API key is configured and the
	// descriptor carries a different one.
	ErrUnauthorized = errors.New("invalid API key")

	// ErrTransport wraps failures of an outbound call: dial, proxy, TLS,
	// timeout, HTTP protocol, body decoding or stream reuse.
	ErrTransport = errors.New("transport error")

	// ErrInternal wraps unexpected failures unrelated to the network.
	ErrInternal = errors.New("internal error")
)

// Error classes used as metric labels.
const (
	classTransport = "transport"
	classInternal  = "internal"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the inbound request ID, which is
// propagated to the next relay as X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
