// Package ctxutil carries request-scoped values: the signed-in account and
// the request id.
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ownerKey ctxKey = iota
	requestIDKey
)

// WithOwner stores the signed-in account in ctx.
func WithOwner(ctx context.Context, owner uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromCtx returns the signed-in account. ok is false when none is set
// or the stored id is uuid.Nil.
func OwnerFromCtx(ctx context.Context) (owner uuid.UUID, ok bool) {
	owner, _ = ctx.Value(ownerKey).(uuid.UUID)
	return owner, owner != uuid.Nil
}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx returns the request id, or "" if absent.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LogAttrs returns the request id and owner held in ctx as log attributes.
// Absent values are omitted.
func LogAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := RequestIDFromCtx(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if owner, ok := OwnerFromCtx(ctx); ok {
		attrs = append(attrs, slog.String("user_id", owner.String()))
	}
	return attrs
}
