package obscontext

import "context"

type requestIDKey struct{}
type memberIDKey struct{}
type clientMetaKey struct{}

// ClientMeta carries best-effort client capture data for audit trails.
type ClientMeta struct {
	IPAddress   string
	UserAgent   string
	Fingerprint string
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or empty when unset.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// WithMemberID stores the acting member ID in the context.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, memberIDKey{}, memberID)
}

// MemberIDFromContext returns the acting member ID, or empty when unset.
func MemberIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(memberIDKey{}).(string); ok {
		return value
	}
	return ""
}

// WithClientMeta stores client capture metadata in the context.
func WithClientMeta(ctx context.Context, meta ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey{}, meta)
}

// ClientMetaFromContext returns captured client metadata, if present.
func ClientMetaFromContext(ctx context.Context) (ClientMeta, bool) {
	if ctx == nil {
		return ClientMeta{}, false
	}
	meta, ok := ctx.Value(clientMetaKey{}).(ClientMeta)
	return meta, ok
}
