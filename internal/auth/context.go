package auth

import "context"

type ctxKey string

const sessionKey ctxKey = "auth_session"

// ContextWithSession stores the validated session in the context.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext extracts the validated session, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// SubjectFromContext returns the authenticated identity id.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.Identity.ID == "" {
		return "", false
	}
	return s.Identity.ID, true
}
