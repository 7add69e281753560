package mcp

import "context"

type progressContextKey struct{}

type progressState struct {
	token string
}

func withProgressToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, progressContextKey{}, progressState{token: token})
}

func progressTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if state, ok := ctx.Value(progressContextKey{}).(progressState); ok && state.token != "" {
		return state.token, true
	}
	return "", false
}

type cancelTokenContextKey struct{}

// withCancelToken attaches a cooperative cancellation token to a handler
// context.
func withCancelToken(ctx context.Context, token CancelToken) context.Context {
	return context.WithValue(ctx, cancelTokenContextKey{}, token)
}

// CancelTokenFromContext retrieves the request's cooperative cancellation
// token. Handlers that ignore it simply run to completion.
func CancelTokenFromContext(ctx context.Context) (CancelToken, bool) {
	if ctx == nil {
		return CancelToken{}, false
	}
	token, ok := ctx.Value(cancelTokenContextKey{}).(CancelToken)
	return token, ok
}
