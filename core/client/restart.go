package client

import "context"

// RestartFunc is told that a stream attempt failed with a transient error
// after it had already yielded chunks, and that the request is being sent
// again. attempt is the number of the failed attempt, starting at 1.
type RestartFunc func(attempt int, err error)

type restartKey struct{}

// ContextWithRestartHook makes GenerateStream call hook before it restarts a
// request whose chunks already reached the caller. The chunks yielded after
// the call belong to a new answer that starts from the beginning.
func ContextWithRestartHook(ctx context.Context, hook RestartFunc) context.Context {
	return context.WithValue(ctx, restartKey{}, hook)
}

func restartHookFromContext(ctx context.Context) RestartFunc {
	hook, _ := ctx.Value(restartKey{}).(RestartFunc)
	return hook
}
