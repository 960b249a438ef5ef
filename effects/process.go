package effects

import (
	"context"
	"fmt"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/deps"
	"go.uber.org/zap"
)

// Process classifies descriptor and drives it to completion. Exactly one of
// onSuccess and onError is called, unless the governing token is cancelled
// first, in which case neither is.
//
// A nil onError makes errors fatal: they panic in the calling goroutine.
func Process(ctx context.Context, descriptor any, env *Env, onSuccess func(any), onError func(error)) {
	if onSuccess == nil {
		onSuccess = func(any) {}
	}
	if onError == nil {
		onError = func(err error) { panic(err) }
	}

	switch d := descriptor.(type) {
	case nil:
		onSuccess(nil)
	case Value:
		onSuccess(d.V)
	case func() any:
		Process(ctx, d(), env, onSuccess, onError)
	case string:
		awaitSignal(ctx, d, env, onSuccess)
	case Signal:
		awaitSignal(ctx, string(d), env, onSuccess)
	case Future:
		awaitFuture(ctx, d, env, onSuccess, onError)
	case Sequence:
		drive(ctx, d, env, onSuccess, onError)
	case collection.Action:
		env.HandleAction(ctx, d, env, onSuccess, onError)
	case *collection.Action:
		env.HandleAction(ctx, *d, env, onSuccess, onError)
	case Dispatched:
		env.Dispatch(ctx, d.Target, d.Payload, env, onSuccess, onError)
	case Invalidation:
		if env.Dependencies != nil {
			for _, key := range d.Keys {
				env.Dependencies.AddDependency(deps.KindInvalidate, key)
			}
		}
		onSuccess(nil)
	case Group:
		wait(ctx, d, env, onSuccess, onError)
	case Forked:
		fork(ctx, d, env)
		onSuccess(nil)
	default:
		onError(fmt.Errorf("%w: %T", ErrInvalidEffect, descriptor))
	}
}

// awaitSignal subscribes once to event. A delivery observed after
// cancellation is dropped and the enclosing scope torn down.
func awaitSignal(ctx context.Context, event string, env *Env, onSuccess func(any)) {
	fired := false
	var unsubscribe, release func()
	unsubscribe = env.Subscribe(event, func(_ context.Context, payload any) {
		if fired {
			return
		}
		fired = true
		if unsubscribe != nil {
			unsubscribe()
		}
		if release != nil {
			release()
		}
		if env.cancelled() {
			env.Abandon()
			return
		}
		onSuccess(payload)
	})
	release = env.track(unsubscribe)
}

// awaitFuture waits off the loop and resumes on it. The future itself is
// never aborted; a cancelled token only suppresses the continuation.
func awaitFuture(ctx context.Context, f Future, env *Env, onSuccess func(any), onError func(error)) {
	env.spawn(ctx, func(awaitCtx context.Context) {
		value, err := f.Await(awaitCtx)
		env.resume(ctx, func(context.Context) {
			if env.cancelled() {
				env.Abandon()
				return
			}
			if err != nil {
				onError(err)
				return
			}
			onSuccess(value)
		})
	})
}

// fork runs the descriptor under a child token. Failures are logged, never
// reported to the caller.
func fork(ctx context.Context, f Forked, env *Env) {
	child := env
	if env.Token != nil {
		child = env.WithToken(env.Token.Child())
	}
	Process(ctx, f.Effect, child.withDisposer(nil), nil, func(err error) {
		child.logger().Error("forked effect failed", zap.Error(err))
	})
}
