// Package effects interprets effect programs.
//
// An effect program is a function whose result, or whose yielded values,
// are descriptors of work rather than the work itself: await a signal, wait
// for a future, run a storage action, wait for a group of effects, fork a
// detached program. Process classifies one descriptor and drives it to
// completion, reporting through success and error continuations.
//
// # Descriptors
//
//   - nil, Value: resolve immediately
//   - func() any: invoked, its result is processed
//   - Signal or a bare string: resolve with the payload of the next emission
//   - Future: resolve with the awaited value
//   - Sequence: stepped until done, each yielded descriptor's result is fed back
//   - collection.Action: routed to the action handler of the Env
//   - Dispatched: a nested program or action dispatched under a child token
//   - Invalidation: dependency keys handed to the dependency recorder
//   - Group: All / Any fan-out over a keyed set of descriptors
//   - Forked: run detached, the caller resumes immediately
//
// # Scheduling
//
// Interpretation is cooperative and logically single threaded. Every step
// runs inside a Loop; futures are awaited on supervised goroutines and resume
// their continuation by re-entering the Loop. Cancellation is observed through
// the governing token at each resume point and silently drops stale
// continuations.
//
// Example:
//
//	program := effects.Go(func(ctx context.Context, yield effects.Yield) (any, error) {
//	    payload := yield(effects.Signal("ping"))
//	    return yield(todos.InsertOne(payload)), nil
//	})
package effects
