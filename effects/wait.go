package effects

import (
	"context"
	"sync"

	"github.com/on-the-ground/cliser/effects/token"
)

// wait runs every entry of g under its own child token. Entries still running
// when the group settles are cancelled and their teardowns run.
func wait(ctx context.Context, g Group, env *Env, onSuccess func(any), onError func(error)) {
	results := g.newResults()
	if g.Len() == 0 {
		onSuccess(results)
		return
	}

	d := &disposer{}
	release := env.track(d.dispose)

	var (
		mu      sync.Mutex
		done    bool
		pending = g.Len()
		tokens  = make([]*token.Token, 0, g.Len())
	)

	finish := func() {
		mu.Lock()
		started := tokens
		mu.Unlock()
		for _, tk := range started {
			tk.Cancel()
		}
		d.dispose()
		release()
	}

	settle := func(idx int, value any, err error) {
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		if env.cancelled() {
			done = true
			mu.Unlock()
			finish()
			env.Abandon()
			return
		}
		switch {
		case err != nil:
			done = true
		case g.IsAll():
			g.put(results, idx, value)
			pending--
			done = pending == 0
		default:
			g.put(results, idx, value)
			done = true
		}
		settled := done
		mu.Unlock()

		if !settled {
			return
		}
		finish()
		if err != nil {
			onError(err)
			return
		}
		onSuccess(results)
	}

	for idx, entry := range g.entries {
		child := env.Token.Child()
		mu.Lock()
		stop := done
		if !stop {
			tokens = append(tokens, child)
		}
		mu.Unlock()
		if stop {
			return
		}

		entryEnv := env.WithToken(child).withDisposer(d)
		Process(ctx, entry, entryEnv,
			func(v any) { settle(idx, v, nil) },
			func(err error) { settle(idx, nil, err) },
		)
	}
}
