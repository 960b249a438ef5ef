package effects_test

import (
	"context"
	"testing"
	"time"

	"github.com/on-the-ground/cliser/effects"
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/deps"
	"github.com/on-the-ground/cliser/effects/emitter"
	"github.com/on-the-ground/cliser/effects/memory"
	"github.com/on-the-ground/cliser/effects/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// harness wires Process to an emitter and the memory executor, without a
// Store or a Loop.
type harness struct {
	emitter *emitter.Emitter
	deps    *deps.Set
	env     *effects.Env
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{emitter: emitter.New(), deps: deps.NewSet()}
	exec := memory.New()
	h.env = &effects.Env{
		Token:        token.New(nil),
		Subscribe:    h.emitter.On,
		Dependencies: h.deps,
		Logger:       zap.NewNop(),
		HandleAction: func(_ context.Context, action collection.Action, _ *effects.Env, onSuccess func(any), onError func(error)) {
			out, err := exec.Execute(action)
			if err != nil {
				onError(err)
				return
			}
			onSuccess(out.Result)
		},
	}
	h.env.Dispatch = func(ctx context.Context, target, payload any, env *effects.Env, onSuccess func(any), onError func(error)) {
		child := env.WithToken(env.Token.Child())
		if program, ok := target.(effects.Program); ok {
			effects.Process(ctx, program(payload), child, onSuccess, onError)
			return
		}
		effects.Process(ctx, target, child, onSuccess, onError)
	}
	return h
}

func (h *harness) emit(event string, payload any) {
	h.emitter.Emit(context.Background(), event, payload)
}

// outcome collects the single settlement of a Process call.
type outcome struct {
	values chan any
	errs   chan error
}

func newOutcome() *outcome {
	return &outcome{values: make(chan any, 4), errs: make(chan error, 4)}
}

func (o *outcome) onSuccess(v any)   { o.values <- v }
func (o *outcome) onError(err error) { o.errs <- err }
func (o *outcome) pending() bool     { return len(o.values) == 0 && len(o.errs) == 0 }

func (o *outcome) value(t *testing.T) any {
	t.Helper()
	select {
	case v := <-o.values:
		return v
	case err := <-o.errs:
		require.FailNow(t, "unexpected error", err.Error())
	case <-time.After(time.Second):
		require.FailNow(t, "no settlement")
	}
	return nil
}

func (o *outcome) err(t *testing.T) error {
	t.Helper()
	select {
	case v := <-o.values:
		require.FailNow(t, "unexpected value", "%v", v)
	case err := <-o.errs:
		return err
	case <-time.After(time.Second):
		require.FailNow(t, "no settlement")
	}
	return nil
}

func (h *harness) process(descriptor any) *outcome {
	o := newOutcome()
	effects.Process(context.Background(), descriptor, h.env, o.onSuccess, o.onError)
	return o
}
