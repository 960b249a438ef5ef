package effects_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/on-the-ground/cliser/effects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_ResumesWithSignalPayload(t *testing.T) {
	h := newHarness(t)

	o := h.process(effects.Go(func(_ context.Context, yield effects.Yield) (any, error) {
		return yield("ping"), nil
	}))
	assert.True(t, o.pending())

	h.emit("ping", 42)
	assert.Equal(t, 42, o.value(t))
}

func TestGo_ChainsYields(t *testing.T) {
	h := newHarness(t)

	o := h.process(effects.Go(func(_ context.Context, yield effects.Yield) (any, error) {
		a := yield(effects.Return(1)).(int)
		b := yield(effects.Task(func(context.Context) (any, error) { return 2, nil })).(int)
		c := yield(effects.AllOf(effects.Return(3), effects.Return(4))).([]any)
		return a + b + c[0].(int) + c[1].(int), nil
	}))
	assert.Equal(t, 10, o.value(t))
}

func TestGo_SynchronousStepsDoNotGrowTheStack(t *testing.T) {
	h := newHarness(t)

	const n = 10000
	o := h.process(effects.Go(func(_ context.Context, yield effects.Yield) (any, error) {
		sum := 0
		for i := 0; i < n; i++ {
			sum += yield(effects.Return(1)).(int)
		}
		return sum, nil
	}))
	assert.Equal(t, n, o.value(t))
}

func TestGo_ErrorsAndPanics(t *testing.T) {
	h := newHarness(t)

	boom := errors.New("boom")
	o := h.process(effects.Go(func(context.Context, effects.Yield) (any, error) {
		return nil, boom
	}))
	assert.ErrorIs(t, o.err(t), boom)

	o = h.process(effects.Go(func(_ context.Context, yield effects.Yield) (any, error) {
		yield(effects.Return(nil))
		panic("bad step")
	}))
	err := o.err(t)
	assert.ErrorIs(t, err, effects.ErrSequencePanic)
	assert.Contains(t, err.Error(), "bad step")
}

func TestGo_YieldedErrorStopsTheBody(t *testing.T) {
	h := newHarness(t)

	unwound := make(chan struct{})
	o := h.process(effects.Go(func(_ context.Context, yield effects.Yield) (any, error) {
		defer close(unwound)
		yield(struct{}{})
		t.Error("body resumed after failed effect")
		return nil, nil
	}))
	assert.ErrorIs(t, o.err(t), effects.ErrInvalidEffect)

	select {
	case <-unwound:
	case <-time.After(time.Second):
		t.Fatal("body was not unwound")
	}
}

func TestGo_CancelledSequenceIsDisposed(t *testing.T) {
	h := newHarness(t)
	scoped, dispose := h.env.Scoped()

	unwound := make(chan struct{})
	o := newOutcome()
	effects.Process(context.Background(), effects.Go(func(_ context.Context, yield effects.Yield) (any, error) {
		defer close(unwound)
		yield("ping")
		t.Error("body resumed after cancellation")
		return nil, nil
	}), scoped, o.onSuccess, o.onError)

	h.env.Token.Cancel()
	h.emit("ping", 1)
	assert.True(t, o.pending())

	dispose()
	select {
	case <-unwound:
	case <-time.After(time.Second):
		t.Fatal("body was not unwound")
	}
	assert.True(t, o.pending())
}

func TestSteps_StateMachine(t *testing.T) {
	h := newHarness(t)

	o := h.process(effects.Steps(
		func(context.Context, any) (any, error) {
			return "ping", nil
		},
		func(_ context.Context, input any) (any, error) {
			return effects.Return(input.(int) + 1), nil
		},
		func(_ context.Context, input any) (any, error) {
			return input.(int) * 2, nil
		},
	))
	h.emit("ping", 20)
	assert.Equal(t, 42, o.value(t))
}

func TestSteps_ErrorAndEmpty(t *testing.T) {
	h := newHarness(t)

	boom := errors.New("boom")
	o := h.process(effects.Steps(func(context.Context, any) (any, error) {
		return nil, boom
	}))
	assert.ErrorIs(t, o.err(t), boom)

	assert.Nil(t, h.process(effects.Steps()).value(t))
}

func TestSteps_CancellationCheckedBeforeEachStep(t *testing.T) {
	h := newHarness(t)

	ran := 0
	o := h.process(effects.Steps(
		func(context.Context, any) (any, error) {
			ran++
			h.env.Token.Cancel()
			return effects.Return(nil), nil
		},
		func(context.Context, any) (any, error) {
			ran++
			return nil, nil
		},
	))
	require.True(t, o.pending())
	assert.Equal(t, 1, ran)
}
