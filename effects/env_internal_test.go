package effects

import (
	"context"
	"testing"

	"github.com/on-the-ground/cliser/effects/emitter"
	"github.com/on-the-ground/cliser/effects/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDrive_SettledAwaitsAreReleased(t *testing.T) {
	em := emitter.New()
	env, dispose := (&Env{Token: token.New(nil), Subscribe: em.On, Logger: zap.NewNop()}).Scoped()
	defer dispose()

	var result any
	Process(context.Background(), Go(func(_ context.Context, yield Yield) (any, error) {
		for i := 0; ; i++ {
			if yield("tick") == "stop" {
				return i, nil
			}
		}
	}), env, func(v any) { result = v }, nil)

	for range 10000 {
		em.Emit(context.Background(), "tick", nil)
	}
	assert.Equal(t, 1, em.Count("tick"))
	// the sequence itself and its pending signal
	assert.Equal(t, 2, env.disposer.size())

	em.Emit(context.Background(), "tick", "stop")
	assert.Equal(t, 10000, result)
	assert.Equal(t, 0, env.disposer.size())
	assert.Equal(t, 0, em.Count("tick"))
}

func TestWait_SettledGroupIsReleased(t *testing.T) {
	em := emitter.New()
	env, dispose := (&Env{Token: token.New(nil), Subscribe: em.On, Logger: zap.NewNop()}).Scoped()
	defer dispose()

	settled := 0
	for range 100 {
		Process(context.Background(), AnyOf("a", "b"), env, func(any) { settled++ }, nil)
		em.Emit(context.Background(), "a", 1)
	}
	assert.Equal(t, 100, settled)
	assert.Equal(t, 0, env.disposer.size())
	assert.Equal(t, 0, em.Count("b"))
}

func TestDisposer_ReleaseAfterDispose(t *testing.T) {
	d := &disposer{}
	calls := 0
	release := d.add(func() { calls++ })
	d.dispose()
	release()
	d.dispose()
	require.Equal(t, 1, calls)

	d.add(func() { calls++ })
	assert.Equal(t, 2, calls)
}
