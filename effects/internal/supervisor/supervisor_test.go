package supervisor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/on-the-ground/cliser/effects/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSupervisor_RunsAndWaits(t *testing.T) {
	sv := supervisor.New(nil)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, sv.Go(context.Background(), func(context.Context) {
			time.Sleep(10 * time.Millisecond)
			count.Add(1)
		}))
	}
	sv.Wait()
	assert.Equal(t, int32(10), count.Load())
}

func TestSupervisor_ShutdownCancelsChildren(t *testing.T) {
	sv := supervisor.New(nil)

	started := make(chan struct{})
	var cancelled atomic.Bool
	sv.Go(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	sv.Shutdown()
	assert.True(t, cancelled.Load())
	assert.False(t, sv.Go(context.Background(), func(context.Context) {}))
}

func TestSupervisor_ParentCancellationReachesChild(t *testing.T) {
	sv := supervisor.New(nil)
	defer sv.Shutdown()

	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sv.Go(parent, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled")
	}
}

type marker struct{}

func TestSupervisor_ChildContextDropsParentValues(t *testing.T) {
	sv := supervisor.New(nil)

	parent := context.WithValue(context.Background(), marker{}, "step")
	var seen any = "unset"
	sv.Go(parent, func(ctx context.Context) {
		seen = ctx.Value(marker{})
	})
	sv.Wait()
	assert.Nil(t, seen)
}

func TestSupervisor_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sv := supervisor.New(zap.New(core))

	sv.Go(context.Background(), func(context.Context) {
		panic("boom")
	})
	sv.Wait()

	entries := logs.FilterMessage("panic in supervised routine").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}
