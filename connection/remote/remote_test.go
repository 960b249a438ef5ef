package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/on-the-ground/cliser/connection/memdb"
	"github.com/on-the-ground/cliser/connection/remote"
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	backend, err := memdb.New()
	require.NoError(t, err)
	srv := httptest.NewServer(remote.NewHandler(backend, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client := remote.NewClient(newServer(t).URL)
	users := collection.Ref("users", "remote")

	res, err := client.Dispatch(ctx, users.InsertMany([]any{
		map[string]any{"name": "ada"},
		map[string]any{"name": "alan"},
	}))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, float64(2), res.Value)

	res, err = client.Dispatch(ctx, users.FindOne(collection.Where{"name": "alan"}, nil, nil))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, map[string]any{"name": "alan"}, res.Value)

	res, err = client.Dispatch(ctx, users.Count(nil))
	require.NoError(t, err)
	assert.Equal(t, float64(2), res.Value)
}

func TestClient_FunctionsDoNotCrossTheWire(t *testing.T) {
	client := remote.NewClient(newServer(t).URL)

	_, err := client.Dispatch(context.Background(), collection.Ref("users", "remote").Count(func(any) bool { return true }))
	assert.ErrorIs(t, err, remote.ErrNotSerializable)
}

func TestClient_BadRequestIsNotRetried(t *testing.T) {
	client := remote.NewClient(newServer(t).URL, remote.WithRetry(3, time.Millisecond))

	_, err := client.Dispatch(context.Background(), collection.Ref("users", "remote").Call("explode"))
	assert.ErrorIs(t, err, remote.ErrRemote)
	assert.Contains(t, err.Error(), "unsupported action")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(remote.Response{Error: "busy"})
			return
		}
		_ = json.NewEncoder(w).Encode(remote.Response{Result: "ok"})
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, remote.WithRetry(3, time.Millisecond))
	res, err := client.Dispatch(context.Background(), collection.Ref("x", "remote").Count(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimit(t *testing.T) {
	client := remote.NewClient(newServer(t).URL, remote.WithRateLimit(rate.Every(50*time.Millisecond), 1))
	c := collection.Ref("x", "remote")

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Dispatch(context.Background(), c.Count(nil))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestHandler_RejectsMalformedRequests(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClient_BehindStore(t *testing.T) {
	s := store.New(store.WithConnection("remote", remote.NewClient(newServer(t).URL)))
	defer s.Close()
	todos := collection.New("todos", collection.WithStorage("remote"))

	changes := make(chan collection.Change, 1)
	s.Subscribe(func(_ context.Context, payload any) {
		changes <- payload.(collection.Change)
	})

	done := make(chan any, 1)
	s.Dispatch(context.Background(), todos.InsertOne("ship it"), nil,
		store.OnSuccess(func(v any) { done <- v }),
		store.OnError(func(err error) { t.Error(err) }),
	)
	select {
	case v := <-done:
		assert.Equal(t, float64(1), v)
	case <-time.After(time.Second):
		t.Fatal("remote dispatch did not settle")
	}
	assert.Equal(t, collection.ActionInsertOne, (<-changes).Action)
}
