package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/on-the-ground/cliser/connection/sqlite"
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestConnection(t *testing.T) *sqlite.Connection {
	t.Helper()
	conn, err := sqlite.Open(filepath.Join(t.TempDir(), "cliser.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	assert.Error(t, err)
}

func TestConnection_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)
	users := collection.Ref("users", "db")

	res, err := conn.Dispatch(ctx, users.InsertMany([]any{
		map[string]any{"name": "ada", "age": 36},
		map[string]any{"name": "alan", "age": 41},
	}))
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 2, res.Value)

	res, err = conn.Dispatch(ctx, users.FindOne(collection.Where{"name": "alan"}, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "alan", "age": float64(41)}, res.Value)

	res, err = conn.Dispatch(ctx, users.UpdateMany(nil, func(item any) any {
		doc := item.(map[string]any)
		doc["age"] = doc["age"].(float64) + 1
		return doc
	}, false))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)

	res, err = conn.Dispatch(ctx, users.FindMany(collection.Where{"age": 37}, func(item any, _ int) any {
		return item.(map[string]any)["name"]
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, []any{"ada"}, res.Value)

	res, err = conn.Dispatch(ctx, users.RemoveMany(collection.Where{"name": "ada"}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)

	res, err = conn.Dispatch(ctx, users.Count(nil))
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 1, res.Value)
}

func TestConnection_Upsert(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)
	settings := collection.Ref("settings", "db")

	res, err := conn.Dispatch(ctx, settings.UpdateOne(collection.Where{"key": "theme"}, map[string]any{"key": "theme", "value": "dark"}, true))
	require.NoError(t, err)
	assert.True(t, res.Updated)

	res, err = conn.Dispatch(ctx, settings.FindMany(nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"key": "theme", "value": "dark"}}, res.Value)
}

func TestConnection_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cliser.db")

	conn, err := sqlite.Open(path)
	require.NoError(t, err)
	_, err = conn.Dispatch(ctx, collection.Ref("notes", "db").InsertOne("kept"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = sqlite.Open(path)
	require.NoError(t, err)
	defer conn.Close()
	res, err := conn.Dispatch(ctx, collection.Ref("notes", "db").FindMany(nil, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []any{"kept"}, res.Value)
}

func TestConnection_Unsupported(t *testing.T) {
	conn := openTestConnection(t)

	_, err := conn.Dispatch(context.Background(), collection.Ref("notes", "db").Call("vacuum"))
	assert.ErrorIs(t, err, memory.ErrUnsupportedAction)
}
