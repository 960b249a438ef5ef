package deps_test

import (
	"testing"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/deps"
	"github.com/stretchr/testify/assert"
)

func TestSet_RecordsUniqueDependencies(t *testing.T) {
	todos := collection.New("todo")
	users := collection.New("user", collection.WithStorage("db"))
	set := deps.NewSet()

	set.AddDependency(deps.KindCollection, todos)
	set.AddDependency(deps.KindCollection, todos)
	set.AddDependency(deps.KindInvalidate, "todo-list")
	set.AddDependency(deps.KindInvalidate, "todo-list")
	set.AddDependency("unknown", users)

	assert.Equal(t, []*collection.Collection{todos}, set.Collections())
	assert.Equal(t, []any{"todo-list"}, set.Keys())
	assert.True(t, set.Invalidates("todo-list"))
	assert.False(t, set.Invalidates("other"))
}

func TestSet_Affected(t *testing.T) {
	users := collection.New("user", collection.WithStorage("db"))
	set := deps.NewSet()
	set.AddDependency(deps.KindCollection, users)

	assert.True(t, set.Affected(collection.NewChange(users.InsertOne(1), 1)))
	assert.True(t, set.Affected(collection.Change{Collection: collection.Ref("user", "db")}))
	assert.False(t, set.Affected(collection.Change{Collection: collection.Ref("user", "other")}))
	assert.False(t, set.Affected(collection.Change{}))
}

func TestSet_UncomparableKeys(t *testing.T) {
	set := deps.NewSet()

	set.AddDependency(deps.KindInvalidate, []string{"todos", "1"})
	set.AddDependency(deps.KindInvalidate, []string{"todos", "2"})
	set.AddDependency(deps.KindInvalidate, []string{"todos", "1"})
	set.AddDependency(deps.KindInvalidate, map[string]int{"page": 1})
	set.AddDependency(deps.KindInvalidate, "todos")

	assert.Len(t, set.Keys(), 4)
	assert.True(t, set.Invalidates([]string{"todos", "2"}))
	assert.True(t, set.Invalidates(map[string]int{"page": 1}))
	assert.False(t, set.Invalidates([]string{"todos"}))
	assert.False(t, set.Invalidates(nil))
}
