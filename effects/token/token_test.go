package token_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/on-the-ground/cliser/effects/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_CancelIsMonotonic(t *testing.T) {
	tk := token.New(nil)
	assert.False(t, tk.Cancelled())

	tk.Cancel()
	assert.True(t, tk.Cancelled())

	tk.Cancel()
	assert.True(t, tk.Cancelled())
}

func TestToken_ParentCancellationIsObservedLazily(t *testing.T) {
	root := token.New(nil)
	child := root.Child()
	grandChild := child.Child()

	require.False(t, grandChild.Cancelled())

	root.Cancel()
	assert.True(t, child.Cancelled())
	assert.True(t, grandChild.Cancelled())
}

func TestToken_ChildCancellationDoesNotLeakUpward(t *testing.T) {
	root := token.New(nil)
	child := root.Child()
	sibling := root.Child()

	child.Cancel()
	assert.True(t, child.Cancelled())
	assert.False(t, root.Cancelled())
	assert.False(t, sibling.Cancelled())
}

func TestToken_SettleKeepsFirstResult(t *testing.T) {
	tk := token.New(nil)
	assert.False(t, tk.Settled())

	tk.Settle(1)
	time.Sleep(time.Millisecond)
	tk.Settle(2)

	assert.True(t, tk.Settled())
	assert.Equal(t, 1, tk.Result())
	assert.True(t, tk.Span().Duration() >= 0)
	assert.NotEmpty(t, tk.ID())
}

func TestToken_AncestorCancelPropagatesForAllDepths(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every descendant of a cancelled ancestor is cancelled", prop.ForAll(
		func(depth, cancelAt int) bool {
			chain := []*token.Token{token.New(nil)}
			for i := 1; i <= depth; i++ {
				chain = append(chain, chain[i-1].Child())
			}
			cancelAt = cancelAt % len(chain)
			for i := range chain {
				if chain[i].Cancelled() {
					return false
				}
			}
			chain[cancelAt].Cancel()
			for i, tk := range chain {
				if (i >= cancelAt) != tk.Cancelled() {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
