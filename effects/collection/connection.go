package collection

import "context"

// ChangeType is the only notification type a Store produces.
const ChangeType = "change"

// Result is what a Connection reports for one action.
type Result struct {
	Value any
	// Updated makes the Store broadcast a Change for the action.
	Updated bool
}

// Connection executes actions for collections bound to its storage id.
// Dispatch must settle exactly once, either with a result or an error.
type Connection interface {
	Dispatch(ctx context.Context, action Action) (Result, error)
}

// ConnectionFunc adapts a function to Connection.
type ConnectionFunc func(ctx context.Context, action Action) (Result, error)

func (f ConnectionFunc) Dispatch(ctx context.Context, action Action) (Result, error) {
	return f(ctx, action)
}

// Notifier is implemented by connections that learn about changes made
// elsewhere, e.g. by another process.
type Notifier interface {
	Subscribe(notify func(Change)) (unsubscribe func())
}

// Change is the state-change notification broadcast on the wildcard channel
// and on ChannelOf(collection).
type Change struct {
	Collection *Collection
	Action     string
	Args       []any
	Type       string
	Result     any
}

// NewChange builds the notification for an executed action.
func NewChange(action Action, result any) Change {
	return Change{
		Collection: action.Collection,
		Action:     action.Name,
		Args:       action.Args,
		Type:       ChangeType,
		Result:     result,
	}
}

// ChannelOf is the per-collection notification channel name.
func ChannelOf(c *Collection) string {
	return "collection:" + c.Name()
}
