package collection

// Action is a data-access request produced by a Collection.
type Action struct {
	Name       string
	Collection *Collection
	Args       []any
}

// Arg returns the i-th argument, nil when absent.
func (a Action) Arg(i int) any {
	if i < 0 || i >= len(a.Args) {
		return nil
	}
	return a.Args[i]
}

// Mutates reports whether the action name is one of the writing actions.
func (a Action) Mutates() bool {
	switch a.Name {
	case ActionInsertOne, ActionInsertMany,
		ActionUpdateOne, ActionUpdateMany,
		ActionRemoveOne, ActionRemoveMany:
		return true
	}
	return false
}
