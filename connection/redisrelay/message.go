package redisrelay

import (
	"encoding/json"
	"fmt"

	"github.com/on-the-ground/cliser/effects/collection"
)

// message is the JSON form of a Change on the relay channel.
type message struct {
	Origin     string `json:"origin"`
	Collection string `json:"collection"`
	Storage    string `json:"storage"`
	Action     string `json:"action"`
	Args       []any  `json:"args"`
	Result     any    `json:"result"`
}

// encode drops arguments that have no JSON form, such as filter functions.
func encode(origin string, change collection.Change) ([]byte, error) {
	args := make([]any, len(change.Args))
	for i, a := range change.Args {
		if _, err := json.Marshal(a); err == nil {
			args[i] = a
		}
	}
	result := change.Result
	if _, err := json.Marshal(result); err != nil {
		result = nil
	}
	return json.Marshal(message{
		Origin:     origin,
		Collection: change.Collection.Name(),
		Storage:    change.Collection.StorageID(),
		Action:     change.Action,
		Args:       args,
		Result:     result,
	})
}

func decode(payload string) (origin string, change collection.Change, err error) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return "", collection.Change{}, fmt.Errorf("decode change: %w", err)
	}
	return m.Origin, collection.Change{
		Collection: collection.Ref(m.Collection, m.Storage),
		Action:     m.Action,
		Args:       m.Args,
		Type:       collection.ChangeType,
		Result:     m.Result,
	}, nil
}
