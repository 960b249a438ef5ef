package main

import (
	"context"
	"io"

	"github.com/on-the-ground/cliser/effects/collection"
	"go.uber.org/multierr"
)

// router sends actions to the connection registered for their storage id.
type router struct {
	routes   map[string]collection.Connection
	fallback collection.Connection
}

func (r *router) Dispatch(ctx context.Context, action collection.Action) (collection.Result, error) {
	if conn, ok := r.routes[action.Collection.StorageID()]; ok {
		return conn.Dispatch(ctx, action)
	}
	return r.fallback.Dispatch(ctx, action)
}

func (r *router) Close() error {
	var err error
	for _, conn := range r.routes {
		err = multierr.Append(err, closeConnection(conn))
	}
	return multierr.Append(err, closeConnection(r.fallback))
}

// changeSink receives the changes made through a served connection.
type changeSink interface {
	Notify(ctx context.Context, change collection.Change)
}

// notifying reports the updates made through conn to sink.
type notifying struct {
	conn collection.Connection
	sink changeSink
}

func (n *notifying) Dispatch(ctx context.Context, action collection.Action) (collection.Result, error) {
	res, err := n.conn.Dispatch(ctx, action)
	if err == nil && res.Updated {
		n.sink.Notify(ctx, collection.NewChange(action, res.Value))
	}
	return res, err
}

func closeConnection(conn collection.Connection) error {
	if closer, ok := conn.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
