// Package memdb is a transactional in-memory collection connection backed by
// hashicorp/go-memdb.
package memdb

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/on-the-ground/cliser/connection/internal/document"
	"github.com/on-the-ground/cliser/effects/collection"
)

const (
	table           = "records"
	indexID         = "id"
	indexCollection = "collection"
)

// record is one item of one collection. Seq keeps insertion order.
type record struct {
	ID         string
	Collection string
	Seq        uint64
	Value      any
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexCollection: {
						Name:    indexCollection,
						Indexer: &memdb.StringFieldIndex{Field: "Collection"},
					},
				},
			},
		},
	}
}

// Connection keeps the items of every collection routed to it.
type Connection struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

func New() (*Connection, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Connection{db: db}, nil
}

var _ collection.Connection = (*Connection)(nil)

// Dispatch runs action in a single transaction.
func (c *Connection) Dispatch(ctx context.Context, action collection.Action) (collection.Result, error) {
	if err := ctx.Err(); err != nil {
		return collection.Result{}, err
	}
	name := action.Collection.Name()

	txn := c.db.Txn(action.Mutates())
	defer txn.Abort()

	records, err := load(txn, name)
	if err != nil {
		return collection.Result{}, err
	}
	docs := make([]document.Doc, len(records))
	for i, r := range records {
		docs[i] = document.Doc{ID: r.ID, Value: r.Value}
	}

	plan, err := document.PlanAction(docs, action)
	if err != nil {
		return collection.Result{}, err
	}
	if !plan.Updated() {
		return collection.Result{Value: plan.Result}, nil
	}

	byID := make(map[string]*record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	for _, u := range plan.Updates {
		next := *byID[u.ID]
		next.Value = u.Value
		if err := txn.Insert(table, &next); err != nil {
			return collection.Result{}, fmt.Errorf("updating %s: %w", u.ID, err)
		}
	}
	for _, id := range plan.Deletes {
		if err := txn.Delete(table, byID[id]); err != nil {
			return collection.Result{}, fmt.Errorf("deleting %s: %w", id, err)
		}
	}
	for _, v := range plan.Inserts {
		r := &record{ID: uuid.NewString(), Collection: name, Seq: c.seq.Add(1), Value: v}
		if err := txn.Insert(table, r); err != nil {
			return collection.Result{}, fmt.Errorf("inserting into %s: %w", name, err)
		}
	}
	txn.Commit()
	return collection.Result{Value: plan.Result, Updated: true}, nil
}

// Items returns a collection's items in insertion order.
func (c *Connection) Items(name string) ([]any, error) {
	txn := c.db.Txn(false)
	defer txn.Abort()

	records, err := load(txn, name)
	if err != nil {
		return nil, err
	}
	items := make([]any, len(records))
	for i, r := range records {
		items[i] = r.Value
	}
	return items, nil
}

func load(txn *memdb.Txn, name string) ([]*record, error) {
	it, err := txn.Get(table, indexCollection, name)
	if err != nil {
		return nil, err
	}
	var records []*record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		records = append(records, raw.(*record))
	}
	slices.SortFunc(records, func(a, b *record) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return records, nil
}
