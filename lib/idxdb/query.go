package idxdb

import (
	"context"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// QueryKind selects how Get looks records up
type QueryKind int

const (
	QueryAll     QueryKind = iota // all records in ascending key order
	QueryByKey                    // point lookup by primary key
	QueryByIndex                  // lookup through a secondary index
)

// Query is the argument of QueryAdapter.Get. Use All, ByKey or ByIndex.
type Query struct {
	Kind  QueryKind
	Index string
	Key   host.Key
}

// All matches every record of the store
func All() Query {
	return Query{Kind: QueryAll}
}

// ByKey matches the record stored under key
func ByKey(key host.Key) Query {
	return Query{Kind: QueryByKey, Key: key}
}

// ByIndex matches the first record whose key in the named index equals value
func ByIndex(index string, value host.Key) Query {
	return Query{Kind: QueryByIndex, Index: index, Key: value}
}

// Handler is invoked by Cursor once per record. The next record is only
// fetched after the handler returned.
type Handler func(ctx context.Context, record any) (any, error)

// --------------------------------------------------------------------------
// Query Adapter
// --------------------------------------------------------------------------

// QueryAdapter runs read operations against one connection.
type QueryAdapter struct {
	conn host.Database
}

// NewQueryAdapter creates a query adapter for conn
func NewQueryAdapter(conn host.Database) *QueryAdapter {
	return &QueryAdapter{conn: conn}
}

// Get resolves q against the target store. QueryAll returns a []any,
// QueryByKey and QueryByIndex return the record or nil if there is none.
func (q *QueryAdapter) Get(ctx context.Context, query Query, target Target) (result any, err error) {
	target = target.withDefaultMode(host.ModeReadOnly)
	details := target.details()
	details["query"] = query

	start := time.Now()
	defer func() { observe("get", target.Store, start, err) }()

	if !q.conn.HasStore(target.Store) {
		return nil, noSuchStore(target.Store, details)
	}

	tx, err := q.conn.Transaction([]string{target.Store}, target.Mode)
	if err != nil {
		return nil, FromHost(err, details)
	}
	store, err := tx.ObjectStore(target.Store)
	if err != nil {
		abort(tx)
		return nil, FromHost(err, details)
	}

	var req *host.Request
	switch query.Kind {
	case QueryAll:
		req = store.GetAll()
	case QueryByKey:
		req = store.Get(query.Key)
	case QueryByIndex:
		idx, err := store.Index(query.Index)
		if err != nil {
			abort(tx)
			return nil, wrapFailure(err, "the index could not be opened", details)
		}
		req = idx.Get(query.Key)
	default:
		abort(tx)
		return nil, NewError(CodeUnknown, "unknown query kind", details, nil)
	}

	result, err = await(ctx, req)
	if err != nil {
		abort(tx)
		return nil, wrapFailure(err, "the records could not be read", details)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, wrapFailure(err, "the records could not be read", details)
	}
	return result, nil
}

// Cursor iterates the target store in primary key order, or in the order of
// the named index if index is not empty, and calls handler for every record.
// It returns the result of the last invocation (nil for an empty store).
// A handler error stops the iteration and is returned as is.
//
// The transaction stays open while the handler runs, so the handler must not
// wait for a write to the iterated store.
func (q *QueryAdapter) Cursor(ctx context.Context, handler Handler, index string, target Target) (result any, err error) {
	target = target.withDefaultMode(host.ModeReadOnly)
	details := target.details()
	details["index"] = index

	start := time.Now()
	defer func() { observe("cursor", target.Store, start, err) }()

	if handler == nil {
		handler = func(_ context.Context, record any) (any, error) { return record, nil }
	}
	if !q.conn.HasStore(target.Store) {
		return nil, noSuchStore(target.Store, details)
	}

	tx, err := q.conn.Transaction([]string{target.Store}, target.Mode)
	if err != nil {
		return nil, FromHost(err, details)
	}
	store, err := tx.ObjectStore(target.Store)
	if err != nil {
		abort(tx)
		return nil, FromHost(err, details)
	}

	var req *host.Request
	if index != "" {
		idx, err := store.Index(index)
		if err != nil {
			abort(tx)
			return nil, wrapFailure(err, "the index could not be opened", details)
		}
		req = idx.OpenCursor()
	} else {
		req = store.OpenCursor()
	}

	for {
		v, err := await(ctx, req)
		if err != nil {
			abort(tx)
			return nil, wrapFailure(err, "the cursor failed", details)
		}
		if v == nil {
			break
		}
		cursor := v.(host.Cursor)
		if result, err = handler(ctx, cursor.Value()); err != nil {
			abort(tx)
			return nil, err
		}
		req = cursor.Continue()
	}

	if err := commit(ctx, tx); err != nil {
		return nil, wrapFailure(err, "the cursor failed", details)
	}
	return result, nil
}
