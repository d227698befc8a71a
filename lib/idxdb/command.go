package idxdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// Target selects the store and transaction mode of an operation. An empty
// mode selects readonly for queries and readwrite for commands.
type Target struct {
	Store string
	Mode  host.Mode
}

func (t Target) withDefaultMode(mode host.Mode) Target {
	if t.Mode == "" {
		t.Mode = mode
	}
	return t
}

func (t Target) details() Details {
	return Details{"store": t.Store, "mode": t.Mode}
}

// UpdateRequest is the payload of CommandAdapter.Update. Key must be nil for
// stores with a key path.
type UpdateRequest struct {
	Data any
	Key  host.Key
}

// --------------------------------------------------------------------------
// Command Adapter
// --------------------------------------------------------------------------

// CommandAdapter runs write operations against one connection. Every call
// uses its own transaction; the adapter itself holds no other state.
type CommandAdapter struct {
	conn host.Database
}

// NewCommandAdapter creates a command adapter for conn
func NewCommandAdapter(conn host.Database) *CommandAdapter {
	return &CommandAdapter{conn: conn}
}

// Create inserts all records in a single transaction and returns them in
// input order. If any insert fails, nothing is stored.
func (c *CommandAdapter) Create(ctx context.Context, records []any, target Target) (result []any, err error) {
	target = target.withDefaultMode(host.ModeReadWrite)
	details := target.details()
	details["data"] = records

	start := time.Now()
	defer func() { observe("create", target.Store, start, err) }()

	if !c.conn.HasStore(target.Store) {
		return nil, noSuchStore(target.Store, details)
	}
	if len(records) == 0 {
		return nil, NewError(CodeUnknown, "there is no data to store", details, ErrNoData)
	}

	tx, err := c.conn.Transaction([]string{target.Store}, target.Mode)
	if err != nil {
		return nil, FromHost(err, details)
	}
	store, err := tx.ObjectStore(target.Store)
	if err != nil {
		abort(tx)
		return nil, FromHost(err, details)
	}

	reqs := make([]*host.Request, len(records))
	for i, record := range records {
		reqs[i] = store.Add(record, nil)
	}
	if _, err := awaitAll(ctx, reqs); err != nil {
		abort(tx)
		Logger.Debugf("create on %q aborted: %v", target.Store, err)
		return nil, wrapFailure(err, "the records could not be stored", details)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, wrapFailure(err, "the records could not be stored", details)
	}
	return append([]any(nil), records...), nil
}

// Update inserts or replaces one record and returns its key. The key is
// returned normalised, so an int key comes back as float64.
func (c *CommandAdapter) Update(ctx context.Context, req UpdateRequest, target Target) (key host.Key, err error) {
	target = target.withDefaultMode(host.ModeReadWrite)
	details := target.details()
	details["data"] = req.Data
	details["key"] = req.Key

	start := time.Now()
	defer func() { observe("update", target.Store, start, err) }()

	if !c.conn.HasStore(target.Store) {
		return nil, noSuchStore(target.Store, details)
	}

	tx, err := c.conn.Transaction([]string{target.Store}, target.Mode)
	if err != nil {
		return nil, FromHost(err, details)
	}
	store, err := tx.ObjectStore(target.Store)
	if err != nil {
		abort(tx)
		return nil, FromHost(err, details)
	}

	key, err = await(ctx, store.Put(req.Data, req.Key))
	if err != nil {
		abort(tx)
		return nil, wrapFailure(err, "the record could not be updated", details)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, wrapFailure(err, "the record could not be updated", details)
	}
	return key, nil
}

// Delete removes the record stored under key. Deleting a key without a
// record is not an error.
func (c *CommandAdapter) Delete(ctx context.Context, key host.Key, target Target) (err error) {
	target = target.withDefaultMode(host.ModeReadWrite)
	details := target.details()
	details["key"] = key

	start := time.Now()
	defer func() { observe("delete", target.Store, start, err) }()

	if !c.conn.HasStore(target.Store) {
		return noSuchStore(target.Store, details)
	}
	if key == nil {
		return NewError(CodeUnknown, "no key was specified for the deletion", details, ErrNoKey)
	}

	tx, err := c.conn.Transaction([]string{target.Store}, target.Mode)
	if err != nil {
		return FromHost(err, details)
	}
	store, err := tx.ObjectStore(target.Store)
	if err != nil {
		abort(tx)
		return FromHost(err, details)
	}

	if _, err := await(ctx, store.Delete(key)); err != nil {
		abort(tx)
		return wrapFailure(err, "the record could not be deleted", details)
	}
	if err := commit(ctx, tx); err != nil {
		return wrapFailure(err, "the record could not be deleted", details)
	}
	return nil
}

// wrapFailure classifies a failure that occurred after the transaction was
// started.
func wrapFailure(err error, message string, details Details) *Error {
	var idxErr *Error
	if errors.As(err, &idxErr) {
		return idxErr
	}
	return NewError(Classify(err), message, details, err)
}

func noSuchStore(store string, details Details) *Error {
	return NewError(CodeUnknown, fmt.Sprintf("object store %q does not exist", store), details, ErrNoSuchStore)
}
