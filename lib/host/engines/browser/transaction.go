//go:build js && wasm

package browser

import (
	"sync"
	"syscall/js"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
)

// --------------------------------------------------------------------------
// Transaction (implements host.Transaction and host.UpgradeTransaction)
// --------------------------------------------------------------------------

// transaction wraps an IDBTransaction. Failed requests call preventDefault
// so that, like on the other engines, only Abort rolls a transaction back.
type transaction struct {
	conn *connection
	raw  js.Value
	mode host.Mode

	once     sync.Once
	done     chan struct{}
	err      error
	handlers handlerSet
}

func newTransaction(conn *connection, raw js.Value, mode host.Mode) *transaction {
	tx := &transaction{
		conn: conn,
		raw:  raw,
		mode: mode,
		done: make(chan struct{}),
	}
	conn.track()
	tx.handlers.on(raw, "complete", func(js.Value) {
		tx.finish(nil)
	})
	tx.handlers.on(raw, "abort", func(js.Value) {
		err := raw.Get("error")
		if err.IsNull() || err.IsUndefined() {
			tx.finish(host.NewError(host.NameAbort, "the transaction was aborted"))
			return
		}
		tx.finish(host.Wrap(host.NameAbort, errorFromJS(err), "the transaction was aborted"))
	})
	return tx
}

func (tx *transaction) finish(err error) {
	tx.once.Do(func() {
		tx.err = err
		tx.handlers.release()
		tx.conn.untrack()
		if err != nil {
			Logger.Debugf("%s transaction aborted: %v", tx.mode, err)
		}
		close(tx.done)
	})
}

func (tx *transaction) Mode() host.Mode {
	return tx.mode
}

func (tx *transaction) Stores() []string {
	return stringList(tx.raw.Get("objectStoreNames"))
}

func (tx *transaction) ObjectStore(name string) (host.ObjectStore, error) {
	raw, err := jsCall(tx.raw, "objectStore", name)
	if err != nil {
		return nil, err
	}
	return &objectStore{tx: tx, raw: raw}, nil
}

func (tx *transaction) Commit() error {
	if tx.raw.Get("commit").IsUndefined() {
		return nil // committed automatically once no request is pending
	}
	_, err := jsCall(tx.raw, "commit")
	return err
}

func (tx *transaction) Abort() error {
	_, err := jsCall(tx.raw, "abort")
	return err
}

func (tx *transaction) Done() <-chan struct{} {
	return tx.done
}

func (tx *transaction) Err() error {
	<-tx.done
	return tx.err
}

func (tx *transaction) CreateObjectStore(name string, opts host.StoreOptions) (host.ObjectStore, error) {
	params := map[string]any{"autoIncrement": opts.AutoIncrement}
	if opts.KeyPath != "" {
		params["keyPath"] = opts.KeyPath
	}
	raw, err := jsCall(tx.conn.raw, "createObjectStore", name, params)
	if err != nil {
		return nil, err
	}
	return &objectStore{tx: tx, raw: raw}, nil
}

func (tx *transaction) DeleteObjectStore(name string) error {
	_, err := jsCall(tx.conn.raw, "deleteObjectStore", name)
	return err
}

// request bridges an IDBRequest to a host.Request. onError may replace the
// error of a failed request; it must settle req itself when it returns true.
func (tx *transaction) request(raw js.Value, convert func(js.Value) (any, error), onError func(req *host.Request, err error) bool) *host.Request {
	req := host.NewRequest()
	tx.handlers.on(raw, "success", func(js.Value) {
		v, err := convert(raw.Get("result"))
		if err != nil {
			req.Reject(err)
			return
		}
		req.Resolve(v)
	})
	tx.handlers.on(raw, "error", func(event js.Value) {
		event.Call("preventDefault")
		event.Call("stopPropagation")
		err := errorFromJS(raw.Get("error"))
		if onError != nil && onError(req, err) {
			return
		}
		req.Reject(err)
	})
	return req
}

// --------------------------------------------------------------------------
// Object store (implements host.ObjectStore)
// --------------------------------------------------------------------------

type objectStore struct {
	tx  *transaction
	raw js.Value
}

func (s *objectStore) Name() string {
	return s.raw.Get("name").String()
}

func (s *objectStore) KeyPath() string {
	kp := s.raw.Get("keyPath")
	if kp.Type() != js.TypeString {
		return ""
	}
	return kp.String()
}

func (s *objectStore) AutoIncrement() bool {
	return s.raw.Get("autoIncrement").Bool()
}

func (s *objectStore) IndexNames() []string {
	return stringList(s.raw.Get("indexNames"))
}

func (s *objectStore) Index(name string) (host.Index, error) {
	raw, err := jsCall(s.raw, "index", name)
	if err != nil {
		return nil, err
	}
	return &index{store: s, raw: raw}, nil
}

func (s *objectStore) CreateIndex(name, keyPath string, opts host.IndexOptions) (host.Index, error) {
	params := map[string]any{"unique": opts.Unique, "multiEntry": opts.MultiEntry}
	raw, err := jsCall(s.raw, "createIndex", name, keyPath, params)
	if err != nil {
		return nil, err
	}
	return &index{store: s, raw: raw}, nil
}

func (s *objectStore) Add(value any, key host.Key) *host.Request {
	return s.write("add", value, key)
}

func (s *objectStore) Put(value any, key host.Key) *host.Request {
	return s.write("put", value, key)
}

func (s *objectStore) write(method string, value any, key host.Key) *host.Request {
	record, err := codec.Clone(value)
	if err != nil {
		return host.Rejected(host.Wrap(host.NameData, err, "the value cannot be cloned"))
	}
	args := []any{toJSValue(record)}
	if key != nil {
		if key, err = host.NormalizeKey(key); err != nil {
			return host.Rejected(err)
		}
		args = append(args, toJSKey(key))
	} else if kp := s.KeyPath(); kp != "" {
		key, _ = host.ExtractKey(record, kp)
	}

	raw, err := jsCall(s.raw, method, args...)
	if err != nil {
		return host.Rejected(err)
	}

	var onError func(*host.Request, error) bool
	if method == "add" && key != nil {
		onError = func(req *host.Request, err error) bool {
			return s.classifyConstraint(req, err, key)
		}
	}
	return s.tx.request(raw, fromJSKey, onError)
}

// classifyConstraint distinguishes a primary key collision from a unique
// index violation, which the platform reports with the same error name.
func (s *objectStore) classifyConstraint(req *host.Request, err error, key host.Key) bool {
	if !host.IsName(err, host.NameConstraint) {
		return false
	}
	countReq, callErr := jsCall(s.raw, "count", toJSKey(key))
	if callErr != nil {
		return false
	}
	s.tx.handlers.on(countReq, "success", func(js.Value) {
		if countReq.Get("result").Int() > 0 {
			req.Reject(host.Wrap(host.NameConstraint, host.ErrKeyExists,
				"a record with key %v already exists in object store %q", key, s.Name()))
			return
		}
		req.Reject(err)
	})
	s.tx.handlers.on(countReq, "error", func(event js.Value) {
		event.Call("preventDefault")
		req.Reject(err)
	})
	return true
}

func (s *objectStore) Get(key host.Key) *host.Request {
	return s.keyRequest("get", key, convertValue)
}

func (s *objectStore) GetAll() *host.Request {
	raw, err := jsCall(s.raw, "getAll")
	if err != nil {
		return host.Rejected(err)
	}
	return s.tx.request(raw, convertValues, nil)
}

func (s *objectStore) Delete(key host.Key) *host.Request {
	return s.keyRequest("delete", key, convertNothing)
}

func (s *objectStore) Count() *host.Request {
	raw, err := jsCall(s.raw, "count")
	if err != nil {
		return host.Rejected(err)
	}
	return s.tx.request(raw, convertCount, nil)
}

func (s *objectStore) Clear() *host.Request {
	raw, err := jsCall(s.raw, "clear")
	if err != nil {
		return host.Rejected(err)
	}
	return s.tx.request(raw, convertNothing, nil)
}

func (s *objectStore) OpenCursor() *host.Request {
	return openCursor(s.tx, s.raw)
}

func (s *objectStore) keyRequest(method string, key host.Key, convert func(js.Value) (any, error)) *host.Request {
	return keyRequest(s.tx, s.raw, method, key, convert)
}

// --------------------------------------------------------------------------
// Index (implements host.Index)
// --------------------------------------------------------------------------

type index struct {
	store *objectStore
	raw   js.Value
}

func (i *index) Name() string {
	return i.raw.Get("name").String()
}

func (i *index) KeyPath() string {
	kp := i.raw.Get("keyPath")
	if kp.Type() != js.TypeString {
		return ""
	}
	return kp.String()
}

func (i *index) Unique() bool {
	return i.raw.Get("unique").Bool()
}

func (i *index) MultiEntry() bool {
	return i.raw.Get("multiEntry").Bool()
}

func (i *index) Get(key host.Key) *host.Request {
	return keyRequest(i.store.tx, i.raw, "get", key, convertValue)
}

func (i *index) GetAll(key host.Key) *host.Request {
	return keyRequest(i.store.tx, i.raw, "getAll", key, convertValues)
}

func (i *index) Count() *host.Request {
	raw, err := jsCall(i.raw, "count")
	if err != nil {
		return host.Rejected(err)
	}
	return i.store.tx.request(raw, convertCount, nil)
}

func (i *index) OpenCursor() *host.Request {
	return openCursor(i.store.tx, i.raw)
}

// --------------------------------------------------------------------------
// Cursor (implements host.Cursor)
// --------------------------------------------------------------------------

// cursorStream receives every success event of one openCursor request and
// settles the request that is currently waiting for the next position.
type cursorStream struct {
	tx      *transaction
	pending *host.Request
}

type cursor struct {
	stream     *cursorStream
	raw        js.Value
	key        host.Key
	primaryKey host.Key
	value      any
}

func openCursor(tx *transaction, source js.Value) *host.Request {
	raw, err := jsCall(source, "openCursor")
	if err != nil {
		return host.Rejected(err)
	}
	stream := &cursorStream{tx: tx, pending: host.NewRequest()}
	tx.handlers.on(raw, "success", func(js.Value) {
		res := raw.Get("result")
		if res.IsNull() || res.IsUndefined() {
			stream.pending.Resolve(nil)
			return
		}
		c := &cursor{stream: stream, raw: res, value: fromJSValue(res.Get("value"))}
		if c.key, err = fromJSKey(res.Get("key")); err != nil {
			stream.pending.Reject(err)
			return
		}
		if c.primaryKey, err = fromJSKey(res.Get("primaryKey")); err != nil {
			stream.pending.Reject(err)
			return
		}
		stream.pending.Resolve(c)
	})
	tx.handlers.on(raw, "error", func(event js.Value) {
		event.Call("preventDefault")
		stream.pending.Reject(errorFromJS(raw.Get("error")))
	})
	return stream.pending
}

func (c *cursor) Key() host.Key {
	return c.key
}

func (c *cursor) PrimaryKey() host.Key {
	return c.primaryKey
}

func (c *cursor) Value() any {
	return c.value
}

func (c *cursor) Continue() *host.Request {
	next := host.NewRequest()
	previous := c.stream.pending
	c.stream.pending = next
	if _, err := jsCall(c.raw, "continue"); err != nil {
		c.stream.pending = previous
		return host.Rejected(err)
	}
	return next
}

// --------------------------------------------------------------------------
// Result conversion
// --------------------------------------------------------------------------

func keyRequest(tx *transaction, source js.Value, method string, key host.Key, convert func(js.Value) (any, error)) *host.Request {
	k, err := host.NormalizeKey(key)
	if err != nil {
		return host.Rejected(err)
	}
	raw, err := jsCall(source, method, toJSKey(k))
	if err != nil {
		return host.Rejected(err)
	}
	return tx.request(raw, convert, nil)
}

func convertValue(v js.Value) (any, error) {
	return fromJSValue(v), nil
}

func convertValues(v js.Value) (any, error) {
	out := make([]any, v.Length())
	for i := range out {
		out[i] = fromJSValue(v.Index(i))
	}
	return out, nil
}

func convertCount(v js.Value) (any, error) {
	return v.Int(), nil
}

func convertNothing(js.Value) (any, error) {
	return nil, nil
}
