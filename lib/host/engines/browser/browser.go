//go:build js && wasm

package browser

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"syscall/js"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("host/browser")

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// factoryImpl binds the IDBFactory of the JS global scope.
type factoryImpl struct {
	idb js.Value
}

// NewFactory returns a facility backed by the browser's indexedDB object.
func NewFactory() (host.Factory, error) {
	idb := js.Global().Get("indexedDB")
	if idb.IsUndefined() || idb.IsNull() {
		return nil, host.NewError(host.NameInvalidState, "indexedDB is not available in this environment")
	}
	return &factoryImpl{idb: idb}, nil
}

func (f *factoryImpl) Open(ctx context.Context, name string, version uint64, upgrade host.UpgradeFunc) (host.Database, error) {
	var openReq js.Value
	if version == 0 {
		openReq = f.idb.Call("open", name)
	} else {
		openReq = f.idb.Call("open", name, float64(version))
	}

	req := host.NewRequest()
	var (
		upgradeErr error
		handlers   handlerSet
	)
	defer handlers.release()

	handlers.on(openReq, "upgradeneeded", func(event js.Value) {
		raw := openReq.Get("result")
		conn := newConnection(raw)
		tx := newTransaction(conn, openReq.Get("transaction"), host.ModeVersionChange)
		oldVersion := uint64(event.Get("oldVersion").Float())
		newVersion := uint64(event.Get("newVersion").Float())
		if err := runUpgrade(upgrade, tx, oldVersion, newVersion); err != nil {
			upgradeErr = err
			_ = tx.Abort()
		}
	})
	handlers.on(openReq, "success", func(js.Value) {
		conn := newConnection(openReq.Get("result"))
		if !req.Resolve(conn) {
			conn.raw.Call("close") // the caller already gave up
		}
	})
	handlers.on(openReq, "error", func(event js.Value) {
		event.Call("preventDefault")
		err := errorFromJS(openReq.Get("error"))
		if upgradeErr != nil {
			err = host.Wrap(host.NameAbort, upgradeErr, "the upgrade transaction was aborted")
		}
		req.Reject(err)
	})
	handlers.on(openReq, "blocked", func(js.Value) {
		req.Reject(host.NewError(host.NameBlocked, "cannot upgrade %q while other connections are open", name))
	})

	v, err := req.Wait(ctx)
	if err != nil {
		return nil, err
	}
	conn := v.(*connection)
	Logger.Debugf("opened %q at version %d", name, conn.Version())
	return conn, nil
}

// runUpgrade calls fn and turns a panic into an error. fn runs inside the
// upgradeneeded event and must not wait for requests.
func runUpgrade(fn host.UpgradeFunc, tx host.UpgradeTransaction, oldVersion, newVersion uint64) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = host.NewError(host.NameUnknown, "upgrade callback panicked: %v", p)
		}
	}()
	return fn(tx, oldVersion, newVersion)
}

func (f *factoryImpl) DeleteDatabase(ctx context.Context, name string) error {
	delReq := f.idb.Call("deleteDatabase", name)
	req := host.NewRequest()
	var handlers handlerSet
	defer handlers.release()

	handlers.on(delReq, "success", func(js.Value) { req.Resolve(nil) })
	handlers.on(delReq, "error", func(js.Value) { req.Reject(errorFromJS(delReq.Get("error"))) })
	handlers.on(delReq, "blocked", func(js.Value) {
		req.Reject(host.NewError(host.NameBlocked, "cannot delete %q while connections are open", name))
	})

	_, err := req.Wait(ctx)
	return err
}

func (f *factoryImpl) Databases(ctx context.Context) ([]host.DatabaseInfo, error) {
	if f.idb.Get("databases").IsUndefined() {
		return nil, host.NewError(host.NameInvalidAccess, "listing databases is not supported by this browser")
	}
	promise := f.idb.Call("databases")
	req := host.NewRequest()

	var onResolve, onReject js.Func
	onResolve = js.FuncOf(func(_ js.Value, args []js.Value) any {
		list := args[0]
		infos := make([]host.DatabaseInfo, list.Length())
		for i := range infos {
			entry := list.Index(i)
			infos[i] = host.DatabaseInfo{
				Name:    entry.Get("name").String(),
				Version: uint64(entry.Get("version").Float()),
			}
		}
		req.Resolve(infos)
		return nil
	})
	onReject = js.FuncOf(func(_ js.Value, args []js.Value) any {
		req.Reject(errorFromJS(args[0]))
		return nil
	})
	defer onResolve.Release()
	defer onReject.Release()
	promise.Call("then", onResolve, onReject)

	v, err := req.Wait(ctx)
	if err != nil {
		return nil, err
	}
	infos := v.([]host.DatabaseInfo)
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (f *factoryImpl) Info() host.Info {
	return host.Info{
		Implementation: host.ImplBrowser,
		Persistent:     true,
		SizeBytes:      -1, // not exposed by the platform
	}
}

func (f *factoryImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Connection (implements host.Database)
// --------------------------------------------------------------------------

type connection struct {
	raw js.Value

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
	active   atomic.Int64
}

func newConnection(raw js.Value) *connection {
	return &connection{raw: raw}
}

func (c *connection) Name() string {
	return c.raw.Get("name").String()
}

func (c *connection) Version() uint64 {
	return uint64(c.raw.Get("version").Float())
}

func (c *connection) StoreNames() []string {
	return stringList(c.raw.Get("objectStoreNames"))
}

func (c *connection) HasStore(name string) bool {
	return c.raw.Get("objectStoreNames").Call("contains", name).Bool()
}

func (c *connection) Transaction(stores []string, mode host.Mode) (host.Transaction, error) {
	switch mode {
	case host.ModeReadOnly, host.ModeReadWrite:
	case host.ModeVersionChange:
		return nil, host.NewError(host.NameInvalidAccess, "versionchange transactions are only created by Open")
	default:
		return nil, host.NewError(host.NameInvalidAccess, "invalid transaction mode %q", mode)
	}
	if len(stores) == 0 {
		return nil, host.NewError(host.NameInvalidAccess, "the transaction scope is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return nil, host.NewError(host.NameInvalidState, "the database connection is closing")
	}

	names := make([]any, len(stores))
	for i, s := range stores {
		names[i] = s
	}
	raw, err := jsCall(c.raw, "transaction", names, string(mode))
	if err != nil {
		return nil, err
	}
	return newTransaction(c, raw, mode), nil
}

func (c *connection) track() {
	c.inflight.Add(1)
	c.active.Add(1)
}

func (c *connection) untrack() {
	c.active.Add(-1)
	c.inflight.Done()
}

func (c *connection) ActiveTransactions() int {
	return int(c.active.Load())
}

func (c *connection) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.inflight.Wait()
	c.raw.Call("close")
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// jsCall invokes method on v and converts a thrown DOMException into an error.
func jsCall(v js.Value, method string, args ...any) (result js.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			if jsErr, ok := p.(js.Error); ok {
				err = errorFromJS(jsErr.Value)
				return
			}
			panic(p)
		}
	}()
	return v.Call(method, args...), nil
}

// handlerSet keeps the event handlers registered on JS objects so they can
// be released together.
type handlerSet struct {
	funcs []js.Func
}

func (h *handlerSet) on(target js.Value, event string, fn func(event js.Value)) {
	f := js.FuncOf(func(_ js.Value, args []js.Value) any {
		var ev js.Value
		if len(args) > 0 {
			ev = args[0]
		}
		fn(ev)
		return nil
	})
	h.funcs = append(h.funcs, f)
	target.Set("on"+event, f)
}

func (h *handlerSet) release() {
	for _, f := range h.funcs {
		f.Release()
	}
	h.funcs = nil
}
