// Package browser binds the IndexedDB implementation of a web browser as a
// host facility. It is only built for js/wasm.
//
// Records are converted between structured clones and JS values on every
// request. Request completion events settle host requests, so code running
// in goroutines can wait for them with Request.Result.
//
// Upgrade callbacks run inside the upgradeneeded event. They may create and
// delete object stores and indexes, but must not wait for requests, since
// that would block the event loop that delivers the results.
package browser
