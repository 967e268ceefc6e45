// Package localctx provides goroutine-scoped storage for the decoded
// context of the message a single-mode handler is currently processing.
//
// The upstream lineage this module is adapted from uses a thread-local for
// this; Go has no equivalent primitive, and the retrieved corpus's
// goroutineid module (a placeholder, with no retrievable implementation)
// gestures at the same idea without providing one. This package implements
// the well-known technique directly: derive a stable per-goroutine key from
// runtime.Stack, and key a map on it. It is not a general-purpose
// goroutine-local-storage facility - it is scoped to exactly this one use.
package localctx

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var (
	mu    sync.Mutex
	byGID = make(map[uint64]any)
)

// goroutineID extracts the calling goroutine's ID from its own stack trace
// header, e.g. "goroutine 123 [running]: ...".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// Set installs ctxt as the calling goroutine's local context.
func Set(ctxt any) {
	gid := goroutineID()
	mu.Lock()
	byGID[gid] = ctxt
	mu.Unlock()
}

// Clear removes the calling goroutine's local context, if any.
func Clear() {
	gid := goroutineID()
	mu.Lock()
	delete(byGID, gid)
	mu.Unlock()
}

// Get returns the calling goroutine's local context, and whether one is set.
func Get() (any, bool) {
	gid := goroutineID()
	mu.Lock()
	v, ok := byGID[gid]
	mu.Unlock()
	return v, ok
}

// Scoped installs ctxt as the local context for the duration of fn, clearing
// it on every exit path (including panic).
func Scoped(ctxt any, fn func()) {
	Set(ctxt)
	defer Clear()
	fn()
}
