// Package osmem supplies the OS/region-cache and thread-identity
// collaborators named in the core's §6 contract: mem_collect(os) and
// current_thread_id()/ensure_thread_initialized().
//
// The Go runtime acquires arenas with raw sysAlloc/mmap; here the OS
// region cache is modeled as a byte counter rather than real mmap calls,
// since the core under test cares about the accounting and release
// protocol, not about raw page-table manipulation. Thread identity, on
// the other hand, is real: Go deliberately does not expose a public
// goroutine id, so EnsureThreadInitialized pins the calling goroutine to
// its OS thread and CurrentThreadID reads the kernel thread id directly.
package osmem

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Cache is the process-wide OS region cache. Acquire/Release model the
// OS's willingness to keep recently-freed regions around instead of
// unmapping them immediately; Collect forces the cache empty, mirroring
// mem_collect's "release cached OS regions" contract.
type Cache struct {
	reserved  atomic.Uint64 // bytes currently held by live segments
	cached    atomic.Uint64 // bytes of idle region retained for reuse
	collected atomic.Uint64 // lifetime bytes returned to the OS via Collect
}

// Acquire accounts for a newly reserved region of size bytes.
func (c *Cache) Acquire(size uintptr) {
	c.reserved.Add(uint64(size))
}

// Release moves a freed region's accounting from reserved into the idle
// cache rather than returning it to the OS immediately, matching the
// allocator's general policy of amortizing repeated grow/shrink cycles.
func (c *Cache) Release(size uintptr) {
	c.reserved.Add(^uint64(size - 1)) // atomic subtract
	c.cached.Add(uint64(size))
}

// Collect is mem_collect(os): it drops every byte sitting in the idle
// cache, as if unmapping it. Per §4.4 this is only meaningful for the
// process's main thread's collect call.
func (c *Cache) Collect() uint64 {
	freed := c.cached.Swap(0)
	c.collected.Add(freed)
	return freed
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	Reserved, Cached, Collected uint64
}

func (c *Cache) Stats() Stats {
	return Stats{
		Reserved:  c.reserved.Load(),
		Cached:    c.cached.Load(),
		Collected: c.collected.Load(),
	}
}

var (
	initOnce     sync.Once
	mainThreadID atomic.Uint64
)

// EnsureThreadInitialized pins the calling goroutine to its current OS
// thread for the lifetime of the goroutine, so that CurrentThreadID
// remains stable across the calls a single heap's owning goroutine makes.
// This must be called once before a goroutine creates or uses a heap as
// that thread's owner.
func EnsureThreadInitialized() {
	runtime.LockOSThread()
	initOnce.Do(func() {
		mainThreadID.Store(uint64(unix.Gettid()))
	})
}

// CurrentThreadID returns the kernel thread id of the OS thread the
// calling goroutine is currently (and, after EnsureThreadInitialized, is
// locked to).
func CurrentThreadID() uint64 {
	return uint64(unix.Gettid())
}

// IsMainThread reports whether the calling goroutine is running on the
// process's first-initialized OS thread. Used to gate the "if this is
// the main thread, also release cached OS regions" step of collect.
func IsMainThread() bool {
	return CurrentThreadID() == mainThreadID.Load()
}
