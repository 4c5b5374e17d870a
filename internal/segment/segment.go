// Package segment is the segment manager named as an external
// collaborator in the core's contract (§6: segment_thread_collect,
// segments_absorb, page_start/page_segment). It owns the arenas that
// pages are carved from and the bookkeeping needed to hand an arena from
// one thread's manager to another's during heap reclamation.
//
// Grounded in the Go runtime's mheap arena growth (mheap.grow/sysAlloc):
// a Segment here plays the role of one arena chunk, and Manager plays the
// role of the per-P slice of arenas a thread currently has reserved.
package segment

import (
	"sync"
	"sync/atomic"

	"github.com/romange/mimalloc/internal/osmem"
)

// Segment is one arena: a contiguous region reserved from the OS region
// cache, subdivided into pages by callers in the page package.
type Segment struct {
	Cookie   uint64 // validated by contains_block/check_owned before trusting the page's owner
	capacity uintptr
	owner    atomic.Uint64 // thread id of the Manager currently responsible for this segment
}

// Owner returns the id of the thread whose Manager currently holds this
// segment; AbsorbFrom updates it when a reclaiming thread takes the
// segment over. Which heap owns a page is tracked separately, on each
// page.
func (s *Segment) Owner() uint64 { return s.owner.Load() }

func (s *Segment) setOwner(tid uint64) { s.owner.Store(tid) }

// Manager is the per-thread (per-Tld) view of the segments it currently
// holds. All methods except AbsorbFrom are expected to be called only by
// the owning thread; AbsorbFrom is called by a reclaiming thread against
// the abandoned manager it has just claimed exclusive access to.
type Manager struct {
	mu       sync.Mutex
	threadID uint64
	segments []*Segment
	cache    *osmem.Cache
}

// NewManager creates a segment manager bound to threadID, sharing the
// process-wide OS region cache.
func NewManager(threadID uint64, cache *osmem.Cache) *Manager {
	return &Manager{threadID: threadID, cache: cache}
}

// New reserves a fresh segment of capacity bytes from the OS region
// cache and registers it with this manager.
func (m *Manager) New(capacity uintptr, cookie uint64) *Segment {
	m.cache.Acquire(capacity)
	seg := &Segment{Cookie: cookie, capacity: capacity}
	seg.setOwner(m.threadID)
	m.mu.Lock()
	m.segments = append(m.segments, seg)
	m.mu.Unlock()
	return seg
}

// Release returns an empty segment's region to the OS cache. Callers
// must have already emptied every page carved from seg.
func (m *Manager) Release(seg *Segment) {
	m.mu.Lock()
	for i, s := range m.segments {
		if s == seg {
			m.segments[len(m.segments)-1], m.segments[i] = m.segments[i], m.segments[len(m.segments)-1]
			m.segments = m.segments[:len(m.segments)-1]
			break
		}
	}
	m.mu.Unlock()
	m.cache.Release(seg.capacity)
}

// ThreadCollect is segment_thread_collect: it gives the segment layer a
// chance to return fully-idle segments to the OS cache during a collect.
// It is intentionally conservative (a segment with zero live pages is
// assumed already released by the page layer via Release), so today this
// is a no-op retained for symmetry with the external-capability contract.
func (m *Manager) ThreadCollect() {}

// AbsorbFrom transfers ownership of every segment in from to m, the
// segments_absorb capability in §6. It is called after the core has
// already spliced from's pages into the reclaiming heap. Segment
// ownership is purely informational: contains_block/check_owned validate
// a segment by its Cookie, not by its owner, so a concurrent remote free
// reading a stale owner is harmless.
func (m *Manager) AbsorbFrom(threadID uint64, from *Manager) {
	from.mu.Lock()
	segs := from.segments
	from.segments = nil
	from.mu.Unlock()

	for _, s := range segs {
		s.setOwner(threadID)
	}

	m.mu.Lock()
	m.segments = append(m.segments, segs...)
	m.mu.Unlock()
}

// Segments returns a snapshot of the segments currently owned by m, for
// diagnostics and tests.
func (m *Manager) Segments() []*Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Segment, len(m.segments))
	copy(out, m.segments)
	return out
}
