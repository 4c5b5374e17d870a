package mimalloc

import "sync/atomic"

// abandonedHead is C4: the single process-wide lock-free stack of heaps
// whose owning thread has exited while live blocks remain. It is the
// one piece of truly global mutable state in this subsystem (§9).
var abandonedHead atomic.Pointer[Heap]

// pushAbandoned prepends h to the abandoned stack. h must already have
// abandonedNext cleared by the caller (abandon, in lifecycle.go).
func pushAbandoned(h *Heap) {
	for {
		head := abandonedHead.Load()
		h.abandonedNext = head
		if abandonedHead.CompareAndSwap(head, h) {
			return
		}
	}
}

// popAllAbandoned atomically claims the entire stack, returning its
// former head (or nil). Claiming the whole stack rather than a single
// node sidesteps the ABA problem: no other reclaimer can ever observe a
// half-consumed chain (§4.4).
func popAllAbandoned() *Heap {
	return abandonedHead.Swap(nil)
}

// prependAbandonedChain walks to chain's tail and CAS-prepends the whole
// chain back onto the stack. Used when try_reclaim_abandoned(heap, all =
// false) claims everything but only wants the head, putting the
// remainder back for the next reclaimer. O(n) in the chain length, which
// spec.md accepts because the abandoned stack is expected to stay short.
func prependAbandonedChain(chain *Heap) {
	if chain == nil {
		return
	}
	tail := chain
	for tail.abandonedNext != nil {
		tail = tail.abandonedNext
	}
	for {
		head := abandonedHead.Load()
		tail.abandonedNext = head
		if abandonedHead.CompareAndSwap(head, chain) {
			return
		}
	}
}
