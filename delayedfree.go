package mimalloc

import (
	"sync/atomic"
	"unsafe"
)

// delayedFreeList is C2: a many-producer/single-consumer lock-free stack
// per heap. Remote threads freeing a block whose page had no room to
// take it back directly push here instead; the owning thread drains it
// during collect.
//
// The head itself lives in trusted heap memory and is a plain atomic
// pointer. Only the forward links threaded through the (potentially
// corruptible, since it lives in freed user memory) blocks are
// XOR-obfuscated against the owning heap's key pair, per spec.md's link
// obfuscation invariant.
type delayedFreeList struct {
	head atomic.Pointer[Block]
}

func encodeNext(key [2]uint64, next *Block) uintptr {
	return uintptr(unsafe.Pointer(next)) ^ uintptr(key[0]) ^ uintptr(key[1])
}

func (b *Block) setDelayedNext(key [2]uint64, next *Block) {
	b.delayedNext = encodeNext(key, next)
}

func (b *Block) delayedNextBlock(key [2]uint64) *Block {
	raw := b.delayedNext ^ uintptr(key[0]) ^ uintptr(key[1])
	return (*Block)(unsafe.Pointer(raw))
}

// push is the producer side: prepend b onto the list via CAS, encoding
// its forward link with key (the owning heap's key pair as observed by
// the freeing thread — see Free's remote path).
func (d *delayedFreeList) push(key [2]uint64, b *Block) {
	for {
		head := d.head.Load()
		b.setDelayedNext(key, head)
		if d.head.CompareAndSwap(head, b) {
			return
		}
	}
}

// drain atomically empties the list and returns its former head. The
// returned chain's links are still encoded against the owning heap's key
// pair; callers walk it with delayedNextBlock(key).
func (d *delayedFreeList) drain() *Block {
	return d.head.Swap(nil)
}

// isEmptyHint peeks at the head without claiming it (no exchange). The
// answer can be stale by the time the caller acts on it, so it must never
// be relied on for correctness. Nothing in this package calls it;
// tryReclaimAbandoned's shortcut reads the abandoned stack's head
// directly.
func (d *delayedFreeList) isEmptyHint() bool {
	return d.head.Load() == nil
}

// reencodeChain walks a chain obtained from drain/steal (encoded with
// oldKey) and rewrites every link to be encoded with newKey, without
// changing the chain's order or contents. It returns the chain's head
// and tail so the caller can splice it elsewhere.
func reencodeChain(head *Block, oldKey, newKey [2]uint64) (newHead, tail *Block) {
	if head == nil {
		return nil, nil
	}
	cur := head
	for {
		next := cur.delayedNextBlock(oldKey)
		cur.setDelayedNext(newKey, next)
		if next == nil {
			return head, cur
		}
		cur = next
	}
}

// prependChain CAS-prepends the already-(newKey)-encoded chain [head,
// tail] onto d, tolerating concurrent producer pushes. Used by absorb to
// hand a reclaimed heap's delayed frees to the heap absorbing it.
func (d *delayedFreeList) prependChain(head, tail *Block, key [2]uint64) {
	if head == nil {
		return
	}
	for {
		cur := d.head.Load()
		tail.setDelayedNext(key, cur)
		if d.head.CompareAndSwap(cur, head) {
			return
		}
	}
}
