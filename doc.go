// Package mimalloc implements the heap lifecycle and page-ownership
// subsystem of a multi-threaded, heap-per-thread memory allocator.
//
// It does not implement size-class binning, the per-page free-list fast
// paths, or OS memory acquisition: those are supplied by the collaborator
// packages under internal/ (segment, page, pstats, osmem) and consumed by
// this package through the Tld descriptor in collaborators.go. What
// lives here is the part that is hard to get right under concurrency:
// creating and tearing down heaps, handing pages and delayed frees between
// threads, and reclaiming heaps abandoned by threads that have exited.
//
// See the Heap, Tld, and the collect/create/delete/destroy/absorb family
// of functions for the public surface.
package mimalloc
