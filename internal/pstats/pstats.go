// Package pstats is the stats collaborator named in §6 ("counters
// updated on page destroy"). It also turns an area/block visitor walk
// into a github.com/google/pprof profile, giving the core's one
// diagnostics surface (the area/block visitor) a real consumer in the
// wider Go tooling ecosystem instead of an ad-hoc dump format.
package pstats

import (
	"time"

	"github.com/google/pprof/profile"
)

// Sink accumulates the lifetime counters the core updates on page
// destroy, grounded in the Go runtime's memstats (smallAllocCount,
// largeAlloc, etc.) but reduced to what the heap-lifecycle core itself
// touches.
type Sink struct {
	PagesDestroyed  uint64
	BlocksReclaimed uint64
	BytesReclaimed  uint64
	HeapsAbandoned  uint64
	HeapsReclaimed  uint64
}

// RecordPageDestroy is called once per page as heap_destroy_pages walks
// a heap being bulk-destroyed or safely reclaimed.
func (s *Sink) RecordPageDestroy(blockSize uintptr, liveBlocks uint32) {
	s.PagesDestroyed++
	s.BlocksReclaimed += uint64(liveBlocks)
	s.BytesReclaimed += uint64(liveBlocks) * uint64(blockSize)
}

// Area describes one page as seen by the area/block visitor, the unit
// BuildProfile turns into pprof samples.
type Area struct {
	BlockSize  uintptr
	Capacity   uint32
	UsedBlocks []uint32 // slot indices currently allocated
}

// BuildProfile renders a snapshot of areas as a pprof heap profile: one
// sample per distinct block size that has live blocks, holding their
// count and total bytes; areas with no live blocks add nothing. This is the
// same shape `go tool pprof` expects from runtime/pprof.WriteHeapProfile,
// so the output of a heap walk can be piped straight into existing pprof
// tooling.
func BuildProfile(areas []Area) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "inuse_objects", Unit: "count"},
			{Type: "inuse_space", Unit: "bytes"},
		},
		TimeNanos: time.Now().UnixNano(),
	}

	bySize := map[uintptr]*profile.Sample{}
	nextLocID := uint64(1)
	for _, a := range areas {
		if len(a.UsedBlocks) == 0 {
			continue
		}
		s, ok := bySize[a.BlockSize]
		if !ok {
			loc := &profile.Location{ID: nextLocID}
			nextLocID++
			p.Location = append(p.Location, loc)
			s = &profile.Sample{
				Location: []*profile.Location{loc},
				Value:    []int64{0, 0},
				Label:    map[string][]string{"block_size": {fmtUint(a.BlockSize)}},
			}
			p.Sample = append(p.Sample, s)
			bySize[a.BlockSize] = s
		}
		s.Value[0] += int64(len(a.UsedBlocks))
		s.Value[1] += int64(len(a.UsedBlocks)) * int64(a.BlockSize)
	}
	return p
}

func fmtUint(v uintptr) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
