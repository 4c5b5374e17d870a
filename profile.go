package mimalloc

import (
	"github.com/google/pprof/profile"

	"github.com/romange/mimalloc/internal/pstats"
)

// profileCollector adapts VisitBlocks' area/block callbacks into the
// []pstats.Area shape BuildProfile expects: one Area per page, appended
// to as the walk progresses, with VisitBlock recording its slot index
// into whichever Area VisitArea most recently opened.
type profileCollector struct {
	areas []pstats.Area
}

func (c *profileCollector) VisitArea(a Area) bool {
	c.areas = append(c.areas, pstats.Area{BlockSize: a.BlockSize, Capacity: a.Capacity})
	return true
}

func (c *profileCollector) VisitBlock(b *Block) bool {
	last := &c.areas[len(c.areas)-1]
	last.UsedBlocks = append(last.UsedBlocks, b.node.Index)
	return true
}

// Profile walks every allocated block in h via VisitBlocks and renders
// the result as a pprof heap profile: the Stats collaborator's one
// diagnostics surface named in spec.md §6, consumable by `go tool pprof`
// the same way runtime/pprof.WriteHeapProfile's output is.
func (t *Tld) Profile(h *Heap) *profile.Profile {
	c := &profileCollector{}
	VisitBlocks(h, true, c)
	return pstats.BuildProfile(c.areas)
}
