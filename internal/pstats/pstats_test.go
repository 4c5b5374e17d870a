package pstats

import "testing"

func TestRecordPageDestroyAccumulates(t *testing.T) {
	var s Sink
	s.RecordPageDestroy(64, 3)
	s.RecordPageDestroy(128, 2)

	if s.PagesDestroyed != 2 {
		t.Fatalf("PagesDestroyed = %d, want 2", s.PagesDestroyed)
	}
	if s.BlocksReclaimed != 5 {
		t.Fatalf("BlocksReclaimed = %d, want 5", s.BlocksReclaimed)
	}
	if want := uint64(64*3 + 128*2); s.BytesReclaimed != want {
		t.Fatalf("BytesReclaimed = %d, want %d", s.BytesReclaimed, want)
	}
}

func TestBuildProfileGroupsBySize(t *testing.T) {
	areas := []Area{
		{BlockSize: 32, UsedBlocks: []uint32{0, 1}},
		{BlockSize: 32, UsedBlocks: []uint32{2}},
		{BlockSize: 64, UsedBlocks: []uint32{0}},
		{BlockSize: 96, UsedBlocks: nil},
	}
	prof := BuildProfile(areas)

	if len(prof.Sample) != 2 {
		t.Fatalf("got %d samples, want 2 (one per distinct non-empty block size)", len(prof.Sample))
	}

	var total int64
	for _, s := range prof.Sample {
		total += s.Value[0]
	}
	if total != 4 {
		t.Fatalf("total inuse_objects = %d, want 4", total)
	}
}

func TestBuildProfileEmpty(t *testing.T) {
	prof := BuildProfile(nil)
	if len(prof.Sample) != 0 {
		t.Fatalf("expected no samples for an empty area list, got %d", len(prof.Sample))
	}
}
