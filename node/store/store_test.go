package store

import (
	"testing"

	"spoolchain/core"
	"spoolchain/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	t.Cleanup(func() { _ = sb.Cleanup() })

	s, err := Open(sb.Path("db"), ModePrimary)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSpoolAddressRoundTrip(t *testing.T) {
	s := openTestStore(t)
	addr := core.Address(core.H([]byte("writer-addr")))

	if err := s.PutSpoolAddress(7, addr); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.SpoolAddressByNumber(7)
	if err != nil {
		t.Fatalf("by number: %v", err)
	}
	if got != addr {
		t.Fatalf("address = %x, want %x", got, addr)
	}
	num, err := s.SpoolNumberByAddress(addr)
	if err != nil {
		t.Fatalf("by address: %v", err)
	}
	if num != 7 {
		t.Fatalf("number = %d, want 7", num)
	}
}

func TestSegmentPutGetCache(t *testing.T) {
	s := openTestStore(t)
	addr := core.Address(core.H([]byte("spool-1")))

	mem := core.BuildPackxMemory(core.Address(core.H([]byte("miner-1"))))
	padded := make([]byte, core.SegmentSize)
	copy(padded, "hello world")
	solution, err := core.PackxSolve(padded, mem, 1)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	if err := s.PutSegment(addr, 0, solution.ToBytes()); err != nil {
		t.Fatalf("put segment: %v", err)
	}
	if !s.HasSegment(addr, 0) {
		t.Fatal("HasSegment = false, want true")
	}
	if s.SegmentCount(addr) != 1 {
		t.Fatalf("count = %d, want 1", s.SegmentCount(addr))
	}

	// PutSegment already populated the hot cache, so both reads are served
	// from it and must agree.
	got, err := s.GetSegment(addr, 0)
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	again, err := s.GetSegment(addr, 0)
	if err != nil {
		t.Fatalf("get segment (cached): %v", err)
	}
	if string(got) != string(again) {
		t.Fatal("cached read diverged from store read")
	}

	parsed, err := core.PackxSolutionFromBytes(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	unpacked := parsed.Unpack(mem)
	if string(unpacked) != string(padded) {
		t.Fatal("round trip through store did not recover original padded segment")
	}
}

func TestMerkleLayerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	addr := core.Address(core.H([]byte("spool-2")))

	layer := []core.Hash{core.H([]byte("a")), core.H([]byte("b")), core.H([]byte("c"))}
	if err := s.PutMerkleLayer(KindUnpackedSpoolLayer, addr, 0, layer); err != nil {
		t.Fatalf("put layer: %v", err)
	}
	got, err := s.GetMerkleLayer(KindUnpackedSpoolLayer, addr, 0)
	if err != nil {
		t.Fatalf("get layer: %v", err)
	}
	if len(got) != len(layer) {
		t.Fatalf("len = %d, want %d", len(got), len(layer))
	}
	for i := range layer {
		if got[i] != layer[i] {
			t.Fatalf("entry %d = %x, want %x", i, got[i], layer[i])
		}
	}
}

func TestGetMerkleLayerMissingIsNil(t *testing.T) {
	s := openTestStore(t)
	addr := core.Address(core.H([]byte("never-written")))
	got, err := s.GetMerkleLayer(KindPackedSpoolLayer, addr, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil for unwritten layer", got)
	}
}

func TestIncrStatAccumulates(t *testing.T) {
	s := openTestStore(t)
	if err := s.IncrStat("segments_packed", 3); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := s.IncrStat("segments_packed", 4); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if got := s.Stat("segments_packed"); got != 7 {
		t.Fatalf("stat = %d, want 7", got)
	}
}
