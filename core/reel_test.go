package core

import "testing"

func TestReelRoundTrip(t *testing.T) {
	l := newTestLedger()
	l.Initialize()

	authority := Address(H([]byte("author")))
	minerAddr, err := l.MinerRegister(authority, "m1")
	if err != nil {
		t.Fatalf("register miner: %v", err)
	}
	reelAddr, err := l.ReelCreate(minerAddr, 0)
	if err != nil {
		t.Fatalf("create reel: %v", err)
	}

	// The middle packed-spool root is a real SegmentTree root over packed
	// segments, so Commit can later prove a leaf into it; the other two are
	// opaque stand-ins since nothing proves into them in this test.
	segTree := NewTree(SegmentTreeHeight, H([]byte("packed-spool-2")))
	padded := padTo([]byte("segment payload"), SegmentSize)
	segIdx, err := segTree.Append(segmentLeaf(0, padded))
	if err != nil {
		t.Fatalf("append segment: %v", err)
	}
	leaf := segmentLeaf(0, padded)

	roots := []Hash{H([]byte("root-1")), segTree.Root(), H([]byte("root-3"))}
	for _, r := range roots {
		if err := l.ReelPack(reelAddr, r); err != nil {
			t.Fatalf("pack: %v", err)
		}
	}
	if l.GetReel(reelAddr).TotalSpools != uint64(len(roots)) {
		t.Fatalf("total_spools = %d, want %d", l.GetReel(reelAddr).TotalSpools, len(roots))
	}

	// Unpack the middle one (spool_number = 2).
	reel := l.GetReel(reelAddr)
	middleIndex := uint64(1)
	entries, err := reel.State.Proof(middleIndex)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	proof, err := NewProofPath(entries, SpoolProofLen)
	if err != nil {
		t.Fatalf("proof path: %v", err)
	}
	if err := l.ReelUnpack(reelAddr, middleIndex, proof, roots[1]); err != nil {
		t.Fatalf("unpack: %v", err)
	}

	// Commit a leaf of that spool with a per-segment proof.
	segProofEntries, err := segTree.Proof(segIdx)
	if err != nil {
		t.Fatalf("segment proof: %v", err)
	}
	segProof, err := NewProofPath(segProofEntries, SegmentProofLen)
	if err != nil {
		t.Fatalf("segment proof path: %v", err)
	}

	if err := l.ReelCommit(reelAddr, minerAddr, middleIndex+1, segIdx, segProof, leaf); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if l.GetMiner(minerAddr).Commitment != leaf {
		t.Fatal("miner.commitment does not equal the committed leaf")
	}
}

func TestReelPackIsSequential(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	minerAddr, _ := l.MinerRegister(Address(H([]byte("author"))), "m1")
	reelAddr, err := l.ReelCreate(minerAddr, 0)
	if err != nil {
		t.Fatalf("create reel: %v", err)
	}
	if err := l.ReelPack(reelAddr, H([]byte("root"))); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if l.GetReel(reelAddr).TotalSpools != 1 {
		t.Fatalf("total_spools = %d, want 1", l.GetReel(reelAddr).TotalSpools)
	}
}

func TestReelUnpackRejectsBadProof(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	minerAddr, _ := l.MinerRegister(Address(H([]byte("author"))), "m1")
	reelAddr, _ := l.ReelCreate(minerAddr, 0)
	root := H([]byte("root"))
	if err := l.ReelPack(reelAddr, root); err != nil {
		t.Fatalf("pack: %v", err)
	}

	entries := make([]Hash, SpoolProofLen)
	proof, _ := NewProofPath(entries, SpoolProofLen)
	if err := l.ReelUnpack(reelAddr, 0, proof, root); err == nil {
		t.Fatal("expected garbage proof to be rejected")
	}
}
