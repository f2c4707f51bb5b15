package core

import "testing"

func TestTreeRootChangesOnAppend(t *testing.T) {
	tr := NewTree(4, H([]byte("seed")))
	empty := tr.Root()

	if _, err := tr.Append(H([]byte("leaf0"))); err != nil {
		t.Fatalf("append: %v", err)
	}
	if tr.Root() == empty {
		t.Fatal("root did not change after append")
	}
}

func TestTreeDifferentSeedsDifferentZeroRoot(t *testing.T) {
	a := NewTree(4, H([]byte("a")))
	b := NewTree(4, H([]byte("b")))
	if a.Root() == b.Root() {
		t.Fatal("distinct seeds produced the same empty-tree root")
	}
}

func TestProofRoundTrip(t *testing.T) {
	tr := NewTree(5, H([]byte("seed")))
	var leaves []Hash
	for i := 0; i < 6; i++ {
		leaves = append(leaves, H(le64(uint64(i))))
	}
	for _, l := range leaves {
		if _, err := tr.Append(l); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	root := tr.Root()
	for i, l := range leaves {
		proof, err := tr.Proof(uint64(i))
		if err != nil {
			t.Fatalf("proof(%d): %v", i, err)
		}
		if len(proof) != tr.Height() {
			t.Fatalf("proof(%d) length = %d, want %d", i, len(proof), tr.Height())
		}
		if !VerifyPath(root, l, uint64(i), proof) {
			t.Fatalf("proof(%d) did not verify", i)
		}
	}
}

func TestVerifyPathRejectsBitFlip(t *testing.T) {
	tr := NewTree(4, H([]byte("seed")))
	leaf := H([]byte("x"))
	idx, _ := tr.Append(leaf)
	root := tr.Root()
	proof, _ := tr.Proof(idx)

	if !VerifyPath(root, leaf, idx, proof) {
		t.Fatal("valid proof rejected")
	}

	flipped := leaf
	flipped[0] ^= 1
	if VerifyPath(root, flipped, idx, proof) {
		t.Fatal("bit-flipped leaf incorrectly verified")
	}
	if VerifyPath(root, leaf, idx^1, proof) {
		t.Fatal("wrong index incorrectly verified")
	}
	badProof := append([]Hash(nil), proof...)
	badProof[0][0] ^= 1
	if VerifyPath(root, leaf, idx, badProof) {
		t.Fatal("corrupted proof incorrectly verified")
	}
}

func TestSetOverwritesLeafWithoutChangingLength(t *testing.T) {
	tr := NewTree(4, H([]byte("seed")))
	idx, _ := tr.Append(H([]byte("orig")))
	before := tr.Len()
	if err := tr.Set(idx, H([]byte("replacement"))); err != nil {
		t.Fatalf("set: %v", err)
	}
	if tr.Len() != before {
		t.Fatalf("len changed after Set: got %d want %d", tr.Len(), before)
	}
}

func TestNewProofPathRejectsWrongLength(t *testing.T) {
	if _, err := NewProofPath(make([]Hash, 3), SegmentProofLen); err == nil {
		t.Fatal("expected error for mismatched proof length")
	}
}
