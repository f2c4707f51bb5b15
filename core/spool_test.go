package core

import "testing"

func newTestLedger() *Ledger {
	return NewLedger(&manualClock{t: 1_000}, FixedSlotHashes(H([]byte("slot"))), NopSink{})
}

func TestSpoolCreateWriteFinalize(t *testing.T) {
	l := newTestLedger()
	l.Initialize()

	authority := Address(H([]byte("author")))
	addr, err := l.SpoolCreate(authority, "doc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s := l.GetSpool(addr); s.State != SpoolCreated {
		t.Fatalf("state = %v, want Created", s.State)
	}

	if err := l.SpoolWrite(addr, []byte("some bytes that are not a full segment")); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := l.GetSpool(addr)
	if s.State != SpoolWriting {
		t.Fatalf("state = %v, want Writing", s.State)
	}
	if s.TotalSegments != 1 {
		t.Fatalf("total_segments = %d, want 1", s.TotalSegments)
	}

	if err := l.SpoolFinalize(addr); err == nil {
		t.Fatal("expected finalize to fail without sufficient rent")
	}

	if err := l.SpoolSubsidize(addr, MinFinalizationRent(s.TotalSegments)); err != nil {
		t.Fatalf("subsidize: %v", err)
	}
	if err := l.SpoolFinalize(addr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	finalized := l.GetSpool(addr)
	if finalized.State != SpoolFinalized {
		t.Fatalf("state = %v, want Finalized", finalized.State)
	}
	if finalized.Number != 1 {
		t.Fatalf("number = %d, want 1", finalized.Number)
	}
	if l.GetWriter(WriterAddress(addr)) != nil {
		t.Fatal("writer should be destroyed after finalize")
	}
	if l.Archive().SpoolsStored != 1 || l.Archive().SegmentsStored != 1 {
		t.Fatalf("archive = %+v, want 1 spool / 1 segment", l.Archive())
	}
}

func TestSpoolWriteRejectsUnknownSpool(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	if err := l.SpoolWrite(Address{0x01}, []byte("x")); err == nil {
		t.Fatal("expected write against unknown spool to fail")
	}
}

func TestSpoolUpdateRequiresValidProof(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	authority := Address(H([]byte("author")))
	addr, err := l.SpoolCreate(authority, "doc")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	old := []byte("original segment content")
	if err := l.SpoolWrite(addr, old); err != nil {
		t.Fatalf("write: %v", err)
	}

	writer := l.GetWriter(WriterAddress(addr))
	entries, err := writer.State.Proof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	proof, err := NewProofPath(entries, SegmentProofLen)
	if err != nil {
		t.Fatalf("proof path: %v", err)
	}

	newData := []byte("replacement segment content")
	if err := l.SpoolUpdate(addr, 0, old, newData, proof); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Replaying the same (now-stale) proof against the already-updated leaf
	// must fail.
	if err := l.SpoolUpdate(addr, 0, old, newData, proof); err == nil {
		t.Fatal("expected stale proof to be rejected")
	}
}

func TestSpoolFinalizeIsTerminal(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	authority := Address(H([]byte("author")))
	addr, _ := l.SpoolCreate(authority, "doc")
	_ = l.SpoolWrite(addr, []byte("data"))
	_ = l.SpoolSubsidize(addr, MinFinalizationRent(1))
	if err := l.SpoolFinalize(addr); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := l.SpoolWrite(addr, []byte("more")); err == nil {
		t.Fatal("expected write against finalized spool to fail")
	}
	if err := l.SpoolFinalize(addr); err == nil {
		t.Fatal("expected double finalize to fail")
	}
}
