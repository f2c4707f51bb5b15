package core

import (
	"encoding/binary"
	"testing"
)

func encodeString(s string) []byte {
	out := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(out[:2], uint16(len(s)))
	copy(out[2:], s)
	return out
}

func TestDispatchLifecycle(t *testing.T) {
	l := newTestLedger()

	if err := Dispatch(l, Instruction{Discriminator: DiscInitialize}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	authority := Address(H([]byte("author")))
	spoolAddr := SpoolAddress(authority, "doc")
	if err := Dispatch(l, Instruction{
		Discriminator: DiscSpoolCreate,
		Accounts:      []Address{authority},
		Payload:       encodeString("doc"),
	}); err != nil {
		t.Fatalf("spool create: %v", err)
	}
	if l.GetSpool(spoolAddr) == nil {
		t.Fatal("spool not created")
	}

	if err := Dispatch(l, Instruction{
		Discriminator: DiscSpoolWrite,
		Accounts:      []Address{spoolAddr},
		Payload:       []byte("hello from dispatch"),
	}); err != nil {
		t.Fatalf("spool write: %v", err)
	}

	if err := Dispatch(l, Instruction{
		Discriminator: DiscSpoolSubsidize,
		Accounts:      []Address{spoolAddr},
		Payload:       le64(MinFinalizationRent(1)),
	}); err != nil {
		t.Fatalf("subsidize: %v", err)
	}

	if err := Dispatch(l, Instruction{
		Discriminator: DiscSpoolFinalize,
		Accounts:      []Address{spoolAddr},
	}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if l.GetSpool(spoolAddr).State != SpoolFinalized {
		t.Fatal("spool not finalized via dispatch")
	}
}

func TestDispatchUnknownDiscriminator(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	if err := Dispatch(l, Instruction{Discriminator: Discriminator(0xff)}); err == nil {
		t.Fatal("expected unknown discriminator to fail")
	}
}

func TestDispatchRejectsShortPayload(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	authority := Address(H([]byte("author")))
	if err := Dispatch(l, Instruction{
		Discriminator: DiscSpoolSubsidize,
		Accounts:      []Address{authority},
		Payload:       []byte{0x01},
	}); err == nil {
		t.Fatal("expected short payload to be rejected")
	}
}

func TestDecodeMineRoundTrip(t *testing.T) {
	pow := PoW{Difficulty: 4, Nonce: 99}
	proofEntries := make([]Hash, SegmentProofLen)
	for i := range proofEntries {
		proofEntries[i] = H(le64(uint64(i)))
	}
	proof, err := NewProofPath(proofEntries, SegmentProofLen)
	if err != nil {
		t.Fatalf("proof path: %v", err)
	}
	poa := PoA{
		Difficulty: 6,
		Solution:   PackxSolution{Nonce: 7, Packed: make([]byte, SegmentSize)},
		Proof:      proof,
	}

	payload := make([]byte, 0)
	payload = append(payload, le64(pow.Difficulty)...)
	payload = append(payload, le64(pow.Nonce)...)
	payload = append(payload, le64(poa.Difficulty)...)
	payload = append(payload, le64(poa.Solution.Nonce)...)
	payload = append(payload, poa.Solution.Packed...)
	for _, e := range proofEntries {
		payload = append(payload, e[:]...)
	}

	decodedPow, decodedPoa, err := decodeMine(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decodedPow != pow {
		t.Fatalf("pow = %+v, want %+v", decodedPow, pow)
	}
	if decodedPoa.Difficulty != poa.Difficulty || decodedPoa.Solution.Nonce != poa.Solution.Nonce {
		t.Fatalf("poa mismatch: got %+v want %+v", decodedPoa, poa)
	}
}
