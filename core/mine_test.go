package core

import "testing"

// manualClock is a settable Clock for deterministic Mine tests.
type manualClock struct{ t int64 }

func (c *manualClock) Now() int64 { return c.t }

func (c *manualClock) Advance(seconds int64) { c.t += seconds }

func newGenesisLedger(t *testing.T) (*Ledger, *manualClock, Address, Address) {
	t.Helper()
	clock := &manualClock{t: 1_000}
	l := NewLedger(clock, FixedSlotHashes(H([]byte("slot"))), NopSink{})
	l.Initialize()

	minerAddr, err := l.MinerRegister(Address(H([]byte("authority-1"))), "m1")
	if err != nil {
		t.Fatalf("register miner: %v", err)
	}

	spoolAddr, err := l.SpoolCreate(Address(H([]byte("authority-1"))), "genesis-spool")
	if err != nil {
		t.Fatalf("create spool: %v", err)
	}
	if err := l.SpoolWrite(spoolAddr, []byte("hello, world")); err != nil {
		t.Fatalf("write spool: %v", err)
	}
	if err := l.SpoolSubsidize(spoolAddr, MinFinalizationRent(1)*10); err != nil {
		t.Fatalf("subsidize: %v", err)
	}
	if err := l.SpoolFinalize(spoolAddr); err != nil {
		t.Fatalf("finalize spool: %v", err)
	}
	// A freshly registered miner's last_proof_block equals the genesis block
	// number, so Mine only accepts its first proof once the genesis block has
	// stalled. Advance the clock past that window.
	clock.Advance(BlockDurationSeconds + 1)
	return l, clock, minerAddr, spoolAddr
}

// solveMine derives the recall segment for the current block/miner state and
// produces a PoW+PoA pair that Mine will accept, mirroring what an off-ledger
// miner client computes before submitting.
func solveMine(t *testing.T, l *Ledger, minerAddr, spoolAddr Address) (PoW, PoA) {
	t.Helper()
	l.mu.Lock()
	miner := l.miners[minerAddr]
	spool := l.spools[spoolAddr]
	if l.block.Progress == 0 {
		l.block.ChallengeSet = l.archive.SpoolsStored
	}
	minerChallenge := H(l.block.Challenge[:], miner.Challenge[:])
	epoch := l.epoch
	l.mu.Unlock()

	segmentNumber := u64FromLE(minerChallenge[8:16]) % spool.TotalSegments
	padded := padTo([]byte("hello, world"), SegmentSize)

	mem := BuildPackxMemory(minerAddr)
	solution, err := PackxSolve(padded, mem, epoch.PackingDifficulty)
	if err != nil {
		t.Fatalf("packx solve: %v", err)
	}
	recallSegment := solution.Unpack(mem)
	leaf := H(le64(segmentNumber), recallSegment)

	writer := l.writers[WriterAddress(spoolAddr)]
	var proofEntries []Hash
	if writer != nil {
		proofEntries, err = writer.State.Proof(segmentNumber)
	} else {
		// Finalized: reconstruct the equivalent tree to produce the proof,
		// since the writer is destroyed on Finalize.
		tr := NewTree(SegmentTreeHeight, H(spoolAddr[:]))
		if _, aerr := tr.Append(segmentLeaf(0, padded)); aerr != nil {
			t.Fatalf("rebuild tree: %v", aerr)
		}
		proofEntries, err = tr.Proof(segmentNumber)
	}
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	proof, err := NewProofPath(proofEntries, SegmentProofLen)
	if err != nil {
		t.Fatalf("proof path: %v", err)
	}
	if !proof.verify(spool.MerkleRoot, leaf, segmentNumber) {
		t.Fatal("constructed proof does not verify against spool root")
	}

	pow, err := SolvePoW(minerChallenge, recallSegment, epoch.MiningDifficulty)
	if err != nil {
		t.Fatalf("pow solve: %v", err)
	}

	return pow, PoA{Difficulty: epoch.PackingDifficulty, Solution: solution, Proof: proof}
}

func TestMineGenesis(t *testing.T) {
	l, _, minerAddr, spoolAddr := newGenesisLedger(t)

	pow, poa := solveMine(t, l, minerAddr, spoolAddr)
	if err := l.Mine(minerAddr, spoolAddr, pow, poa); err != nil {
		t.Fatalf("mine: %v", err)
	}

	miner := l.GetMiner(minerAddr)
	if miner.UnclaimedRewards == 0 {
		t.Fatal("expected unclaimed rewards to be credited")
	}
	if l.Block().Progress != 1 {
		t.Fatalf("block.progress = %d, want 1", l.Block().Progress)
	}
}

func TestMineExpiredSpoolHalvesReward(t *testing.T) {
	l, _, minerAddr, spoolAddr := newGenesisLedger(t)

	l.mu.Lock()
	l.spools[spoolAddr].Balance = 0
	l.block.Number = 100 // simulate elapsed blocks so min_rent(total, elapsed) > 0
	l.block.ChallengeSet = l.archive.SpoolsStored
	minerChallenge := H(l.block.Challenge[:], l.miners[minerAddr].Challenge[:])
	epoch := l.epoch
	l.mu.Unlock()

	pow, err := SolvePoW(minerChallenge, EmptySegment, epoch.MiningDifficulty)
	if err != nil {
		t.Fatalf("pow solve: %v", err)
	}
	expiredPoA := PoA{Difficulty: epoch.PackingDifficulty}

	if err := l.Mine(minerAddr, spoolAddr, pow, expiredPoA); err != nil {
		t.Fatalf("mine expired: %v", err)
	}
	expiredReward := l.GetMiner(minerAddr).UnclaimedRewards

	l2, _, minerAddr2, spoolAddr2 := newGenesisLedger(t)
	pow2, poa2 := solveMine(t, l2, minerAddr2, spoolAddr2)
	if err := l2.Mine(minerAddr2, spoolAddr2, pow2, poa2); err != nil {
		t.Fatalf("mine rent-current: %v", err)
	}
	fullReward := l2.GetMiner(minerAddr2).UnclaimedRewards

	if expiredReward == 0 || expiredReward != fullReward/2 {
		t.Fatalf("expired reward = %d, want half of %d", expiredReward, fullReward)
	}
}

func TestMineDuplicateSubmission(t *testing.T) {
	l, clock, minerAddr, spoolAddr := newGenesisLedger(t)
	// With target_participation left at its genesis minimum of 1, a single
	// proof always advances the block, leaving no same-block window to
	// submit a duplicate into. Widen it so the block stays open across both
	// submissions.
	l.mu.Lock()
	l.epoch.TargetParticipation = 3
	l.mu.Unlock()

	pow, poa := solveMine(t, l, minerAddr, spoolAddr)
	if err := l.Mine(minerAddr, spoolAddr, pow, poa); err != nil {
		t.Fatalf("first mine: %v", err)
	}

	pow2, poa2 := solveMine(t, l, minerAddr, spoolAddr)
	if err := l.Mine(minerAddr, spoolAddr, pow2, poa2); err == nil {
		t.Fatal("expected second same-block submission to fail before stall")
	}

	clock.Advance(BlockDurationSeconds + 1)
	before := l.Epoch().Duplicates
	pow3, poa3 := solveMine(t, l, minerAddr, spoolAddr)
	if err := l.Mine(minerAddr, spoolAddr, pow3, poa3); err != nil {
		t.Fatalf("post-stall mine: %v", err)
	}
	if l.Epoch().Duplicates != before+1 {
		t.Fatalf("epoch.duplicates = %d, want %d", l.Epoch().Duplicates, before+1)
	}
}

func TestMineRejectsWrongSpool(t *testing.T) {
	l, _, minerAddr, spoolAddr := newGenesisLedger(t)

	other, err := l.SpoolCreate(Address(H([]byte("authority-2"))), "other-spool")
	if err != nil {
		t.Fatalf("create other spool: %v", err)
	}
	if err := l.SpoolWrite(other, []byte("other")); err != nil {
		t.Fatalf("write other: %v", err)
	}
	if err := l.SpoolSubsidize(other, MinFinalizationRent(1)*10); err != nil {
		t.Fatalf("subsidize other: %v", err)
	}
	if err := l.SpoolFinalize(other); err != nil {
		t.Fatalf("finalize other: %v", err)
	}

	pow, poa := solveMine(t, l, minerAddr, spoolAddr)
	if err := l.Mine(minerAddr, other, pow, poa); err == nil {
		t.Fatal("expected mine against the wrong spool to fail")
	}
}

func TestMineRejectsLowDifficulty(t *testing.T) {
	l, _, minerAddr, spoolAddr := newGenesisLedger(t)
	pow, poa := solveMine(t, l, minerAddr, spoolAddr)
	pow.Difficulty = 0
	if err := l.Mine(minerAddr, spoolAddr, pow, poa); err == nil {
		t.Fatal("expected low-difficulty pow to fail")
	}
}
