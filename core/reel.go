package core

import "fmt"

// ReelCreate allocates a Reel at its deterministic (miner, number) address
// (spec §4.3, §6 Create{number}).
func (l *Ledger) ReelCreate(minerAddr Address, number uint64) (Address, error) {
	addr := ReelAddress(minerAddr, number)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.miners[minerAddr]; !ok {
		return Address{}, fmt.Errorf("reel owner %s: %w", minerAddr, ErrUnexpectedState)
	}
	if _, exists := l.reels[addr]; exists {
		return Address{}, fmt.Errorf("reel %s: %w", addr, ErrUnexpectedState)
	}
	l.reels[addr] = &Reel{
		Number:    number,
		Authority: minerAddr,
		State:     NewTree(SpoolTreeHeight, H(addr[:])),
		Contains:  make(map[uint64]Hash),
	}
	return addr, nil
}

// ReelDestroy closes a reel account (spec §6 Destroy{number}).
func (l *Ledger) ReelDestroy(reelAddr Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.reels[reelAddr]; !ok {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrUnexpectedState)
	}
	delete(l.reels, reelAddr)
	return nil
}

// reelLeaf is the leaf value Pack and Unpack both hash: spool_number_le
// concatenated with the packed-spool root (spec §4.3).
func reelLeaf(spoolNumber uint64, packedRoot Hash) Hash {
	return H(le64(spoolNumber), packedRoot[:])
}

// ReelPack appends the next packed-spool root to the reel's SpoolTree. The
// spool number packed is always reel.total_spools+1: packing is strictly
// sequential, so a miner cannot skip ahead to cheaply commit to a single
// spool without packing everything before it.
func (l *Ledger) ReelPack(reelAddr Address, packedRoot Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	reel, ok := l.reels[reelAddr]
	if !ok {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelPackFailed)
	}
	if reel.TotalSpools >= MaxSpoolsPerReel {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelTooManySpools)
	}

	spoolNumber := reel.TotalSpools + 1
	if _, err := reel.State.Append(reelLeaf(spoolNumber, packedRoot)); err != nil {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelPackFailed)
	}
	reel.TotalSpools = spoolNumber
	return nil
}

// ReelUnpack verifies an inclusion proof for the leaf at index and, on
// success, records the packed root in reel.contains so a later Commit can
// reference it (spec §4.3 Unpack, §6 Unpack{index,proof,value}).
func (l *Ledger) ReelUnpack(reelAddr Address, index uint64, proof ProofPath, packedRoot Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	reel, ok := l.reels[reelAddr]
	if !ok {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelUnpackFailed)
	}
	if proof.Len != SpoolProofLen || len(proof.Entries) != SpoolProofLen {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelUnpackFailed)
	}
	spoolNumber := index + 1
	leaf := reelLeaf(spoolNumber, packedRoot)
	if !proof.verify(reel.State.Root(), leaf, index) {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelUnpackFailed)
	}
	reel.Contains[spoolNumber] = packedRoot
	return nil
}

// ReelCommit verifies that value is the leaf at segmentIndex of the packed
// Merkle tree whose root was recorded in reel.contains for spoolNumber,
// then writes value into the miner's commitment (spec §4.3 Commit). Mine
// can later require miner.commitment to equal the packed leaf it is being
// asked to accept a PoA for (see EnableCommitmentCheck in policy.go), closing
// the loop spec §9's open question leaves deferred.
func (l *Ledger) ReelCommit(reelAddr, minerAddr Address, spoolNumber, segmentIndex uint64, proof ProofPath, value Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	reel, ok := l.reels[reelAddr]
	if !ok {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelCommitFailed)
	}
	root, ok := reel.Contains[spoolNumber]
	if !ok {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelCommitFailed)
	}
	if proof.Len != SegmentProofLen || len(proof.Entries) != SegmentProofLen {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelCommitFailed)
	}
	if !proof.verify(root, value, segmentIndex) {
		return fmt.Errorf("reel %s: %w", reelAddr, ErrReelCommitFailed)
	}
	miner, ok := l.miners[minerAddr]
	if !ok {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrReelCommitFailed)
	}
	miner.Commitment = value
	reel.LastProofAt = l.clock.Now()
	reel.LastProofBlock = l.block.Number
	return nil
}
