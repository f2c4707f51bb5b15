package core

import "fmt"

// Mine is the protocol kernel (spec §4.2): the single handler that moves the
// Epoch/Block/Miner/Archive singletons forward. It is deliberately one long
// handler rather than a chain of smaller ones, mirroring the way the spec
// lays out its eleven numbered steps as one sequential procedure a validator
// runs inside a single transaction.
//
// minerAddr and spoolAddr name the miner submitting and the spool it claims
// to be recalling against; the caller (an off-ledger miner client, or a test)
// is expected to have already resolved recall_spool to a concrete spool the
// same way the off-ledger store does.
func (l *Ledger) Mine(minerAddr, spoolAddr Address, pow PoW, poa PoA) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	miner, ok := l.miners[minerAddr]
	if !ok {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrUnexpectedState)
	}
	spool, ok := l.spools[spoolAddr]
	if !ok {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolNotFound)
	}

	now := l.clock.Now()

	// Step 1: re-entry check.
	if miner.LastProofBlock == l.block.Number {
		if now <= l.block.LastProofAt+BlockDurationSeconds {
			return fmt.Errorf("miner %s: %w", minerAddr, ErrSolutionInvalid)
		}
		l.epoch.Duplicates++
	} else if l.earlyPolicy.Enabled && now < miner.LastProofAt+l.earlyPolicy.MinInterval {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrSolutionTooEarly)
	}

	// "challenge_set = archive.spools_stored at block open" (spec §3 table):
	// a fresh block (genesis, or just-advanced with progress reset to 0)
	// opens lazily here, the first time a proof is attempted against it,
	// rather than needing a separate open step no instruction triggers.
	if l.block.Progress == 0 {
		l.block.ChallengeSet = l.archive.SpoolsStored
	}

	// Step 2: derive the miner's per-block challenge.
	minerChallenge := H(l.block.Challenge[:], miner.Challenge[:])

	// Step 3: recall spool.
	if l.block.ChallengeSet == 0 {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrUnexpectedSpool)
	}
	recallSpool := 1 + (u64FromLE(minerChallenge[0:8]) % l.block.ChallengeSet)
	if spool.Number != recallSpool {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrUnexpectedSpool)
	}

	// Step 4: difficulty floor.
	if pow.Difficulty < l.epoch.MiningDifficulty || poa.Difficulty < l.epoch.PackingDifficulty {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrSolutionTooEasy)
	}

	// Step 5: recall-segment vs. expired-spool branch.
	blocksElapsed := l.block.Number - spool.LastRentBlock
	expired := spool.Balance < MinRent(spool.TotalSegments, blocksElapsed)

	var recallSegment []byte
	if !expired {
		if spool.TotalSegments == 0 {
			return fmt.Errorf("spool %s: %w", spoolAddr, ErrSolutionInvalid)
		}
		segmentNumber := u64FromLE(minerChallenge[8:16]) % spool.TotalSegments

		mem := BuildPackxMemory(minerAddr)
		recallSegment = poa.Solution.Unpack(mem)
		leaf := H(le64(segmentNumber), recallSegment)

		if EnableCommitmentCheck {
			packedLeaf := H(le64(segmentNumber), poa.Solution.Packed)
			if miner.Commitment != packedLeaf {
				return fmt.Errorf("miner %s: %w", minerAddr, ErrCommitmentMismatch)
			}
		}

		if poa.Proof.Len != SegmentProofLen || !poa.Proof.verify(spool.MerkleRoot, leaf, segmentNumber) {
			return fmt.Errorf("miner %s: %w", minerAddr, ErrSolutionInvalid)
		}
		if !VerifyPoW(minerChallenge, recallSegment, pow) {
			return fmt.Errorf("miner %s: %w", minerAddr, ErrSolutionInvalid)
		}
	} else {
		if !VerifyPoW(minerChallenge, EmptySegment, pow) {
			return fmt.Errorf("miner %s: %w", minerAddr, ErrSolutionInvalid)
		}
	}

	// Step 6: multiplier update.
	if miner.LastProofBlock+1 == l.block.Number {
		miner.Multiplier = saturatingAdd1(miner.Multiplier, MaxConsistencyMultiplier)
	} else {
		miner.Multiplier = saturatingSub1(miner.Multiplier, MinConsistencyMultiplier)
	}

	// Step 7: reward.
	reward := rewardFor(l.epoch, miner.Multiplier, expired)

	// Step 8: advance miner.
	miner.Challenge = H(miner.Challenge[:], l.slotHashes.Hash0()[:])
	miner.UnclaimedRewards += reward
	miner.TotalRewards += reward
	miner.TotalProofs++
	miner.LastProofBlock = l.block.Number
	miner.LastProofAt = now

	// Step 9: spool rent bookkeeping.
	owed := MinRent(spool.TotalSegments, blocksElapsed)
	spool.Balance = saturatingSub(spool.Balance, owed)
	spool.LastRentBlock = l.block.Number

	// Step 10: block bookkeeping.
	l.block.Progress++
	l.block.LastProofAt = now
	advanced := false
	if l.block.Progress >= l.epoch.TargetParticipation {
		l.block.Number++
		l.block.Progress = 0
		l.block.Challenge = H(l.block.Challenge[:], l.slotHashes.Hash0()[:])
		l.block.ChallengeSet = l.archive.SpoolsStored
		l.block.LastBlockAt = now
		advanced = true
	}

	// Step 11: epoch bookkeeping.
	if l.epoch.Progress >= EpochBlocks {
		l.advanceEpoch(now)
	} else {
		l.epoch.Progress++
	}

	l.sink.Emit(MineEvent{
		Miner:         minerAddr,
		Spool:         spool.Number,
		Expired:       expired,
		Reward:        reward,
		BlockAdvanced: advanced,
		Block:         l.block.Number,
	})
	l.log.WithFields(map[string]interface{}{
		"miner": minerAddr.String(), "spool": spool.Number, "expired": expired, "reward": reward,
	}).Debug("proof accepted")

	return nil
}
