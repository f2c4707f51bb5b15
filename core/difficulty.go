package core

// advanceEpoch retargets difficulty and participation and rolls the epoch
// counters over (spec §4.2 "Epoch advancement"). Callers must hold l.mu.
func (l *Ledger) advanceEpoch(now int64) {
	e := &l.epoch

	elapsed := now - e.LastEpochAt
	if elapsed/int64(EpochBlocks) < int64(BlockDurationSeconds) {
		e.MiningDifficulty++
	} else if e.MiningDifficulty > MinMiningDifficulty {
		e.MiningDifficulty--
	}

	if e.Duplicates == 0 {
		if e.Number%AdjustmentInterval == 0 && e.TargetParticipation < MaxParticipationTarget {
			e.TargetParticipation++
		}
	} else if e.TargetParticipation > MinParticipationTarget {
		e.TargetParticipation--
	}

	e.Duplicates = 0
	e.Progress = 0
	e.Number++
	e.LastEpochAt = now
	e.RewardRate = baseRate(e.Number) + l.archive.BlockReward()
}

// saturatingAdd1 increments v by one, capped at max.
func saturatingAdd1(v, max uint64) uint64 {
	if v >= max {
		return max
	}
	return v + 1
}

// saturatingSub1 decrements v by one, floored at min.
func saturatingSub1(v, min uint64) uint64 {
	if v <= min {
		return min
	}
	return v - 1
}

// saturatingSub subtracts amt from v, floored at zero.
func saturatingSub(v, amt uint64) uint64 {
	if amt >= v {
		return 0
	}
	return v - amt
}

// rewardFor computes the block reward a successful proof earns (spec §4.2
// step 7): reward_rate scaled down by target participation and by the
// miner's consistency multiplier, halved again if the recalled spool had
// expired.
func rewardFor(epoch Epoch, multiplier uint64, expired bool) uint64 {
	if epoch.TargetParticipation == 0 {
		return 0
	}
	base := epoch.RewardRate / epoch.TargetParticipation
	reward := base * multiplier / MaxConsistencyMultiplier
	if expired {
		reward /= 2
	}
	return reward
}
