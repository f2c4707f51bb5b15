package core

// SpoolState is the lifecycle stage of a Spool account (spec §3).
type SpoolState uint8

const (
	SpoolCreated SpoolState = iota
	SpoolWriting
	SpoolFinalized
)

func (s SpoolState) String() string {
	switch s {
	case SpoolCreated:
		return "Created"
	case SpoolWriting:
		return "Writing"
	case SpoolFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// Archive is the process-wide singleton tracking global counts. Both
// counters are monotonic non-decreasing (spec §3 invariant).
type Archive struct {
	SpoolsStored   uint64
	SegmentsStored uint64
}

// BlockReward returns the archive-size-scaled component folded into
// epoch.reward_rate on every epoch advance (spec §4.2 step "Epoch
// bookkeeping"). It grows logarithmically with segments stored so the
// subsidy schedule alone doesn't have to anticipate archive growth.
func (a *Archive) BlockReward() uint64 {
	n := a.SegmentsStored
	reward := uint64(0)
	for n > 0 {
		reward++
		n >>= 1
	}
	return reward
}

// Epoch is the process-wide singleton holding difficulty, reward and
// participation state for the current retargeting window.
type Epoch struct {
	Number               uint64
	Progress             uint64
	MiningDifficulty      uint64
	PackingDifficulty     uint64
	TargetParticipation  uint64
	RewardRate           uint64
	Duplicates           uint64
	LastEpochAt          int64
}

// Block is the process-wide singleton holding the current challenge and
// participation progress.
type Block struct {
	Number        uint64
	Progress      uint64
	Challenge     Hash
	ChallengeSet  uint64 // archive.spools_stored at block open
	LastProofAt   int64
	LastBlockAt   int64
}

// Treasury is the process-wide singleton the (out-of-scope) token-mint
// machinery funds miner reward claims from. MinerClaim debits Balance by
// each claimed amount; nothing in this module credits it, which belongs to
// the external treasury component named in spec §1.
type Treasury struct {
	Balance uint64
}

// Spool is an append-only byte stream published into the archive.
type Spool struct {
	Number        uint64 // 0 until finalized
	Authority     Address
	Name          string
	State         SpoolState
	TotalSegments uint64
	MerkleRoot    Hash
	Header        []byte
	FirstSlot     uint64
	TailSlot      uint64
	Balance       uint64
	LastRentBlock uint64
}

// CanFinalize reports whether the spool has prepaid enough rent to
// finalize, per spec §4.1.
func (s *Spool) CanFinalize() bool {
	return s.Balance >= MinFinalizationRent(s.TotalSegments)
}

// MinFinalizationRent is the minimum balance (spec §4.1 Finalize
// precondition) required to finalize a spool with n segments.
func MinFinalizationRent(totalSegments uint64) uint64 {
	return totalSegments * RentPerSegmentPerBlock * MinFinalizationBlocks
}

// MinRent is the minimum balance a spool must carry, given elapsed blocks
// since its last rent charge, for it to still be considered rent-current
// during Mine (spec §4.2 step 5).
func MinRent(totalSegments, blocksElapsed uint64) uint64 {
	return totalSegments * RentPerSegmentPerBlock * blocksElapsed
}

// Writer is the in-progress Merkle tree backing an unfinalized spool. It
// exists iff the spool is unfinalized and is destroyed on Finalize.
type Writer struct {
	Spool Address
	State *Tree
}

// Miner is a registered archival-storage participant.
type Miner struct {
	Authority       Address
	Name            string
	UnclaimedRewards uint64
	Challenge       Hash
	Commitment      Hash
	Multiplier      uint64
	LastProofBlock  uint64
	LastProofAt     int64
	TotalProofs     uint64
	TotalRewards    uint64
}

// Reel is a miner-owned Merkle index over packed spool roots.
type Reel struct {
	Number         uint64
	Authority      Address
	State          *Tree
	Contains       map[uint64]Hash // spool_number -> packed root, populated by Unpack
	TotalSpools    uint64
	LastProofAt    int64
	LastProofBlock uint64
}
