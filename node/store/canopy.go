package store

import "spoolchain/core"

// Canopy is the off-ledger Merkle canopy engine (spec §4.6). It never
// materializes a full SegmentTree: only the sector layer (one root per
// core.SectorLeaves-sized run of segments) is ever persisted, and the spool
// root is reconstructed on demand from that layer plus a cached zero-value
// frontier, the same bounded-recursion discipline core.Tree uses on-ledger.
type Canopy struct {
	store     *Store
	spoolAddr core.Address
	miner     *core.PackxMemory
}

// NewCanopy builds the canopy engine for one spool. miner is the PackxMemory
// used to recover unpacked leaves from packed segments at rest; it is built
// once at startup and shared immutably across packer workers (spec §5
// "Shared resources").
func NewCanopy(s *Store, spoolAddr core.Address, miner *core.PackxMemory) *Canopy {
	return &Canopy{store: s, spoolAddr: spoolAddr, miner: miner}
}

// zeroHashes returns the per-level zero-value frontier for this spool,
// seeded identically to the on-ledger Writer tree (core.NewTree), computing
// and caching it under ZeroValues{spool} on first use.
func (c *Canopy) zeroHashes() ([]core.Hash, error) {
	cached, err := c.store.GetMerkleLayer(KindZeroValues, c.spoolAddr, 0)
	if err != nil {
		return nil, err
	}
	if len(cached) == core.SegmentTreeHeight+1 {
		return cached, nil
	}
	zero := make([]core.Hash, core.SegmentTreeHeight+1)
	seed := core.H(c.spoolAddr[:])
	zero[0] = core.H(seed[:], []byte("leaf"))
	for i := 1; i <= core.SegmentTreeHeight; i++ {
		zero[i] = core.H(zero[i-1][:], zero[i-1][:])
	}
	if err := c.store.PutMerkleLayer(KindZeroValues, c.spoolAddr, 0, zero); err != nil {
		return nil, err
	}
	return zero, nil
}

// UpdateSector recomputes and persists the sector containing segment index
// s, for both the unpacked and packed canopies (spec §4.6 "Per-sector
// update"). Called by the packer after every successful pack.
func (c *Canopy) UpdateSector(s uint64) error {
	zero, err := c.zeroHashes()
	if err != nil {
		return err
	}

	sector := s / core.SectorLeaves
	base := sector * core.SectorLeaves

	unpackedLeaves := make([]core.Hash, core.SectorLeaves)
	packedLeaves := make([]core.Hash, core.SectorLeaves)
	for i := uint64(0); i < core.SectorLeaves; i++ {
		segID := base + i
		packed, err := c.store.GetSegment(c.spoolAddr, segID)
		if err != nil {
			unpackedLeaves[i] = zero[0]
			packedLeaves[i] = zero[0]
			continue
		}
		solution, err := core.PackxSolutionFromBytes(packed)
		if err != nil {
			return err
		}
		unpacked := solution.Unpack(c.miner)
		unpackedLeaves[i] = core.H(le64(segID), unpacked)
		packedLeaves[i] = core.H(le64(segID), solution.Packed)
	}

	unpackedRoot := aggregate(unpackedLeaves, core.SectorTreeHeight)
	packedRoot := aggregate(packedLeaves, core.SectorTreeHeight)

	if err := c.setLayerAt(KindUnpackedSpoolLayer, sector, unpackedRoot); err != nil {
		return err
	}
	return c.setLayerAt(KindPackedSpoolLayer, sector, packedRoot)
}

// setLayerAt resizes the cached layer vector to fit sector and writes root
// at that index (spec §4.6 step 5).
func (c *Canopy) setLayerAt(kind MerkleCacheKind, sector uint64, root core.Hash) error {
	layer, err := c.store.GetMerkleLayer(kind, c.spoolAddr, 0)
	if err != nil {
		return err
	}
	if uint64(len(layer)) <= sector {
		grown := make([]core.Hash, sector+1)
		copy(grown, layer)
		layer = grown
	}
	layer[sector] = root
	return c.store.PutMerkleLayer(kind, c.spoolAddr, 0, layer)
}

// aggregate runs the bounded-height Merkle aggregation over leaves up to
// height, the same computation core.Tree.nodeAt performs, starting from an
// explicit leaf set instead of an append-only slice.
func aggregate(leaves []core.Hash, height int) core.Hash {
	level := leaves
	for h := 0; h < height; h++ {
		next := make([]core.Hash, (len(level)+1)/2)
		for i := range next {
			left := level[i*2]
			var right core.Hash
			if i*2+1 < len(level) {
				right = level[i*2+1]
			} else {
				right = left
			}
			next[i] = core.H(left[:], right[:])
		}
		level = next
	}
	return level[0]
}

// Root reconstructs the spool root for kind (unpacked or packed) from the
// cached sector layer and the zero-value frontier (spec §4.6 "Spool root
// reconstruction"). It must equal spool.merkle_root on the ledger when kind
// is the unpacked canopy.
func (c *Canopy) Root(kind MerkleCacheKind) (core.Hash, error) {
	zero, err := c.zeroHashes()
	if err != nil {
		return core.Hash{}, err
	}
	layer, err := c.store.GetMerkleLayer(kind, c.spoolAddr, 0)
	if err != nil {
		return core.Hash{}, err
	}

	canopyHeight := core.SegmentTreeHeight - core.SectorTreeHeight
	canopySeed := zero[core.SectorTreeHeight]
	tree := core.NewTree(canopyHeight, canopySeed)
	for _, root := range layer {
		if _, err := tree.Append(root); err != nil {
			return core.Hash{}, err
		}
	}
	return tree.Root(), nil
}

// SegmentProof builds the fixed-length inclusion proof for segment s: the
// sibling path inside its sector concatenated with the canopy tree's sibling
// path for that sector's leaf (spec §4.6 "Segment proof").
func (c *Canopy) SegmentProof(s uint64) (core.ProofPath, error) {
	zero, err := c.zeroHashes()
	if err != nil {
		return core.ProofPath{}, err
	}
	sector := s / core.SectorLeaves
	base := sector * core.SectorLeaves

	unpackedLeaves := make([]core.Hash, core.SectorLeaves)
	for i := uint64(0); i < core.SectorLeaves; i++ {
		segID := base + i
		packed, err := c.store.GetSegment(c.spoolAddr, segID)
		if err != nil {
			unpackedLeaves[i] = zero[0]
			continue
		}
		solution, err := core.PackxSolutionFromBytes(packed)
		if err != nil {
			return core.ProofPath{}, err
		}
		unpackedLeaves[i] = core.H(le64(segID), solution.Unpack(c.miner))
	}

	withinSector, err := proofWithin(unpackedLeaves, s%core.SectorLeaves, core.SectorTreeHeight)
	if err != nil {
		return core.ProofPath{}, err
	}

	layer, err := c.store.GetMerkleLayer(KindUnpackedSpoolLayer, c.spoolAddr, 0)
	if err != nil {
		return core.ProofPath{}, err
	}
	canopyHeight := core.SegmentTreeHeight - core.SectorTreeHeight
	canopySeed := zero[core.SectorTreeHeight]
	tree := core.NewTree(canopyHeight, canopySeed)
	for _, root := range layer {
		if _, err := tree.Append(root); err != nil {
			return core.ProofPath{}, err
		}
	}
	acrossCanopy, err := tree.Proof(sector)
	if err != nil {
		return core.ProofPath{}, err
	}

	entries := append(withinSector, acrossCanopy...)
	return core.NewProofPath(entries, core.SegmentProofLen)
}

// proofWithin computes a sibling path for index within an explicit,
// in-memory leaf set up to height, mirroring core.Tree.Proof without
// requiring a core.Tree (the sector's leaves are recomputed from store
// state on every call, never kept as a standing tree).
func proofWithin(leaves []core.Hash, index uint64, height int) ([]core.Hash, error) {
	levels := make([][]core.Hash, height+1)
	levels[0] = leaves
	for h := 0; h < height; h++ {
		cur := levels[h]
		next := make([]core.Hash, (len(cur)+1)/2)
		for i := range next {
			left := cur[i*2]
			var right core.Hash
			if i*2+1 < len(cur) {
				right = cur[i*2+1]
			} else {
				right = left
			}
			next[i] = core.H(left[:], right[:])
		}
		levels[h+1] = next
	}

	proof := make([]core.Hash, height)
	idx := index
	for level := 0; level < height; level++ {
		sibIdx := idx ^ 1
		if int(sibIdx) < len(levels[level]) {
			proof[level] = levels[level][sibIdx]
		} else {
			proof[level] = levels[level][idx]
		}
		idx >>= 1
	}
	return proof, nil
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}
