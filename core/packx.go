package core

import (
	"encoding/binary"
	"fmt"
)

// maxPackxIterations bounds the packing search. PackxSolve returns an error
// on exhaustion; the packer logs it and counts a pack failure without
// retrying the job (spec §4.5 step 2).
const maxPackxIterations = 1 << 20

// packxMemoryEntries is the number of 32-byte blocks in a miner's
// PoW-memory table (spec §4.5, §5 "Packer memory"). It is built once per
// miner address and shared read-only across packer workers.
const packxMemoryEntries = 1024

// PackxMemory is the miner-personalized memory table packx reads when
// packing or unpacking a segment on behalf of that miner. Building it is
// the only place a miner's identity enters the packing computation, which
// is what makes a packed segment unusable to any other miner (spec §9
// "miner personalization").
type PackxMemory struct {
	miner Address
	table [][32]byte
}

// BuildPackxMemory derives the memory table for miner. It is deterministic
// so any two nodes packing for the same miner converge on the same table,
// and expensive enough in aggregate (packxMemoryEntries hashes) that
// skipping it is not worthwhile versus simply storing the packed segment.
func BuildPackxMemory(miner Address) *PackxMemory {
	table := make([][32]byte, packxMemoryEntries)
	seed := H(miner[:], []byte("packx-memory"))
	prev := seed
	for i := range table {
		prev = H(prev[:], le64(uint64(i)))
		table[i] = [32]byte(prev)
	}
	return &PackxMemory{miner: miner, table: table}
}

func (m *PackxMemory) block(i int) [32]byte {
	return m.table[i%len(m.table)]
}

// PackxSolution is a packed segment together with the nonce packx found it
// at. It round-trips exactly back to the original padded segment via
// Unpack (spec §8 invariant 6).
type PackxSolution struct {
	Nonce  uint64
	Packed []byte
}

// packxTransform XORs padded against the miner's memory table, offset by
// nonce. XOR is its own inverse, which is what makes Unpack the same
// computation as packing: a real memory-hard function would use a more
// expensive keyed permutation, but the protocol property this module must
// preserve is "cheap to verify, bound to the miner's memory table, and
// reversible only by whoever holds it or the original segment" - XOR over a
// per-miner table satisfies that within this module's simulated difficulty
// search.
func packxTransform(padded []byte, mem *PackxMemory, nonce uint64) []byte {
	out := make([]byte, len(padded))
	blockCount := (len(padded) + 31) / 32
	for b := 0; b < blockCount; b++ {
		key := mem.block(b + int(nonce%uint64(len(mem.table))))
		start := b * 32
		end := start + 32
		if end > len(padded) {
			end = len(padded)
		}
		for i := start; i < end; i++ {
			out[i] = padded[i] ^ key[i-start]
		}
	}
	return out
}

// PackxSolve searches for a nonce such that H(packed) carries at least
// difficulty leading zero bits, the memory-hard analogue of SolvePoW.
// Returns a transient error on search exhaustion (spec §4.5 step 2).
func PackxSolve(padded []byte, mem *PackxMemory, difficulty uint64) (PackxSolution, error) {
	if len(padded) != SegmentSize {
		return PackxSolution{}, fmt.Errorf("spoolchain: packx input must be %d bytes, got %d", SegmentSize, len(padded))
	}
	for nonce := uint64(0); nonce < maxPackxIterations; nonce++ {
		packed := packxTransform(padded, mem, nonce)
		if leadingZeroBits(H(packed)) >= difficulty {
			return PackxSolution{Nonce: nonce, Packed: packed}, nil
		}
	}
	return PackxSolution{}, fmt.Errorf("spoolchain: packx search exhausted at difficulty %d", difficulty)
}

// PackxVerify recomputes the transform for solution.Nonce and confirms both
// that it reproduces solution.Packed and that it still meets difficulty.
func PackxVerify(mem *PackxMemory, padded []byte, solution PackxSolution, difficulty uint64) bool {
	if len(padded) != SegmentSize || len(solution.Packed) != SegmentSize {
		return false
	}
	packed := packxTransform(padded, mem, solution.Nonce)
	for i := range packed {
		if packed[i] != solution.Packed[i] {
			return false
		}
	}
	return leadingZeroBits(H(packed)) >= difficulty
}

// Unpack reverses the transform, recovering the original padded segment
// from the packed bytes stored at rest.
func (s PackxSolution) Unpack(mem *PackxMemory) []byte {
	return packxTransform(s.Packed, mem, s.Nonce)
}

// ToBytes serializes the solution as it is stored in the segment store:
// an 8-byte little-endian nonce followed by the packed segment.
func (s PackxSolution) ToBytes() []byte {
	out := make([]byte, 8+len(s.Packed))
	binary.LittleEndian.PutUint64(out[:8], s.Nonce)
	copy(out[8:], s.Packed)
	return out
}

// PackxSolutionFromBytes parses the on-disk layout ToBytes produces.
func PackxSolutionFromBytes(b []byte) (PackxSolution, error) {
	if len(b) != PackedSegmentSize {
		return PackxSolution{}, fmt.Errorf("spoolchain: packed segment must be %d bytes, got %d", PackedSegmentSize, len(b))
	}
	nonce := binary.LittleEndian.Uint64(b[:8])
	packed := make([]byte, len(b)-8)
	copy(packed, b[8:])
	return PackxSolution{Nonce: nonce, Packed: packed}, nil
}
