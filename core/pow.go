package core

import "fmt"

// maxPoWIterations bounds the nonce search so a hopeless difficulty fails
// fast instead of spinning forever; SolvePoW returns an error on
// exhaustion.
const maxPoWIterations = 1 << 22

// PoW is a nonce-based proof that the submitter ran at least Difficulty
// leading-zero-bits worth of hashing over (challenge, segment).
type PoW struct {
	Difficulty uint64
	Nonce      uint64
}

// leadingZeroBits counts the number of leading zero bits in h.
func leadingZeroBits(h Hash) uint64 {
	var n uint64
	for _, b := range h {
		if b == 0 {
			n += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return n
			}
			n++
		}
	}
	return n
}

// powDigest is the bit-exact hash VerifyPoW (called by Mine) and SolvePoW
// both compute over a candidate PoW. challenge is miner_challenge, segment is the (recall or
// empty) segment.
func powDigest(challenge Hash, segment []byte, nonce uint64) Hash {
	return H(challenge[:], segment, le64(nonce))
}

// VerifyPoW reports whether pow is a genuine solution: the digest it names
// actually carries at least pow.Difficulty leading zero bits.
func VerifyPoW(challenge Hash, segment []byte, pow PoW) bool {
	return leadingZeroBits(powDigest(challenge, segment, pow.Nonce)) >= pow.Difficulty
}

// SolvePoW searches for a nonce meeting difficulty. It is the miner-side
// counterpart to VerifyPoW; the on-ledger program never calls it.
func SolvePoW(challenge Hash, segment []byte, difficulty uint64) (PoW, error) {
	for nonce := uint64(0); nonce < maxPoWIterations; nonce++ {
		if leadingZeroBits(powDigest(challenge, segment, nonce)) >= difficulty {
			return PoW{Difficulty: difficulty, Nonce: nonce}, nil
		}
	}
	return PoW{}, fmt.Errorf("spoolchain: pow search exhausted at difficulty %d", difficulty)
}
