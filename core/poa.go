package core

// PoA is a Proof-of-Access: a packed solution plus the Merkle inclusion
// path proving the miner retains the recalled segment (spec §6, glossary).
type PoA struct {
	Difficulty uint64
	Solution   PackxSolution
	Proof      ProofPath
}
