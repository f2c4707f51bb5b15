package core

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies an account on the host ledger. Spools, writers,
// miners and reels all live at deterministically derived addresses, the
// same way a Solana program derives PDAs from seeds.
type Address [32]byte

// String renders the address as a lower-case hex string.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// AddressFromHex parses the hex encoding String produces. Used at the
// off-ledger node's wire boundary (spec §4.7), where account keys arrive as
// JSON strings rather than raw bytes.
func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("spoolchain: invalid address hex: %w", err)
	}
	if len(b) != 32 {
		return Address{}, fmt.Errorf("spoolchain: address must be 32 bytes, got %d", len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// Hash is a 32-byte digest produced by H. It is used for Merkle nodes,
// challenges and event payloads.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// H is the protocol's single hash function. On-ledger handlers and
// off-ledger followers must compute bit-identical digests, so every
// challenge, recall and Merkle computation in this module goes through it.
func H(parts ...[]byte) Hash {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return Hash(crypto.Keccak256Hash(buf))
}

// le64 encodes v as 8 little-endian bytes, the layout every u64 field in
// this protocol uses on the wire.
func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func u64FromLE(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// Seeds used for deterministic address derivation.
var (
	seedSpool   = []byte("SPOOL")
	seedWriter  = []byte("WRITER")
	seedMiner   = []byte("MINER")
	seedReel    = []byte("REEL")
	seedArchive = []byte("ARCHIVE")
	seedEpoch   = []byte("EPOCH")
	seedBlock   = []byte("BLOCK")
	seedTreas   = []byte("TREASURY")
)

// SpoolAddress derives the deterministic address of a spool from its
// authority and name.
func SpoolAddress(authority Address, name string) Address {
	return Address(H(seedSpool, authority[:], []byte(name)))
}

// WriterAddress derives the deterministic address of a spool's writer.
func WriterAddress(spool Address) Address {
	return Address(H(seedWriter, spool[:]))
}

// MinerAddress derives the deterministic address of a miner account.
func MinerAddress(authority Address, name string) Address {
	return Address(H(seedMiner, authority[:], []byte(name)))
}

// ReelAddress derives the deterministic address of a miner's Nth reel.
func ReelAddress(miner Address, number uint64) Address {
	return Address(H(seedReel, miner[:], le64(number)))
}

// ArchiveAddress, EpochAddress, BlockAddress and TreasuryAddress are the
// process-wide singleton accounts created at Initialize.
func ArchiveAddress() Address  { return Address(H(seedArchive)) }
func EpochAddress() Address    { return Address(H(seedEpoch)) }
func BlockAddress() Address    { return Address(H(seedBlock)) }
func TreasuryAddress() Address { return Address(H(seedTreas)) }
