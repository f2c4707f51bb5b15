package core

import (
	"encoding/binary"
	"fmt"
)

// Discriminator is the single leading byte of every instruction payload,
// grouped by component (spec §6 "Ledger transaction surface").
type Discriminator byte

const (
	DiscInitialize Discriminator = 0x00

	DiscSpoolCreate     Discriminator = 0x10
	DiscSpoolWrite      Discriminator = 0x11
	DiscSpoolUpdate     Discriminator = 0x12
	DiscSpoolFinalize   Discriminator = 0x13
	DiscSpoolSetHeader  Discriminator = 0x14
	DiscSpoolSubsidize  Discriminator = 0x15

	DiscMinerRegister   Discriminator = 0x20
	DiscMinerUnregister Discriminator = 0x21
	DiscMinerMine       Discriminator = 0x22
	DiscMinerClaim      Discriminator = 0x23

	DiscReelCreate  Discriminator = 0x40
	DiscReelDestroy Discriminator = 0x41
	DiscReelPack    Discriminator = 0x42
	DiscReelUnpack  Discriminator = 0x43
	DiscReelCommit  Discriminator = 0x44
)

// Instruction is a decoded transaction: a discriminator, the fixed positional
// account list the handler reads and writes, and its C-packed payload. A
// host ledger integration would receive these already split out of a
// transaction message; this module starts one step in, at the boundary
// instruction handlers actually operate on.
type Instruction struct {
	Discriminator Discriminator
	Accounts      []Address
	Payload       []byte
}

// ErrBadPayload is returned when an instruction's payload is too short or
// malformed for its discriminator.
var ErrBadPayload = fmt.Errorf("spoolchain: malformed instruction payload")

// Dispatch decodes and executes ix against l, the single entry point a host
// ledger integration (or a test harness) calls for every transaction (spec
// §6). It never panics on malformed input: any decode failure returns
// ErrBadPayload rather than indexing out of bounds.
func Dispatch(l *Ledger, ix Instruction) error {
	switch ix.Discriminator {
	case DiscInitialize:
		l.Initialize()
		return nil

	case DiscSpoolCreate:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		name, err := decodeString(ix.Payload)
		if err != nil {
			return err
		}
		_, err = l.SpoolCreate(ix.Accounts[0], name)
		return err

	case DiscSpoolWrite:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		return l.SpoolWrite(ix.Accounts[0], ix.Payload)

	case DiscSpoolUpdate:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		index, old, newData, proof, err := decodeUpdate(ix.Payload)
		if err != nil {
			return err
		}
		return l.SpoolUpdate(ix.Accounts[0], index, old, newData, proof)

	case DiscSpoolFinalize:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		return l.SpoolFinalize(ix.Accounts[0])

	case DiscSpoolSetHeader:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		return l.SpoolSetHeader(ix.Accounts[0], ix.Payload)

	case DiscSpoolSubsidize:
		if len(ix.Accounts) < 1 || len(ix.Payload) < 8 {
			return ErrBadPayload
		}
		return l.SpoolSubsidize(ix.Accounts[0], binary.LittleEndian.Uint64(ix.Payload[:8]))

	case DiscMinerRegister:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		name, err := decodeString(ix.Payload)
		if err != nil {
			return err
		}
		_, err = l.MinerRegister(ix.Accounts[0], name)
		return err

	case DiscMinerUnregister:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		return l.MinerUnregister(ix.Accounts[0])

	case DiscMinerMine:
		if len(ix.Accounts) < 2 {
			return ErrBadPayload
		}
		pow, poa, err := decodeMine(ix.Payload)
		if err != nil {
			return err
		}
		return l.Mine(ix.Accounts[0], ix.Accounts[1], pow, poa)

	case DiscMinerClaim:
		if len(ix.Accounts) < 1 || len(ix.Payload) < 8 {
			return ErrBadPayload
		}
		return l.MinerClaim(ix.Accounts[0], binary.LittleEndian.Uint64(ix.Payload[:8]))

	case DiscReelCreate:
		if len(ix.Accounts) < 1 || len(ix.Payload) < 8 {
			return ErrBadPayload
		}
		_, err := l.ReelCreate(ix.Accounts[0], binary.LittleEndian.Uint64(ix.Payload[:8]))
		return err

	case DiscReelDestroy:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		return l.ReelDestroy(ix.Accounts[0])

	case DiscReelPack:
		if len(ix.Accounts) < 1 || len(ix.Payload) < 32 {
			return ErrBadPayload
		}
		var root Hash
		copy(root[:], ix.Payload[:32])
		return l.ReelPack(ix.Accounts[0], root)

	case DiscReelUnpack:
		if len(ix.Accounts) < 1 {
			return ErrBadPayload
		}
		index, proof, value, err := decodeUnpack(ix.Payload)
		if err != nil {
			return err
		}
		return l.ReelUnpack(ix.Accounts[0], index, proof, value)

	case DiscReelCommit:
		if len(ix.Accounts) < 2 {
			return ErrBadPayload
		}
		spoolNumber, segmentIndex, proof, value, err := decodeCommit(ix.Payload)
		if err != nil {
			return err
		}
		return l.ReelCommit(ix.Accounts[0], ix.Accounts[1], spoolNumber, segmentIndex, proof, value)

	default:
		return fmt.Errorf("spoolchain: unknown discriminator 0x%02x: %w", ix.Discriminator, ErrBadPayload)
	}
}

func decodeString(b []byte) (string, error) {
	if len(b) < 2 {
		return "", ErrBadPayload
	}
	n := binary.LittleEndian.Uint16(b[:2])
	if len(b) < 2+int(n) {
		return "", ErrBadPayload
	}
	return string(b[2 : 2+n]), nil
}

func decodeHashes(b []byte, count int) ([]Hash, []byte, error) {
	need := count * 32
	if len(b) < need {
		return nil, nil, ErrBadPayload
	}
	out := make([]Hash, count)
	for i := 0; i < count; i++ {
		copy(out[i][:], b[i*32:i*32+32])
	}
	return out, b[need:], nil
}

func decodeUpdate(b []byte) (index uint64, old, newData []byte, proof ProofPath, err error) {
	if len(b) < 8+SegmentSize+SegmentSize {
		return 0, nil, nil, ProofPath{}, ErrBadPayload
	}
	index = binary.LittleEndian.Uint64(b[:8])
	old = b[8 : 8+SegmentSize]
	newData = b[8+SegmentSize : 8+2*SegmentSize]
	rest := b[8+2*SegmentSize:]
	entries, _, derr := decodeHashes(rest, SegmentProofLen)
	if derr != nil {
		return 0, nil, nil, ProofPath{}, derr
	}
	proof, err = NewProofPath(entries, SegmentProofLen)
	return index, old, newData, proof, err
}

func decodeUnpack(b []byte) (index uint64, proof ProofPath, value Hash, err error) {
	if len(b) < 8 {
		return 0, ProofPath{}, Hash{}, ErrBadPayload
	}
	index = binary.LittleEndian.Uint64(b[:8])
	entries, rest, derr := decodeHashes(b[8:], SpoolProofLen)
	if derr != nil {
		return 0, ProofPath{}, Hash{}, derr
	}
	if len(rest) < 32 {
		return 0, ProofPath{}, Hash{}, ErrBadPayload
	}
	copy(value[:], rest[:32])
	proof, err = NewProofPath(entries, SpoolProofLen)
	return index, proof, value, err
}

// decodeCommit parses {spool_number:u64_le, segment_index:u64_le,
// proof:[[32];SEGMENT_PROOF_LEN], value:[32]}. The spec's wire `Commit`
// instruction names a single `index` field; ReelCommit's Go signature splits
// it into spoolNumber and segmentIndex explicitly rather than bit-packing
// both into one integer, so the payload layout here does the same (see
// DESIGN.md).
func decodeCommit(b []byte) (spoolNumber, segmentIndex uint64, proof ProofPath, value Hash, err error) {
	if len(b) < 16 {
		return 0, 0, ProofPath{}, Hash{}, ErrBadPayload
	}
	spoolNumber = binary.LittleEndian.Uint64(b[:8])
	segmentIndex = binary.LittleEndian.Uint64(b[8:16])
	entries, rest, derr := decodeHashes(b[16:], SegmentProofLen)
	if derr != nil {
		return 0, 0, ProofPath{}, Hash{}, derr
	}
	if len(rest) < 32 {
		return 0, 0, ProofPath{}, Hash{}, ErrBadPayload
	}
	copy(value[:], rest[:32])
	proof, err = NewProofPath(entries, SegmentProofLen)
	return spoolNumber, segmentIndex, proof, value, err
}

// decodeMine parses {pow:{difficulty:u64_le,nonce:u64_le},
// poa:{difficulty:u64_le,nonce:u64_le,packed:[PACKED_SEGMENT_SIZE-8],
// proof:[[32];SEGMENT_PROOF_LEN]}}.
func decodeMine(b []byte) (PoW, PoA, error) {
	if len(b) < 16 {
		return PoW{}, PoA{}, ErrBadPayload
	}
	pow := PoW{
		Difficulty: binary.LittleEndian.Uint64(b[:8]),
		Nonce:      binary.LittleEndian.Uint64(b[8:16]),
	}
	rest := b[16:]

	if len(rest) < 16+SegmentSize {
		return PoW{}, PoA{}, ErrBadPayload
	}
	difficulty := binary.LittleEndian.Uint64(rest[:8])
	nonce := binary.LittleEndian.Uint64(rest[8:16])
	packed := make([]byte, SegmentSize)
	copy(packed, rest[16:16+SegmentSize])
	rest = rest[16+SegmentSize:]

	entries, _, err := decodeHashes(rest, SegmentProofLen)
	if err != nil {
		return PoW{}, PoA{}, err
	}
	proof, err := NewProofPath(entries, SegmentProofLen)
	if err != nil {
		return PoW{}, PoA{}, err
	}

	poa := PoA{
		Difficulty: difficulty,
		Solution:   PackxSolution{Nonce: nonce, Packed: packed},
		Proof:      proof,
	}
	return pow, poa, nil
}
